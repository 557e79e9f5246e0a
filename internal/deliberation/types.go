package deliberation

import (
	"errors"
	"time"
)

// Visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Lifecycle states. A deliberation only moves forward:
// draft -> active -> concluded -> archived.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusConcluded = "concluded"
	StatusArchived  = "archived"
)

// Per-deliberation participant roles.
const (
	ParticipantMember      = "member"
	ParticipantFacilitator = "facilitator"
)

// Sentinel errors for deliberation operations.
var (
	ErrNotFound            = errors.New("deliberation not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyParticipant  = errors.New("principal is already a participant")
	ErrInvalidVisibility   = errors.New("invalid visibility")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrUnknownResourceType = errors.New("unknown resource type")
)

// Deliberation is the tenant unit: every scoped resource hangs off one.
type Deliberation struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Visibility    string    `json:"visibility"`
	Status        string    `json:"status"`
	FacilitatorID string    `json:"facilitator_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PubliclyVisible reports whether non-participants may read the
// deliberation: only an active, public one qualifies.
func (d *Deliberation) PubliclyVisible() bool {
	return d.Visibility == VisibilityPublic && d.Status == StatusActive
}

// Participant is the membership row joining a principal to a
// deliberation with a per-tenant role.
type Participant struct {
	DeliberationID string    `json:"deliberation_id"`
	PrincipalID    string    `json:"principal_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// statusTransitions holds the allowed forward moves.
var statusTransitions = map[string]string{
	StatusDraft:     StatusActive,
	StatusActive:    StatusConcluded,
	StatusConcluded: StatusArchived,
}

// CanTransition reports whether a status change is a legal forward move.
func CanTransition(from, to string) bool {
	return statusTransitions[from] == to
}
