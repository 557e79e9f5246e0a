package principal

import (
	"errors"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular participant. Access is scoped to the
	// deliberations they participate in and the records they own.
	RoleUser Role = "user"

	// RoleModerator can facilitate deliberations assigned to them but has
	// no platform-wide override.
	RoleModerator Role = "moderator"

	// RoleAdmin has full platform control: principals, access codes,
	// deliberations, audit. Bypasses tenant scoping.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid principal roles.
var ValidRoles = []Role{RoleUser, RoleModerator, RoleAdmin}

// IsValidRole returns true if the role is a recognised principal role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Principal represents a resolved identity subject to authorization.
//
// Principals are created on first successful identity resolution and are
// never hard-deleted while referenced by audit history; deactivation is
// expressed through the archive fields.
type Principal struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	Role           Role       `json:"role"`
	Archived       bool       `json:"archived"`
	ArchivedBy     string     `json:"archived_by,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	ArchivedReason string     `json:"archived_reason,omitempty"`
	PasswordHash   string     `json:"-"` // never serialised
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Sentinel errors for principal operations.
var (
	ErrNotFound           = errors.New("principal not found")
	ErrArchived           = errors.New("principal is archived")
	ErrInvalidRole        = errors.New("invalid principal role")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
