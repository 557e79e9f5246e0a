package accesscode

import (
	"errors"
	"time"
)

// Code types. Admin codes bootstrap admin accounts; user codes are the
// normal onboarding path.
const (
	TypeAdmin = "admin"
	TypeUser  = "user"
)

// Validation failure reasons, in check order. The first failing check
// short-circuits, so a caller only ever sees the earliest applicable
// reason.
const (
	ReasonInvalidFormat   = "invalid_format"
	ReasonCodeNotFound    = "code_not_found"
	ReasonCodeInactive    = "code_inactive"
	ReasonCodeExpired     = "code_expired"
	ReasonMaxUsesExceeded = "max_uses_exceeded"
	ReasonRateLimited     = "rate_limited"
)

// Sentinel errors for access code operations.
var (
	// ErrNotFound is returned when no code row matches.
	ErrNotFound = errors.New("access code not found")

	// ErrNoLongerValid is returned by Consume when the code was
	// deactivated, expired or exhausted between check and use.
	ErrNoLongerValid = errors.New("access code no longer valid")

	// ErrGenerationExhausted is returned when no acceptable unique code
	// could be produced within the attempt cap.
	ErrGenerationExhausted = errors.New("access code generation exhausted")

	// ErrInvalidCodeType is returned for code types outside admin/user.
	ErrInvalidCodeType = errors.New("invalid access code type")
)

// AccessCode represents a single onboarding code.
type AccessCode struct {
	Code        string     `json:"code"`
	CodeType    string     `json:"code_type"`
	IsActive    bool       `json:"is_active"`
	CurrentUses int        `json:"current_uses"`
	MaxUses     *int       `json:"max_uses,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	UsedBy      string     `json:"used_by,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RemainingUses returns how many uses are left, or nil for unlimited codes.
func (c *AccessCode) RemainingUses() *int {
	if c.MaxUses == nil {
		return nil
	}
	remaining := *c.MaxUses - c.CurrentUses
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// Expired reports whether the code's expiry has passed at the given time.
func (c *AccessCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Exhausted reports whether the code has no uses remaining.
func (c *AccessCode) Exhausted() bool {
	return c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// ValidationResult is the outcome of a validate call. Reason is empty
// when Valid is true.
type ValidationResult struct {
	Valid         bool       `json:"valid"`
	Reason        string     `json:"reason,omitempty"`
	CodeType      string     `json:"code_type,omitempty"`
	RemainingUses *int       `json:"remaining_uses,omitempty"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
}

// ConsumeResult is the outcome of a successful consume call.
type ConsumeResult struct {
	Success  bool   `json:"success"`
	CodeType string `json:"code_type"`
}
