package policy

import "errors"

// Action names the operation a principal is attempting on a resource.
type Action string

// Actions the evaluator understands.
const (
	ActionRead       Action = "read"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionJoin       Action = "join"
	ActionUpdateRole Action = "update_role"
)

// Decision reasons. Denials on private tenant resources uniformly
// report not_found, so a caller cannot distinguish "exists but private"
// from "does not exist" and probe the tenant space.
const (
	ReasonAdminOverride     = "admin_override"
	ReasonPublicResource    = "public_resource"
	ReasonParticipant       = "participant"
	ReasonFacilitator       = "facilitator"
	ReasonOwner             = "owner"
	ReasonSelf              = "self"
	ReasonPrincipalArchived = "principal_archived"
	ReasonUnauthenticated   = "unauthenticated"
	ReasonNotFound          = "not_found"
	ReasonLastAdmin         = "last_admin"
	ReasonDenied            = "denied"
)

// Sentinel errors for guarded mutations.
var (
	// ErrForbidden is returned when the requester lacks standing for a
	// guarded mutation.
	ErrForbidden = errors.New("forbidden")

	// ErrLastAdmin is returned when a role change or archive would
	// leave the platform with no active admin.
	ErrLastAdmin = errors.New("operation would remove the last admin")
)

// Decision is the evaluator's answer: allowed or not, and why.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Allow builds an allowing decision.
func Allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

// Deny builds a denying decision.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
