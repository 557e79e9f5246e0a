// Package trust holds the recursion-safe membership predicates.
//
// Policy predicates for a resource must not answer "is this principal a
// participant" by querying the participants table through the normal,
// policy-guarded path: the participants predicate would re-enter
// itself. The kernel breaks that cycle by reading the raw tables with
// no visibility filtering at all. It imports nothing from the policy
// layer and must stay that way; any new "is this principal related to
// resource set S" check belongs here, not in a policy predicate.
package trust

import (
	"context"
	"database/sql"
	"fmt"
)

// Kernel answers membership and role questions directly against the
// underlying tables.
type Kernel struct {
	db *sql.DB
}

// NewKernel creates a kernel over the given database handle.
func NewKernel(db *sql.DB) *Kernel {
	return &Kernel{db: db}
}

// IsParticipant reports whether the principal has any participant row
// in the deliberation, regardless of per-tenant role.
func (k *Kernel) IsParticipant(ctx context.Context, deliberationID, principalID string) (bool, error) {
	var count int
	err := k.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE deliberation_id = ? AND principal_id = ?`,
		deliberationID, principalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking participant membership: %w", err)
	}
	return count > 0, nil
}

// IsFacilitator reports whether the principal facilitates the
// deliberation, either as its designated facilitator or via a
// facilitator participant row.
func (k *Kernel) IsFacilitator(ctx context.Context, deliberationID, principalID string) (bool, error) {
	var count int
	err := k.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM deliberations WHERE id = ? AND facilitator_id = ?)
			+ (SELECT COUNT(*) FROM participants WHERE deliberation_id = ? AND principal_id = ? AND role = 'facilitator')`,
		deliberationID, principalID, deliberationID, principalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking facilitator standing: %w", err)
	}
	return count > 0, nil
}

// IsAdmin reports whether the principal is an unarchived admin.
func (k *Kernel) IsAdmin(ctx context.Context, principalID string) (bool, error) {
	var count int
	err := k.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM principals WHERE id = ? AND role = 'admin' AND archived = 0`,
		principalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking admin role: %w", err)
	}
	return count > 0, nil
}
