package policy

import (
	"context"
	"fmt"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/principal"
)

// ChangeRole applies the role-change sub-policy and, if it passes,
// updates the target's role and its audit record in one transaction.
//
// Deny unless the requester is an active admin. Additionally deny any
// change that would demote or otherwise remove the last active admin,
// including an admin demoting themselves.
func (e *Evaluator) ChangeRole(ctx context.Context, requester *principal.Principal, targetID string, newRole principal.Role, sourceIP string) error {
	if requester == nil || requester.Archived || requester.Role != principal.RoleAdmin {
		e.recordDeniedMutation(ctx, requester, "principal.role_change_denied", targetID, sourceIP, map[string]any{
			"new_role": string(newRole),
		})
		return ErrForbidden
	}
	if !principal.IsValidRole(newRole) {
		return principal.ErrInvalidRole
	}

	target, err := e.principals.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	// Demoting any admin, self included, requires another active admin
	// to remain.
	if target.Role == principal.RoleAdmin && newRole != principal.RoleAdmin {
		others, err := e.principals.CountOtherActiveAdmins(ctx, target.ID)
		if err != nil {
			return err
		}
		if others < 1 {
			action := "principal.role_change_denied"
			if target.ID == requester.ID {
				action = "principal.self_demotion_denied"
			}
			e.recorder.Record(ctx, &audit.SecurityEvent{
				PrincipalID:  requester.ID,
				Action:       action,
				ResourceType: "principal",
				ResourceID:   target.ID,
				Details:      map[string]any{"new_role": string(newRole), "reason": ReasonLastAdmin},
				RiskLevel:    audit.RiskHigh,
				SourceIP:     sourceIP,
			})
			return ErrLastAdmin
		}
	}

	if target.Role == newRole {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning role change transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	if err := e.principals.UpdateRoleTx(ctx, tx, target.ID, newRole); err != nil {
		return err
	}

	event := audit.SecurityEvent{
		PrincipalID:  requester.ID,
		Action:       "principal.role_change",
		ResourceType: "principal",
		ResourceID:   target.ID,
		Details: map[string]any{
			"old_role": string(target.Role),
			"new_role": string(newRole),
		},
		RiskLevel: audit.RiskHigh,
		SourceIP:  sourceIP,
	}
	if err := e.recorder.RecordTx(ctx, tx, &event); err != nil {
		return fmt.Errorf("recording role change event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing role change transaction: %w", err)
	}
	e.recorder.Notify(event)

	return nil
}

// ArchivePrincipal archives a principal account. Admin-only, and the
// last active admin cannot be archived.
func (e *Evaluator) ArchivePrincipal(ctx context.Context, requester *principal.Principal, targetID, reason, sourceIP string) error {
	if requester == nil || requester.Archived || requester.Role != principal.RoleAdmin {
		e.recordDeniedMutation(ctx, requester, "principal.archive_denied", targetID, sourceIP, nil)
		return ErrForbidden
	}

	target, err := e.principals.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if target.Role == principal.RoleAdmin && !target.Archived {
		others, err := e.principals.CountOtherActiveAdmins(ctx, target.ID)
		if err != nil {
			return err
		}
		if others < 1 {
			e.recorder.Record(ctx, &audit.SecurityEvent{
				PrincipalID:  requester.ID,
				Action:       "principal.archive_denied",
				ResourceType: "principal",
				ResourceID:   target.ID,
				Details:      map[string]any{"reason": ReasonLastAdmin},
				RiskLevel:    audit.RiskHigh,
				SourceIP:     sourceIP,
			})
			return ErrLastAdmin
		}
	}

	if err := e.principals.Archive(ctx, targetID, requester.ID, reason); err != nil {
		return err
	}

	e.recorder.Record(ctx, &audit.SecurityEvent{
		PrincipalID:  requester.ID,
		Action:       "principal.archive",
		ResourceType: "principal",
		ResourceID:   targetID,
		Details:      map[string]any{"reason": reason},
		RiskLevel:    audit.RiskHigh,
		SourceIP:     sourceIP,
	})

	return nil
}

func (e *Evaluator) recordDeniedMutation(ctx context.Context, requester *principal.Principal, action, targetID, sourceIP string, details map[string]any) {
	e.recorder.Record(ctx, &audit.SecurityEvent{
		PrincipalID:  principalID(requester),
		Action:       action,
		ResourceType: "principal",
		ResourceID:   targetID,
		Details:      details,
		RiskLevel:    audit.RiskMedium,
		SourceIP:     sourceIP,
	})
}
