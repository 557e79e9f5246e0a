package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/principal"
	"github.com/openagora/agora-core/internal/trust"
)

// MetricsSink receives decision outcomes for observability. Implemented
// by the metrics writer; nil disables reporting.
type MetricsSink interface {
	WriteDecision(action, resourceType string, allowed bool)
}

// Evaluator answers "may this principal perform this action on this
// resource". It is deterministic: for fixed store state, the same
// request always yields the same decision.
type Evaluator struct {
	db            *sql.DB
	principals    principal.Repository
	deliberations deliberation.Repository
	directory     *deliberation.Directory
	kernel        *trust.Kernel
	recorder      *audit.Recorder
	metrics       MetricsSink
	logger        *slog.Logger
}

// NewEvaluator creates a policy evaluator. metrics may be nil.
func NewEvaluator(
	db *sql.DB,
	principals principal.Repository,
	deliberations deliberation.Repository,
	directory *deliberation.Directory,
	kernel *trust.Kernel,
	recorder *audit.Recorder,
	metrics MetricsSink,
	logger *slog.Logger,
) *Evaluator {
	return &Evaluator{
		db:            db,
		principals:    principals,
		deliberations: deliberations,
		directory:     directory,
		kernel:        kernel,
		recorder:      recorder,
		metrics:       metrics,
		logger:        logger,
	}
}

// Evaluate runs the decision chain, first match wins:
//
//  1. archived principal: deny
//  2. admin: allow (except the last-admin self-demotion guard)
//  3. globally public resource: allow reads
//  4. tenant standing via the trusted kernel: allow scoped actions
//  5. ownership: allow owner actions
//  6. deny
//
// p may be nil for an unauthenticated request, which can only read
// globally public resources.
func (e *Evaluator) Evaluate(ctx context.Context, p *principal.Principal, action Action, resourceType, resourceID string) (Decision, error) {
	decision, err := e.evaluate(ctx, p, action, resourceType, resourceID)
	if err != nil {
		return decision, err
	}

	if e.metrics != nil {
		e.metrics.WriteDecision(string(action), resourceType, decision.Allowed)
	}

	if decision.Allowed {
		e.logger.Debug("policy allow",
			"principal_id", principalID(p),
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"reason", decision.Reason)
	} else {
		e.logger.Info("policy deny",
			"principal_id", principalID(p),
			"action", action,
			"resource_type", resourceType,
			"resource_id", resourceID,
			"reason", decision.Reason)
	}

	return decision, nil
}

func principalID(p *principal.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func (e *Evaluator) evaluate(ctx context.Context, p *principal.Principal, action Action, resourceType, resourceID string) (Decision, error) {
	if p != nil && p.Archived {
		return Deny(ReasonPrincipalArchived), nil
	}

	if p != nil && p.Role == principal.RoleAdmin {
		// The single exception to the admin override: an admin may not
		// demote themselves out of the last admin seat.
		if action == ActionUpdateRole && resourceType == deliberation.ResourcePrincipal && resourceID == p.ID {
			others, err := e.principals.CountOtherActiveAdmins(ctx, p.ID)
			if err != nil {
				return Decision{}, err
			}
			if others < 1 {
				return Deny(ReasonLastAdmin), nil
			}
		}
		return Allow(ReasonAdminOverride), nil
	}

	switch resourceType {
	case deliberation.ResourcePrincipal:
		return e.evaluatePrincipal(p, action, resourceID), nil
	case deliberation.ResourceAccessCode, deliberation.ResourceSecurityEvent:
		// Admin-only surfaces; the override above is the only allow path.
		return Deny(ReasonDenied), nil
	case deliberation.ResourceDeliberation:
		return e.evaluateDeliberation(ctx, p, action, resourceID)
	default:
		return e.evaluateScoped(ctx, p, action, resourceType, resourceID)
	}
}

// evaluatePrincipal covers non-admin access to principal records: a
// principal may read and update their own record, nothing else. Role is
// not reachable this way; update_role has its own sub-policy.
func (e *Evaluator) evaluatePrincipal(p *principal.Principal, action Action, resourceID string) Decision {
	if p == nil {
		return Deny(ReasonUnauthenticated)
	}
	if action == ActionUpdateRole {
		return Deny(ReasonDenied)
	}
	if resourceID == p.ID && (action == ActionRead || action == ActionUpdate) {
		return Allow(ReasonSelf)
	}
	return Deny(ReasonDenied)
}

func (e *Evaluator) evaluateDeliberation(ctx context.Context, p *principal.Principal, action Action, resourceID string) (Decision, error) {
	d, err := e.deliberations.GetByID(ctx, resourceID)
	if errors.Is(err, deliberation.ErrNotFound) {
		return Deny(ReasonNotFound), nil
	}
	if err != nil {
		return Decision{}, err
	}

	if d.PubliclyVisible() {
		if action == ActionRead {
			return Allow(ReasonPublicResource), nil
		}
		// Anyone authenticated may join an active public deliberation.
		if action == ActionJoin && p != nil {
			return Allow(ReasonPublicResource), nil
		}
	}

	if p == nil {
		// A hidden deliberation looks missing, not merely locked.
		if !d.PubliclyVisible() {
			return Deny(ReasonNotFound), nil
		}
		return Deny(ReasonUnauthenticated), nil
	}

	return e.tenantStanding(ctx, p, action, d.ID, "", !d.PubliclyVisible())
}

func (e *Evaluator) evaluateScoped(ctx context.Context, p *principal.Principal, action Action, resourceType, resourceID string) (Decision, error) {
	meta, err := e.directory.Lookup(ctx, resourceType, resourceID)
	if errors.Is(err, deliberation.ErrResourceNotFound) {
		return Deny(ReasonNotFound), nil
	}
	if err != nil {
		return Decision{}, err
	}

	if meta.Public && action == ActionRead {
		return Allow(ReasonPublicResource), nil
	}

	// Resources inside a private or non-active deliberation deny as
	// not_found, so their existence does not leak.
	private := false
	if meta.DeliberationID != "" {
		private = true
		if d, err := e.deliberations.GetByID(ctx, meta.DeliberationID); err == nil {
			private = !d.PubliclyVisible()
		}
	}

	// Content of a publicly visible deliberation is readable by anyone,
	// the same as the deliberation itself.
	if meta.DeliberationID != "" && !private && action == ActionRead {
		return Allow(ReasonPublicResource), nil
	}

	if p == nil {
		if private {
			return Deny(ReasonNotFound), nil
		}
		return Deny(ReasonUnauthenticated), nil
	}

	if meta.DeliberationID == "" {
		// Owner-scoped or global resource, no tenant to check.
		return e.ownerStanding(p, action, meta.OwnerID, false), nil
	}

	return e.tenantStanding(ctx, p, action, meta.DeliberationID, meta.OwnerID, private)
}

// tenantStanding applies kernel membership checks, then ownership, then
// the default deny with not_found masking on private tenants.
func (e *Evaluator) tenantStanding(ctx context.Context, p *principal.Principal, action Action, deliberationID, ownerID string, private bool) (Decision, error) {
	facilitator, err := e.kernel.IsFacilitator(ctx, deliberationID, p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("checking facilitator standing: %w", err)
	}
	if facilitator {
		switch action {
		case ActionRead, ActionCreate, ActionUpdate, ActionDelete:
			return Allow(ReasonFacilitator), nil
		}
	}

	participant, err := e.kernel.IsParticipant(ctx, deliberationID, p.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("checking participant standing: %w", err)
	}
	if participant {
		switch action {
		case ActionRead, ActionCreate:
			return Allow(ReasonParticipant), nil
		}
	}

	if d := e.ownerStanding(p, action, ownerID, private); d.Allowed {
		return d, nil
	}

	if private {
		return Deny(ReasonNotFound), nil
	}
	return Deny(ReasonDenied), nil
}

func (e *Evaluator) ownerStanding(p *principal.Principal, action Action, ownerID string, private bool) Decision {
	if ownerID != "" && ownerID == p.ID {
		switch action {
		case ActionRead, ActionUpdate, ActionDelete:
			return Allow(ReasonOwner)
		}
	}
	if private {
		return Deny(ReasonNotFound)
	}
	return Deny(ReasonDenied)
}
