package accesscode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/infrastructure/config"
)

// MetricsSink receives validation outcome measurements. Implementations
// must not block; nil disables emission.
type MetricsSink interface {
	WriteValidation(reason string, valid bool)
}

// Manager implements the access code lifecycle: generation, validation
// with the brute-force guard in front, and atomic consumption with the
// audit record in the same transaction.
type Manager struct {
	db       *sql.DB
	repo     Repository
	guard    *Guard
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  MetricsSink

	codeLength    int
	maxAttempts   int
	defaultExpiry time.Duration
}

// NewManager creates an access code manager.
func NewManager(db *sql.DB, repo Repository, guard *Guard, recorder *audit.Recorder, logger *slog.Logger, cfg config.AccessCodeConfig) *Manager {
	return &Manager{
		db:            db,
		repo:          repo,
		guard:         guard,
		recorder:      recorder,
		logger:        logger,
		codeLength:    cfg.Length,
		maxAttempts:   cfg.MaxGenerateAttempts,
		defaultExpiry: time.Duration(cfg.DefaultExpiryHours) * time.Hour,
	}
}

// Generate produces a new unique access code. Candidates that fail the
// quality checks or collide with an existing code count against the
// attempt cap; exhausting it returns ErrGenerationExhausted.
func (m *Manager) Generate(ctx context.Context, codeType string, maxUses *int, expiresAt *time.Time, createdBy string) (*AccessCode, error) {
	if codeType != TypeAdmin && codeType != TypeUser {
		return nil, ErrInvalidCodeType
	}

	if expiresAt == nil && m.defaultExpiry > 0 {
		t := time.Now().UTC().Add(m.defaultExpiry)
		expiresAt = &t
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		candidate, err := randomCode(m.codeLength)
		if err != nil {
			return nil, err
		}
		if !acceptable(candidate) {
			continue
		}

		exists, err := m.repo.Exists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		code := &AccessCode{
			Code:      candidate,
			CodeType:  codeType,
			IsActive:  true,
			MaxUses:   maxUses,
			ExpiresAt: expiresAt,
			CreatedBy: createdBy,
		}
		if err := m.repo.Create(ctx, code); err != nil {
			return nil, err
		}

		m.recorder.Record(ctx, &audit.SecurityEvent{
			PrincipalID:  createdBy,
			Action:       "access_code.generate",
			ResourceType: "access_code",
			ResourceID:   code.Code,
			Details:      map[string]any{"code_type": codeType},
			RiskLevel:    audit.RiskLow,
		})

		return code, nil
	}

	return nil, ErrGenerationExhausted
}

// SetMetrics attaches a validation metrics sink.
func (m *Manager) SetMetrics(sink MetricsSink) {
	m.metrics = sink
}

// Validate checks a code without consuming it. Format is checked before
// any storage access, so malformed input never produces a row read or
// an audit entry referencing a stored code. The remaining checks run in
// order: exists, active, not expired, uses remaining; the first failure
// wins. Every failure counts against the source's brute-force budget.
func (m *Manager) Validate(ctx context.Context, code, sourceIP string) (*ValidationResult, error) {
	result, err := m.validate(ctx, code, sourceIP)
	if err == nil && m.metrics != nil {
		reason := result.Reason
		if result.Valid {
			reason = "valid"
		}
		m.metrics.WriteValidation(reason, result.Valid)
	}
	return result, err
}

func (m *Manager) validate(ctx context.Context, code, sourceIP string) (*ValidationResult, error) {
	now := time.Now().UTC()

	if until, ok := m.guard.Allow(sourceIP, now); !ok {
		return &ValidationResult{Valid: false, Reason: ReasonRateLimited, BlockedUntil: &until}, nil
	}

	code = strings.ToUpper(strings.TrimSpace(code))

	if !validFormat(code, m.codeLength) {
		m.recordFailure(ctx, sourceIP, now, ReasonInvalidFormat, map[string]any{
			"attempted_length": len(code),
		})
		return &ValidationResult{Valid: false, Reason: ReasonInvalidFormat}, nil
	}

	ac, err := m.repo.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		m.recordFailure(ctx, sourceIP, now, ReasonCodeNotFound, map[string]any{
			"attempted_code": maskCode(code),
		})
		return &ValidationResult{Valid: false, Reason: ReasonCodeNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validating access code: %w", err)
	}

	if reason := m.checkState(ac, now); reason != "" {
		m.recordFailure(ctx, sourceIP, now, reason, map[string]any{
			"attempted_code": maskCode(code),
			"code_type":      ac.CodeType,
		})
		return &ValidationResult{Valid: false, Reason: reason}, nil
	}

	return &ValidationResult{
		Valid:         true,
		CodeType:      ac.CodeType,
		RemainingUses: ac.RemainingUses(),
	}, nil
}

func (m *Manager) checkState(ac *AccessCode, now time.Time) string {
	switch {
	case !ac.IsActive:
		return ReasonCodeInactive
	case ac.Expired(now):
		return ReasonCodeExpired
	case ac.Exhausted():
		return ReasonMaxUsesExceeded
	default:
		return ""
	}
}

func (m *Manager) recordFailure(ctx context.Context, sourceIP string, now time.Time, reason string, details map[string]any) {
	details["reason"] = reason

	m.recorder.Record(ctx, &audit.SecurityEvent{
		Action:       "access_code.validate_failed",
		ResourceType: "access_code",
		Details:      details,
		RiskLevel:    audit.RiskLow,
		SourceIP:     sourceIP,
	})

	if until, escalated := m.guard.RecordFailure(sourceIP, now); escalated {
		m.logger.Warn("access code brute-force threshold crossed",
			"source_ip", sourceIP,
			"blocked_until", until)
		m.recorder.Record(ctx, &audit.SecurityEvent{
			Action:       "access_code.rate_limited",
			ResourceType: "access_code",
			Details: map[string]any{
				"blocked_until": until.Format(time.RFC3339),
			},
			RiskLevel: audit.RiskCritical,
			SourceIP:  sourceIP,
		})
	}
}

// Consume atomically uses one charge of a code. The validity re-check,
// the increment and the audit record share one transaction, so a code
// that expired or ran out between an earlier Validate and this call
// fails with ErrNoLongerValid, and a rollback leaves no audit trace of
// a consumption that never happened.
func (m *Manager) Consume(ctx context.Context, code, sourceIP string) (*ConsumeResult, error) {
	return m.ConsumeAndBind(ctx, code, sourceIP, nil)
}

// ConsumeAndBind consumes one charge and runs bind inside the same
// transaction. The identity resolver uses this to create the principal
// a registration code stands for and stamp used_by: a bind failure
// rolls the consume back, so a use can never be burned unbound.
func (m *Manager) ConsumeAndBind(ctx context.Context, code, sourceIP string, bind func(context.Context, *sql.Tx, *AccessCode) error) (*ConsumeResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validFormat(code, m.codeLength) {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning consume transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	ac, err := m.repo.ConsumeTx(ctx, tx, code, now)
	if err != nil {
		return nil, err
	}

	if bind != nil {
		if err := bind(ctx, tx, ac); err != nil {
			return nil, fmt.Errorf("binding consumed code: %w", err)
		}
	}

	if err := m.recorder.RecordTx(ctx, tx, &audit.SecurityEvent{
		Action:       "access_code.consume",
		ResourceType: "access_code",
		ResourceID:   ac.Code,
		Details: map[string]any{
			"code_type":    ac.CodeType,
			"current_uses": ac.CurrentUses,
		},
		RiskLevel: audit.RiskLow,
		SourceIP:  sourceIP,
	}); err != nil {
		return nil, fmt.Errorf("recording consume event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing consume transaction: %w", err)
	}

	return &ConsumeResult{Success: true, CodeType: ac.CodeType}, nil
}

// Deactivate permanently disables a code. Admin-gated by the caller.
func (m *Manager) Deactivate(ctx context.Context, code, actorID string) error {
	return m.adminMutation(ctx, code, actorID, "access_code.deactivate", m.repo.DeactivateTx)
}

// ResetUses returns a used code to circulation. Admin-gated by the caller.
func (m *Manager) ResetUses(ctx context.Context, code, actorID string) error {
	return m.adminMutation(ctx, code, actorID, "access_code.reset_uses", m.repo.ResetUsesTx)
}

func (m *Manager) adminMutation(ctx context.Context, code, actorID, action string, op func(context.Context, *sql.Tx, string) error) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	if err := op(ctx, tx, code); err != nil {
		return err
	}

	if err := m.recorder.RecordTx(ctx, tx, &audit.SecurityEvent{
		PrincipalID:  actorID,
		Action:       action,
		ResourceType: "access_code",
		ResourceID:   code,
		RiskLevel:    audit.RiskMedium,
	}); err != nil {
		return fmt.Errorf("recording %s event: %w", action, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
