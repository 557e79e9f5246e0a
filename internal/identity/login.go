package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/principal"
)

// LoginMetrics receives login outcome measurements. Implementations
// must not block; nil disables emission.
type LoginMetrics interface {
	WriteLogin(success bool)
}

// LoginService exchanges a principal ID and password for a session
// token. Password accounts are the durable tier above access codes:
// seeded admins and anyone who later sets a password.
type LoginService struct {
	principals principal.Repository
	recorder   *audit.Recorder
	logger     *slog.Logger
	metrics    LoginMetrics
	secret     string
	ttl        time.Duration
}

// NewLoginService creates a login service.
func NewLoginService(principals principal.Repository, recorder *audit.Recorder, logger *slog.Logger, secret string, ttl time.Duration) *LoginService {
	return &LoginService{principals: principals, recorder: recorder, logger: logger, secret: secret, ttl: ttl}
}

// Login verifies credentials and issues a session token. All failure
// modes return principal.ErrInvalidCredentials so the response does not
// reveal whether the account exists, is archived, or has no password.
func (s *LoginService) Login(ctx context.Context, principalID, password, sourceIP string) (string, *principal.Principal, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if errors.Is(err, principal.ErrNotFound) {
		s.recordFailure(ctx, principalID, sourceIP)
		return "", nil, principal.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if p.Archived || p.PasswordHash == "" {
		s.recordFailure(ctx, principalID, sourceIP)
		return "", nil, principal.ErrInvalidCredentials
	}

	ok, err := principal.VerifyPassword(password, p.PasswordHash)
	if err != nil || !ok {
		s.recordFailure(ctx, principalID, sourceIP)
		return "", nil, principal.ErrInvalidCredentials
	}

	token, err := GenerateSessionToken(p, s.secret, s.ttl)
	if err != nil {
		return "", nil, err
	}

	if s.metrics != nil {
		s.metrics.WriteLogin(true)
	}

	s.recorder.Record(ctx, &audit.SecurityEvent{
		PrincipalID:  p.ID,
		Action:       "auth.login",
		ResourceType: "principal",
		ResourceID:   p.ID,
		RiskLevel:    audit.RiskLow,
		SourceIP:     sourceIP,
	})

	return token, p, nil
}

// SetMetrics attaches a login metrics sink.
func (s *LoginService) SetMetrics(sink LoginMetrics) {
	s.metrics = sink
}

func (s *LoginService) recordFailure(ctx context.Context, principalID, sourceIP string) {
	if s.metrics != nil {
		s.metrics.WriteLogin(false)
	}

	s.recorder.Record(ctx, &audit.SecurityEvent{
		Action:       "auth.login_failed",
		ResourceType: "principal",
		ResourceID:   principalID,
		RiskLevel:    audit.RiskMedium,
		SourceIP:     sourceIP,
	})
}
