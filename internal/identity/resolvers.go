package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/principal"
)

// AccessCodeResolver resolves the access-code credential scheme. A code
// is a bearer identity: its first presentation consumes a use and
// creates the principal it stands for; later presentations resolve to
// that principal without consuming again. An admin reset clears the
// binding and returns the code to circulation.
type AccessCodeResolver struct {
	codes      *accesscode.Manager
	codesRepo  accesscode.Repository
	principals principal.Repository
	logger     *slog.Logger
}

// NewAccessCodeResolver creates an access-code resolver.
func NewAccessCodeResolver(codes *accesscode.Manager, codesRepo accesscode.Repository, principals principal.Repository, logger *slog.Logger) *AccessCodeResolver {
	return &AccessCodeResolver{codes: codes, codesRepo: codesRepo, principals: principals, logger: logger}
}

// Name identifies the resolver in logs and errors.
func (r *AccessCodeResolver) Name() string { return "access_code" }

// Resolve consumes or re-presents an access code. Codes are normalised
// the same way Validate and Consume normalise them, so a lowercase code
// accepted on /access-codes/validate also resolves here.
func (r *AccessCodeResolver) Resolve(ctx context.Context, creds Credentials) (*principal.Principal, error) {
	if creds.AccessCode == "" {
		return nil, nil //nolint:nilnil // scheme not presented
	}

	presented := strings.ToUpper(strings.TrimSpace(creds.AccessCode))

	code, err := r.codesRepo.GetByCode(ctx, presented)
	if errors.Is(err, accesscode.ErrNotFound) {
		return nil, ErrCredentialRejected
	}
	if err != nil {
		return nil, err
	}

	if code.UsedBy != "" {
		p, err := r.principals.GetByID(ctx, code.UsedBy)
		if errors.Is(err, principal.ErrNotFound) {
			return nil, ErrCredentialRejected
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	// First presentation: the consume, the principal it creates and the
	// used_by binding share one transaction. A failure anywhere rolls
	// the whole onboarding back instead of burning an unbound use.
	p := &principal.Principal{}
	result, err := r.codes.ConsumeAndBind(ctx, presented, creds.SourceIP,
		func(ctx context.Context, tx *sql.Tx, ac *accesscode.AccessCode) error {
			p.DisplayName = "Code holder " + ac.Code[:4]
			p.Role = principal.RoleUser
			if ac.CodeType == accesscode.TypeAdmin {
				p.Role = principal.RoleAdmin
			}
			if err := r.principals.CreateTx(ctx, tx, p); err != nil {
				return fmt.Errorf("creating code-holder principal: %w", err)
			}
			return r.codesRepo.AssignUsedByTx(ctx, tx, ac.Code, p.ID)
		})
	if errors.Is(err, accesscode.ErrNoLongerValid) || errors.Is(err, accesscode.ErrNotFound) {
		return nil, ErrCredentialRejected
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("access code resolved to new principal",
		"principal_id", p.ID,
		"code_type", result.CodeType)

	return p, nil
}

// SessionResolver resolves session JWTs issued at login. The token
// carries only the principal ID; the row is re-read so role changes and
// archival take effect immediately.
type SessionResolver struct {
	secret     string
	principals principal.Repository
}

// NewSessionResolver creates a session token resolver.
func NewSessionResolver(secret string, principals principal.Repository) *SessionResolver {
	return &SessionResolver{secret: secret, principals: principals}
}

// Name identifies the resolver in logs and errors.
func (r *SessionResolver) Name() string { return "session" }

// Resolve validates a session token and loads its principal.
func (r *SessionResolver) Resolve(ctx context.Context, creds Credentials) (*principal.Principal, error) {
	if creds.SessionToken == "" {
		return nil, nil //nolint:nilnil // scheme not presented
	}

	claims, err := ParseSessionToken(creds.SessionToken, r.secret)
	if err != nil {
		return nil, err
	}

	p, err := r.principals.GetByID(ctx, claims.Subject)
	if errors.Is(err, principal.ErrNotFound) {
		return nil, ErrCredentialRejected
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

// federatedClaims are the claims expected from an upstream identity
// provider token.
type federatedClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// FederatedResolver resolves tokens minted by an external identity
// provider. Unknown subjects get a principal created on first
// resolution, so federated users onboard without an access code.
type FederatedResolver struct {
	secret     string
	issuer     string
	federated  FederatedRepository
	principals principal.Repository
	logger     *slog.Logger
}

// NewFederatedResolver creates a federated token resolver.
func NewFederatedResolver(secret, issuer string, federated FederatedRepository, principals principal.Repository, logger *slog.Logger) *FederatedResolver {
	return &FederatedResolver{secret: secret, issuer: issuer, federated: federated, principals: principals, logger: logger}
}

// Name identifies the resolver in logs and errors.
func (r *FederatedResolver) Name() string { return "federated" }

// Resolve validates a federated token and maps its subject to a
// principal, creating one on first sight.
func (r *FederatedResolver) Resolve(ctx context.Context, creds Credentials) (*principal.Principal, error) {
	if creds.FederatedToken == "" {
		return nil, nil //nolint:nilnil // scheme not presented
	}

	token, err := jwt.ParseWithClaims(creds.FederatedToken, &federatedClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(r.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(r.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*federatedClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	principalID, err := r.federated.Lookup(ctx, r.issuer, claims.Subject)
	switch {
	case errors.Is(err, ErrFederatedNotFound):
		return r.onboard(ctx, claims)
	case err != nil:
		return nil, err
	}

	p, err := r.principals.GetByID(ctx, principalID)
	if errors.Is(err, principal.ErrNotFound) {
		return nil, ErrCredentialRejected
	}
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (r *FederatedResolver) onboard(ctx context.Context, claims *federatedClaims) (*principal.Principal, error) {
	displayName := claims.Name
	if displayName == "" {
		displayName = claims.Subject
	}

	p := &principal.Principal{DisplayName: displayName, Role: principal.RoleUser}
	if err := r.principals.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating federated principal: %w", err)
	}
	if err := r.federated.Create(ctx, r.issuer, claims.Subject, p.ID); err != nil {
		return nil, err
	}

	r.logger.Info("federated identity onboarded",
		"principal_id", p.ID,
		"subject", claims.Subject)

	return p, nil
}
