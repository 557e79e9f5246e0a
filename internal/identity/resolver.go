package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openagora/agora-core/internal/principal"
)

// Sentinel errors for identity resolution.
var (
	// ErrTokenInvalid is returned when a presented token fails
	// signature, expiry or claim checks.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrCredentialRejected is returned when a credential was presented
	// but could not be resolved to a principal.
	ErrCredentialRejected = errors.New("credential rejected")
)

// Credentials carries everything a request presented that might
// identify it. Zero fields mean the scheme was not attempted.
type Credentials struct {
	AccessCode     string
	SessionToken   string
	FederatedToken string
	SourceIP       string
}

// Resolver attempts to resolve one credential scheme to a principal.
// A (nil, nil) return means the scheme was not presented; an error
// means it was presented and rejected.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, creds Credentials) (*principal.Principal, error)
}

// Chain runs resolvers in order; the first non-nil principal wins.
// The composition is configured at startup, so adding or retiring a
// credential scheme is a wiring change, not a policy change.
type Chain struct {
	resolvers []Resolver
	logger    *slog.Logger
}

// NewChain creates a resolver chain.
func NewChain(logger *slog.Logger, resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers, logger: logger}
}

// Resolve returns the first principal any resolver produces. A
// presented-but-rejected credential aborts the chain with an error: a
// bad token is a refusal, not an invitation to try the next scheme.
// (nil, nil) means no scheme was presented and the request proceeds
// unauthenticated.
func (c *Chain) Resolve(ctx context.Context, creds Credentials) (*principal.Principal, error) {
	for _, r := range c.resolvers {
		p, err := r.Resolve(ctx, creds)
		if err != nil {
			c.logger.Info("credential rejected",
				"resolver", r.Name(),
				"source_ip", creds.SourceIP,
				"error", err)
			return nil, fmt.Errorf("%s: %w", r.Name(), err)
		}
		if p != nil {
			if p.Archived {
				return nil, fmt.Errorf("%s: %w", r.Name(), principal.ErrArchived)
			}
			c.logger.Debug("identity resolved",
				"resolver", r.Name(),
				"principal_id", p.ID)
			return p, nil
		}
	}
	return nil, nil //nolint:nilnil // no credential presented means anonymous, not an error
}
