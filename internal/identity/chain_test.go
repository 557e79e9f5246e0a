package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/principal"
)

func newChain(t *testing.T, f *fixture) *Chain {
	t.Helper()

	fedRepo := NewSQLiteFederatedRepository(f.db)
	return NewChain(slog.Default(),
		NewAccessCodeResolver(f.codes, f.codesRepo, f.principals, slog.Default()),
		NewSessionResolver(testSecret, f.principals),
		NewFederatedResolver(testSecret, "https://id.example.org", fedRepo, f.principals, slog.Default()),
	)
}

func TestChainFirstMatchWins(t *testing.T) {
	f := newFixture(t)
	chain := newChain(t, f)
	ctx := context.Background()

	// A session principal and an access code both present: the code is
	// earlier in the chain and wins.
	sessionP := &principal.Principal{DisplayName: "Session user", Role: principal.RoleUser}
	if err := f.principals.Create(ctx, sessionP); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	token, err := GenerateSessionToken(sessionP, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	if err := f.codesRepo.Create(ctx, &accesscode.AccessCode{
		Code: "A7K2M9XR4T", CodeType: accesscode.TypeUser, IsActive: true,
	}); err != nil {
		t.Fatalf("failed to seed code: %v", err)
	}

	p, err := chain.Resolve(ctx, Credentials{AccessCode: "A7K2M9XR4T", SessionToken: token})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p.ID == sessionP.ID {
		t.Error("expected access code resolver to win over session")
	}
}

func TestChainFallsThroughAbsentSchemes(t *testing.T) {
	f := newFixture(t)
	chain := newChain(t, f)
	ctx := context.Background()

	p := &principal.Principal{DisplayName: "Session user", Role: principal.RoleUser}
	if err := f.principals.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	token, err := GenerateSessionToken(p, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	got, err := chain.Resolve(ctx, Credentials{SessionToken: token})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("expected principal %s, got %s", p.ID, got.ID)
	}
}

func TestChainUnauthenticated(t *testing.T) {
	f := newFixture(t)
	chain := newChain(t, f)

	p, err := chain.Resolve(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil principal for empty credentials, got %+v", p)
	}
}

func TestChainRejectedCredentialAborts(t *testing.T) {
	f := newFixture(t)
	chain := newChain(t, f)
	ctx := context.Background()

	// A bad access code does not fall through to a valid session.
	p := &principal.Principal{DisplayName: "Session user", Role: principal.RoleUser}
	if err := f.principals.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	token, err := GenerateSessionToken(p, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	if _, err := chain.Resolve(ctx, Credentials{AccessCode: "ZZZZZZZZZZ", SessionToken: token}); !errors.Is(err, ErrCredentialRejected) {
		t.Errorf("expected ErrCredentialRejected, got %v", err)
	}
}

func TestChainRefusesArchivedPrincipal(t *testing.T) {
	f := newFixture(t)
	chain := newChain(t, f)
	ctx := context.Background()

	p := &principal.Principal{DisplayName: "Former user", Role: principal.RoleUser}
	if err := f.principals.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	token, err := GenerateSessionToken(p, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}
	if err := f.principals.Archive(ctx, p.ID, "", "left the platform"); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	if _, err := chain.Resolve(ctx, Credentials{SessionToken: token}); !errors.Is(err, principal.ErrArchived) {
		t.Errorf("expected ErrArchived, got %v", err)
	}
}
