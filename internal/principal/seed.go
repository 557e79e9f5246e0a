package principal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedAdmin creates the initial admin principal on first boot if no
// principals exist. This keeps the "at least one admin" invariant true from
// the very first request. The generated password is logged - it must be
// changed immediately.
//
// Returns the seeded principal and password (nil and empty string if
// seeding was skipped).
func SeedAdmin(ctx context.Context, repo Repository, logger *slog.Logger) (*Principal, string, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("checking principal count: %w", err)
	}

	if count > 0 {
		logger.Info("principals exist, skipping admin seed")
		return nil, "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &Principal{
		DisplayName:  "Platform Admin",
		Role:         RoleAdmin,
		PasswordHash: hash,
	}

	if err := repo.Create(ctx, admin); err != nil {
		return nil, "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin principal created",
		"principal_id", admin.ID,
		"password", password,
		"action_required", "change this password immediately",
	)

	return admin, password, nil
}
