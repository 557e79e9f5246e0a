package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrFederatedNotFound is returned when no mapping exists for a
// provider/subject pair.
var ErrFederatedNotFound = errors.New("federated identity not found")

// FederatedRepository maps external identity provider subjects to
// principals.
type FederatedRepository interface {
	Lookup(ctx context.Context, provider, subject string) (string, error)
	Create(ctx context.Context, provider, subject, principalID string) error
}

// SQLiteFederatedRepository stores federated identity mappings in SQLite.
type SQLiteFederatedRepository struct {
	db *sql.DB
}

// NewSQLiteFederatedRepository creates a federated identity repository.
func NewSQLiteFederatedRepository(db *sql.DB) *SQLiteFederatedRepository {
	return &SQLiteFederatedRepository{db: db}
}

// Lookup returns the principal ID mapped to a provider/subject pair, or
// ErrFederatedNotFound.
func (r *SQLiteFederatedRepository) Lookup(ctx context.Context, provider, subject string) (string, error) {
	var principalID string
	err := r.db.QueryRowContext(ctx,
		`SELECT principal_id FROM federated_identities WHERE provider = ? AND subject = ?`,
		provider, subject).Scan(&principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrFederatedNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying federated identity: %w", err)
	}
	return principalID, nil
}

// Create inserts a new provider/subject to principal mapping.
func (r *SQLiteFederatedRepository) Create(ctx context.Context, provider, subject, principalID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO federated_identities (provider, subject, principal_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		provider, subject, principalID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting federated identity: %w", err)
	}
	return nil
}
