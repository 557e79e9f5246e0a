package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for principal persistence.
type Repository interface {
	Create(ctx context.Context, p *Principal) error
	CreateTx(ctx context.Context, tx *sql.Tx, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	Update(ctx context.Context, p *Principal) error
	UpdateRoleTx(ctx context.Context, tx *sql.Tx, id string, role Role) error
	SetPassword(ctx context.Context, id, passwordHash string) error
	Archive(ctx context.Context, id, archivedBy, reason string) error
	Unarchive(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountActiveAdmins(ctx context.Context) (int, error)
	CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed principal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const principalColumns = "id, display_name, role, archived, archived_by, archived_at, archived_reason, password_hash, created_at, updated_at"

// Create inserts a new principal. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, p *Principal) error {
	return insertPrincipal(ctx, r.db, p)
}

// CreateTx inserts a new principal inside an existing transaction. The
// access-code resolver uses this so the consume and the principal it
// creates commit or roll back together.
func (r *SQLiteRepository) CreateTx(ctx context.Context, tx *sql.Tx, p *Principal) error {
	return insertPrincipal(ctx, tx, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPrincipal(ctx context.Context, db execer, p *Principal) error {
	if p.ID == "" {
		p.ID = "prn-" + uuid.NewString()[:8]
	}
	if p.Role == "" {
		p.Role = RoleUser
	}
	if !IsValidRole(p.Role) {
		return ErrInvalidRole
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	p.UpdatedAt = p.CreatedAt

	_, err := db.ExecContext(ctx,
		`INSERT INTO principals (id, display_name, role, archived, archived_by, archived_at, archived_reason, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisplayName, string(p.Role), boolToInt(p.Archived),
		nullString(p.ArchivedBy), nullTime(p.ArchivedAt), nullString(p.ArchivedReason),
		nullString(p.PasswordHash), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by their unique ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Principal, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
	return scanPrincipal(row)
}

// List returns all principals ordered by creation date.
func (r *SQLiteRepository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+principalColumns+" FROM principals ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	var principals []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}

	if principals == nil {
		principals = []Principal{}
	}
	return principals, nil
}

// Update modifies a principal's non-role, non-archive fields (display_name).
// Role changes go through UpdateRoleTx; archive state through Archive.
func (r *SQLiteRepository) Update(ctx context.Context, p *Principal) error {
	now := time.Now().UTC().Format(time.RFC3339)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE principals SET display_name = ?, updated_at = ? WHERE id = ?`,
		p.DisplayName, now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRoleTx changes a principal's role inside the caller's transaction.
// The transaction boundary belongs to the policy layer so the role change
// and its audit record commit or roll back together.
func (r *SQLiteRepository) UpdateRoleTx(ctx context.Context, tx *sql.Tx, id string, role Role) error {
	if !IsValidRole(role) {
		return ErrInvalidRole
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.ExecContext(ctx,
		`UPDATE principals SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), now, id,
	)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPassword changes a principal's password hash.
func (r *SQLiteRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive marks a principal as archived. Archived principals fail every
// policy check but remain in storage for audit history.
func (r *SQLiteRepository) Archive(ctx context.Context, id, archivedBy, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE principals SET archived = 1, archived_by = ?, archived_at = ?, archived_reason = ?, updated_at = ? WHERE id = ?`,
		nullString(archivedBy), now, nullString(reason), now, id,
	)
	if err != nil {
		return fmt.Errorf("archiving principal: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Unarchive restores an archived principal.
func (r *SQLiteRepository) Unarchive(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE principals SET archived = 0, archived_by = NULL, archived_at = NULL, archived_reason = NULL, updated_at = ? WHERE id = ?`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("unarchiving principal: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of principals.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM principals").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// CountActiveAdmins returns the number of non-archived admin principals.
func (r *SQLiteRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM principals WHERE role = 'admin' AND archived = 0").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return count, nil
}

// CountOtherActiveAdmins returns the number of non-archived admins other
// than the given principal. Used by the last-admin guard.
func (r *SQLiteRepository) CountOtherActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM principals WHERE role = 'admin' AND archived = 0 AND id != ?",
		excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting other admins: %w", err)
	}
	return count, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanPrincipal scans a principal from any scanner (Row or Rows).
func scanPrincipal(s scanner) (*Principal, error) {
	var p Principal
	var archivedBy, archivedAt, archivedReason, passwordHash sql.NullString
	var role string
	var archived int
	var createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.DisplayName, &role, &archived,
		&archivedBy, &archivedAt, &archivedReason, &passwordHash,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.Role = Role(role)
	p.Archived = archived != 0
	if archivedBy.Valid {
		p.ArchivedBy = archivedBy.String
	}
	if archivedAt.Valid {
		t, _ := time.Parse(time.RFC3339, archivedAt.String) //nolint:errcheck // format is controlled
		p.ArchivedAt = &t
	}
	if archivedReason.Valid {
		p.ArchivedReason = archivedReason.String
	}
	if passwordHash.Valid {
		p.PasswordHash = passwordHash.String
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
