package accesscode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for access code persistence.
type Repository interface {
	Create(ctx context.Context, code *AccessCode) error
	GetByCode(ctx context.Context, code string) (*AccessCode, error)
	Exists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]AccessCode, error)

	// ConsumeTx re-checks validity and increments current_uses as a
	// single conditional update inside the caller's transaction.
	ConsumeTx(ctx context.Context, tx *sql.Tx, code string, now time.Time) (*AccessCode, error)

	DeactivateTx(ctx context.Context, tx *sql.Tx, code string) error
	ResetUsesTx(ctx context.Context, tx *sql.Tx, code string) error

	// AssignUsedByTx links a consumed code to the principal it created,
	// inside the consume transaction, so a burned use can never be left
	// unbound.
	AssignUsedByTx(ctx context.Context, tx *sql.Tx, code, principalID string) error
}

// SQLiteRepository stores access codes in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new access code repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const accessCodeColumns = `code, code_type, is_active, current_uses, max_uses, expires_at, used_by, last_used_at, created_by, created_at`

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccessCode(s scanner) (*AccessCode, error) {
	var ac AccessCode
	var isActive int
	var maxUses sql.NullInt64
	var expiresAt, usedBy, lastUsedAt, createdBy sql.NullString
	var createdAt string

	if err := s.Scan(&ac.Code, &ac.CodeType, &isActive, &ac.CurrentUses,
		&maxUses, &expiresAt, &usedBy, &lastUsedAt, &createdBy, &createdAt); err != nil {
		return nil, err
	}

	ac.IsActive = isActive != 0
	if maxUses.Valid {
		v := int(maxUses.Int64)
		ac.MaxUses = &v
	}
	if usedBy.Valid {
		ac.UsedBy = usedBy.String
	}
	if createdBy.Valid {
		ac.CreatedBy = createdBy.String
	}

	var err error
	if ac.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if ac.LastUsedAt, err = parseNullTime(lastUsedAt); err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}
	if ac.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &ac, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
	}
	return t, err
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp is not an error
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create inserts a new access code. CreatedAt is set if zero.
func (r *SQLiteRepository) Create(ctx context.Context, code *AccessCode) error {
	if code.CodeType != TypeAdmin && code.CodeType != TypeUser {
		return ErrInvalidCodeType
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}

	var maxUses any
	if code.MaxUses != nil {
		maxUses = *code.MaxUses
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_codes (code, code_type, is_active, current_uses, max_uses, expires_at, used_by, last_used_at, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.CodeType, boolToInt(code.IsActive), code.CurrentUses,
		maxUses, nullTime(code.ExpiresAt), nullString(code.UsedBy),
		nullTime(code.LastUsedAt), nullString(code.CreatedBy),
		code.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting access code: %w", err)
	}

	return nil
}

// GetByCode returns a single access code, or ErrNotFound.
func (r *SQLiteRepository) GetByCode(ctx context.Context, code string) (*AccessCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accessCodeColumns+` FROM access_codes WHERE code = ?`, code)

	ac, err := scanAccessCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access code: %w", err)
	}

	return ac, nil
}

// Exists reports whether a code is already taken, active or not.
func (r *SQLiteRepository) Exists(ctx context.Context, code string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_codes WHERE code = ?`, code).Scan(&count); err != nil {
		return false, fmt.Errorf("checking access code existence: %w", err)
	}
	return count > 0, nil
}

// List returns all access codes, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]AccessCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accessCodeColumns+` FROM access_codes ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("querying access codes: %w", err)
	}
	defer rows.Close()

	codes := []AccessCode{}
	for rows.Next() {
		ac, err := scanAccessCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning access code: %w", err)
		}
		codes = append(codes, *ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access codes: %w", err)
	}

	return codes, nil
}

// ConsumeTx increments current_uses if and only if the code is still
// active, unexpired and under its use cap. The guards live in the
// UPDATE itself, so two concurrent consumers of a one-use code cannot
// both succeed: the second update matches zero rows.
func (r *SQLiteRepository) ConsumeTx(ctx context.Context, tx *sql.Tx, code string, now time.Time) (*AccessCode, error) {
	nowStr := now.UTC().Format(time.RFC3339)

	result, err := tx.ExecContext(ctx,
		`UPDATE access_codes
		 SET current_uses = current_uses + 1, last_used_at = ?
		 WHERE code = ?
		   AND is_active = 1
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND (max_uses IS NULL OR current_uses < max_uses)`,
		nowStr, code, nowStr,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming access code: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking consume result: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing code from one that lost the race.
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM access_codes WHERE code = ?`, code).Scan(&count); err != nil {
			return nil, fmt.Errorf("checking access code existence: %w", err)
		}
		if count == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrNoLongerValid
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+accessCodeColumns+` FROM access_codes WHERE code = ?`, code)
	ac, err := scanAccessCode(row)
	if err != nil {
		return nil, fmt.Errorf("reading consumed access code: %w", err)
	}

	return ac, nil
}

// DeactivateTx marks a code inactive. Deactivation is terminal.
func (r *SQLiteRepository) DeactivateTx(ctx context.Context, tx *sql.Tx, code string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE access_codes SET is_active = 0 WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("deactivating access code: %w", err)
	}
	return requireRow(result)
}

// ResetUsesTx returns a used code to its unused state.
func (r *SQLiteRepository) ResetUsesTx(ctx context.Context, tx *sql.Tx, code string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE access_codes SET current_uses = 0, used_by = NULL, last_used_at = NULL WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("resetting access code uses: %w", err)
	}
	return requireRow(result)
}

// AssignUsedByTx records which principal a consumed code resolved to.
func (r *SQLiteRepository) AssignUsedByTx(ctx context.Context, tx *sql.Tx, code, principalID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE access_codes SET used_by = ? WHERE code = ?`, principalID, code)
	if err != nil {
		return fmt.Errorf("assigning access code user: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
