package deliberation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for deliberation and membership
// persistence.
type Repository interface {
	Create(ctx context.Context, d *Deliberation) error
	GetByID(ctx context.Context, id string) (*Deliberation, error)
	List(ctx context.Context) ([]Deliberation, error)
	ListVisibleTo(ctx context.Context, principalID string) ([]Deliberation, error)
	UpdateStatus(ctx context.Context, id, status string) error

	AddParticipant(ctx context.Context, p *Participant) error
	RemoveParticipant(ctx context.Context, deliberationID, principalID string) error
	GetParticipant(ctx context.Context, deliberationID, principalID string) (*Participant, error)
	ListParticipants(ctx context.Context, deliberationID string) ([]Participant, error)
}

// SQLiteRepository stores deliberations in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new deliberation repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deliberationColumns = `id, title, visibility, status, facilitator_id, created_at, updated_at`

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanDeliberation(s scanner) (*Deliberation, error) {
	var d Deliberation
	var createdAt, updatedAt string

	if err := s.Scan(&d.ID, &d.Title, &d.Visibility, &d.Status,
		&d.FacilitatorID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
	}
	return t, err
}

// Create inserts a new deliberation. ID, visibility, status and
// timestamps are defaulted if empty.
func (r *SQLiteRepository) Create(ctx context.Context, d *Deliberation) error {
	if d.ID == "" {
		d.ID = "del-" + uuid.NewString()[:8]
	}
	if d.Visibility == "" {
		d.Visibility = VisibilityPrivate
	}
	if d.Visibility != VisibilityPublic && d.Visibility != VisibilityPrivate {
		return ErrInvalidVisibility
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	if _, ok := statusTransitions[d.Status]; !ok && d.Status != StatusArchived {
		return ErrInvalidStatus
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deliberations (id, title, visibility, status, facilitator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Visibility, d.Status, d.FacilitatorID,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting deliberation: %w", err)
	}

	return nil
}

// GetByID returns a single deliberation, or ErrNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Deliberation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deliberationColumns+` FROM deliberations WHERE id = ?`, id)

	d, err := scanDeliberation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying deliberation: %w", err)
	}

	return d, nil
}

// List returns all deliberations, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Deliberation, error) {
	return r.queryMany(ctx,
		`SELECT `+deliberationColumns+` FROM deliberations ORDER BY created_at DESC, id`)
}

// ListVisibleTo returns the deliberations a principal may see without
// admin standing: active public ones, plus any they participate in or
// facilitate.
func (r *SQLiteRepository) ListVisibleTo(ctx context.Context, principalID string) ([]Deliberation, error) {
	return r.queryMany(ctx,
		`SELECT `+deliberationColumns+` FROM deliberations
		 WHERE (visibility = 'public' AND status = 'active')
		    OR facilitator_id = ?
		    OR id IN (SELECT deliberation_id FROM participants WHERE principal_id = ?)
		 ORDER BY created_at DESC, id`,
		principalID, principalID)
}

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]Deliberation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliberations: %w", err)
	}
	defer rows.Close()

	out := []Deliberation{}
	for rows.Next() {
		d, err := scanDeliberation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deliberation: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliberations: %w", err)
	}

	return out, nil
}

// UpdateStatus moves a deliberation along its lifecycle. Only the
// forward transition from the current status is allowed.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE deliberations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating deliberation status: %w", err)
	}

	return nil
}

// AddParticipant joins a principal to a deliberation.
func (r *SQLiteRepository) AddParticipant(ctx context.Context, p *Participant) error {
	if p.Role == "" {
		p.Role = ParticipantMember
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (deliberation_id, principal_id, role, joined_at)
		 VALUES (?, ?, ?, ?)`,
		p.DeliberationID, p.PrincipalID, p.Role, p.JoinedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyParticipant
		}
		return fmt.Errorf("inserting participant: %w", err)
	}

	return nil
}

// RemoveParticipant removes a membership row.
func (r *SQLiteRepository) RemoveParticipant(ctx context.Context, deliberationID, principalID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM participants WHERE deliberation_id = ? AND principal_id = ?`,
		deliberationID, principalID)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrParticipantNotFound
	}

	return nil
}

// GetParticipant returns a membership row, or ErrParticipantNotFound.
func (r *SQLiteRepository) GetParticipant(ctx context.Context, deliberationID, principalID string) (*Participant, error) {
	var p Participant
	var joinedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT deliberation_id, principal_id, role, joined_at
		 FROM participants WHERE deliberation_id = ? AND principal_id = ?`,
		deliberationID, principalID).Scan(&p.DeliberationID, &p.PrincipalID, &p.Role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying participant: %w", err)
	}

	if p.JoinedAt, err = parseTime(joinedAt); err != nil {
		return nil, fmt.Errorf("parsing joined_at: %w", err)
	}

	return &p, nil
}

// ListParticipants returns all memberships of a deliberation.
func (r *SQLiteRepository) ListParticipants(ctx context.Context, deliberationID string) ([]Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT deliberation_id, principal_id, role, joined_at
		 FROM participants WHERE deliberation_id = ? ORDER BY joined_at, principal_id`,
		deliberationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	out := []Participant{}
	for rows.Next() {
		var p Participant
		var joinedAt string
		if err := rows.Scan(&p.DeliberationID, &p.PrincipalID, &p.Role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		if p.JoinedAt, err = parseTime(joinedAt); err != nil {
			return nil, fmt.Errorf("parsing joined_at: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participants: %w", err)
	}

	return out, nil
}
