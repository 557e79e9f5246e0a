// Package audit provides access to the security_events table: the
// append-only record of authorisation and access-code activity.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Risk levels for security events. High and critical events are fanned
// out to subscribers and the alerting broker in addition to the table.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// SecurityEvent represents a single audit trail entry.
type SecurityEvent struct {
	ID           string         `json:"id"`
	PrincipalID  string         `json:"principal_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	RiskLevel    string         `json:"risk_level"`
	SourceIP     string         `json:"source_ip,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter controls which security events to return.
type Filter struct {
	Action       string // optional: filter by action (access_code.consume, principal.role_change, ...)
	ResourceType string // optional: filter by resource type (access_code, principal, deliberation, ...)
	ResourceID   string // optional: filter by specific resource ID
	PrincipalID  string // optional: filter by acting principal
	RiskLevel    string // optional: filter by risk level
	Limit        int    // default 50, max 200
	Offset       int    // pagination offset
}

// ListResult contains the paginated security event results.
type ListResult struct {
	Events []SecurityEvent `json:"events"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Repository defines the interface for security event operations.
type Repository interface {
	Create(ctx context.Context, event *SecurityEvent) error
	CreateTx(ctx context.Context, tx *sql.Tx, event *SecurityEvent) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteRepository stores security events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new security event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new security event. The ID, RiskLevel and CreatedAt
// are defaulted if empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *SecurityEvent) error {
	return insertEvent(ctx, r.db, event)
}

// CreateTx inserts a new security event inside an existing transaction,
// so the event commits or rolls back together with the state change it
// records.
func (r *SQLiteRepository) CreateTx(ctx context.Context, tx *sql.Tx, event *SecurityEvent) error {
	return insertEvent(ctx, tx, event)
}

func insertEvent(ctx context.Context, db execer, event *SecurityEvent) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:8]
	}
	if event.RiskLevel == "" {
		event.RiskLevel = RiskLow
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if event.Details != nil {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO security_events (id, principal_id, action, resource_type, resource_id, details, risk_level, source_ip, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, nullableString(event.PrincipalID), event.Action, event.ResourceType,
		nullableString(event.ResourceID), detailsJSON,
		event.RiskLevel, nullableString(event.SourceIP),
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns security events matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit,gocyclo // dynamic query builder: WHERE clause assembly from filter fields
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for security event queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = ?")
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.PrincipalID != "" {
		conditions = append(conditions, "principal_id = ?")
		args = append(args, filter.PrincipalID)
	}
	if filter.RiskLevel != "" {
		conditions = append(conditions, "risk_level = ?")
		args = append(args, filter.RiskLevel)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM security_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting security events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, principal_id, action, resource_type, resource_id, details, risk_level, source_ip, created_at FROM security_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var event SecurityEvent
		var principalID, resourceID, detailsJSON, sourceIP sql.NullString
		var createdAt string

		if err := rows.Scan(&event.ID, &principalID, &event.Action, &event.ResourceType,
			&resourceID, &detailsJSON, &event.RiskLevel, &sourceIP, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}

		if principalID.Valid {
			event.PrincipalID = principalID.String
		}
		if resourceID.Valid {
			event.ResourceID = resourceID.String
		}
		if sourceIP.Valid {
			event.SourceIP = sourceIP.String
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				event.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05Z", createdAt)
			if err != nil {
				return nil, fmt.Errorf("parsing security event timestamp %q: %w", createdAt, err)
			}
		}
		event.CreatedAt = t

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security events: %w", err)
	}

	if events == nil {
		events = []SecurityEvent{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
