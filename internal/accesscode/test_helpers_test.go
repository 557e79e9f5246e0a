package accesscode

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/infrastructure/config"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Single writer connection, matching production.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE principals (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role         TEXT NOT NULL DEFAULT 'user',
		archived     INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE access_codes (
		code         TEXT PRIMARY KEY,
		code_type    TEXT NOT NULL CHECK (code_type IN ('admin', 'user')),
		is_active    INTEGER NOT NULL DEFAULT 1,
		current_uses INTEGER NOT NULL DEFAULT 0,
		max_uses     INTEGER,
		expires_at   TEXT,
		used_by      TEXT,
		last_used_at TEXT,
		created_by   TEXT,
		created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		CHECK (max_uses IS NULL OR current_uses <= max_uses),
		FOREIGN KEY (used_by) REFERENCES principals(id) ON DELETE SET NULL,
		FOREIGN KEY (created_by) REFERENCES principals(id) ON DELETE SET NULL
	) STRICT;

	CREATE TABLE security_events (
		id            TEXT PRIMARY KEY,
		principal_id  TEXT,
		action        TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT,
		details       TEXT,
		risk_level    TEXT NOT NULL DEFAULT 'low' CHECK (risk_level IN ('low', 'medium', 'high', 'critical')),
		source_ip     TEXT,
		created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func testManager(t *testing.T, db *sql.DB) *Manager {
	t.Helper()

	cfg := config.AccessCodeConfig{
		Length:              10,
		MaxGenerateAttempts: 20,
	}
	guard := NewGuard(6, time.Hour, time.Hour, 0, 0)
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db), slog.Default())

	return NewManager(db, NewSQLiteRepository(db), guard, recorder, slog.Default(), cfg)
}

// seedCode inserts a code row directly, bypassing generation.
func seedCode(t *testing.T, db *sql.DB, code *AccessCode) {
	t.Helper()

	if err := NewSQLiteRepository(db).Create(context.Background(), code); err != nil {
		t.Fatalf("failed to seed access code: %v", err)
	}
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
