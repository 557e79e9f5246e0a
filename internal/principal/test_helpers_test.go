package principal

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the principals table
// applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "principal-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE principals (
			id              TEXT PRIMARY KEY,
			display_name    TEXT NOT NULL,
			role            TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'moderator', 'admin')),
			archived        INTEGER NOT NULL DEFAULT 0,
			archived_by     TEXT,
			archived_at     TEXT,
			archived_reason TEXT,
			password_hash   TEXT,
			created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (archived_by) REFERENCES principals(id) ON DELETE SET NULL
		) STRICT;

		CREATE INDEX idx_principals_role ON principals(role);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying principal schema: %v", err)
	}

	return db
}

// seedPrincipal inserts a test principal with the given role and returns it.
func seedPrincipal(t *testing.T, db *sql.DB, name string, role Role) *Principal {
	t.Helper()

	repo := NewSQLiteRepository(db)
	p := &Principal{
		DisplayName: name,
		Role:        role,
	}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("creating test principal %s: %v", name, err)
	}
	return p
}
