package deliberation

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE principals (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		role         TEXT NOT NULL DEFAULT 'user',
		archived     INTEGER NOT NULL DEFAULT 0
	) STRICT;

	CREATE TABLE deliberations (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		visibility     TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('public', 'private')),
		status         TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'concluded', 'archived')),
		facilitator_id TEXT NOT NULL,
		created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (facilitator_id) REFERENCES principals(id)
	) STRICT;

	CREATE TABLE participants (
		deliberation_id TEXT NOT NULL,
		principal_id    TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'facilitator')),
		joined_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		PRIMARY KEY (deliberation_id, principal_id),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
	) STRICT;

	CREATE TABLE messages (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		author_id       TEXT NOT NULL,
		body            TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (author_id) REFERENCES principals(id)
	) STRICT;

	CREATE TABLE graph_nodes (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		node_type       TEXT NOT NULL CHECK (node_type IN ('issue', 'position', 'argument')),
		label           TEXT NOT NULL,
		created_by      TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (created_by) REFERENCES principals(id)
	) STRICT;

	CREATE TABLE graph_relationships (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		from_node       TEXT NOT NULL,
		to_node         TEXT NOT NULL,
		rel_type        TEXT NOT NULL CHECK (rel_type IN ('supports', 'opposes', 'responds_to')),
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (from_node) REFERENCES graph_nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (to_node) REFERENCES graph_nodes(id) ON DELETE CASCADE
	) STRICT;

	CREATE TABLE agent_configurations (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT,
		owner_id        TEXT,
		name            TEXT NOT NULL,
		is_default      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (owner_id) REFERENCES principals(id) ON DELETE CASCADE
	) STRICT;

	CREATE TABLE stored_files (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT,
		owner_id        TEXT NOT NULL,
		path            TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		FOREIGN KEY (deliberation_id) REFERENCES deliberations(id) ON DELETE CASCADE,
		FOREIGN KEY (owner_id) REFERENCES principals(id) ON DELETE CASCADE
	) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	seed := `
	INSERT INTO principals (id, display_name, role) VALUES
		('prn-fac11111', 'Facilitator', 'user'),
		('prn-mem22222', 'Member', 'user'),
		('prn-out33333', 'Outsider', 'user');
	`
	if _, err := db.Exec(seed); err != nil {
		t.Fatalf("failed to seed principals: %v", err)
	}

	return db
}

func seedDeliberation(t *testing.T, repo Repository, d *Deliberation) *Deliberation {
	t.Helper()

	if d.Title == "" {
		d.Title = "Test deliberation"
	}
	if d.FacilitatorID == "" {
		d.FacilitatorID = "prn-fac11111"
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("failed to seed deliberation: %v", err)
	}
	return d
}
