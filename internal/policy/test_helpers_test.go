package policy

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/principal"
	"github.com/openagora/agora-core/internal/trust"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
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
		updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE deliberations (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		visibility     TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('public', 'private')),
		status         TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'concluded', 'archived')),
		facilitator_id TEXT NOT NULL,
		created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE participants (
		deliberation_id TEXT NOT NULL,
		principal_id    TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'facilitator')),
		joined_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		PRIMARY KEY (deliberation_id, principal_id)
	) STRICT;

	CREATE TABLE messages (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		author_id       TEXT NOT NULL,
		body            TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE graph_nodes (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		node_type       TEXT NOT NULL,
		label           TEXT NOT NULL,
		created_by      TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE graph_relationships (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT NOT NULL,
		from_node       TEXT NOT NULL,
		to_node         TEXT NOT NULL,
		rel_type        TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE agent_configurations (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT,
		owner_id        TEXT,
		name            TEXT NOT NULL,
		is_default      INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE stored_files (
		id              TEXT PRIMARY KEY,
		deliberation_id TEXT,
		owner_id        TEXT NOT NULL,
		path            TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
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

type testWorld struct {
	db        *sql.DB
	evaluator *Evaluator
	repos     struct {
		principals    principal.Repository
		deliberations deliberation.Repository
		resources     *deliberation.ResourceStore
		events        *audit.SQLiteRepository
	}
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	db := testDB(t)
	w := &testWorld{db: db}
	w.repos.principals = principal.NewSQLiteRepository(db)
	w.repos.deliberations = deliberation.NewSQLiteRepository(db)
	w.repos.resources = deliberation.NewResourceStore(db)
	w.repos.events = audit.NewSQLiteRepository(db)

	recorder := audit.NewRecorder(w.repos.events, slog.Default())
	w.evaluator = NewEvaluator(
		db,
		w.repos.principals,
		w.repos.deliberations,
		deliberation.NewDirectory(db),
		trust.NewKernel(db),
		recorder,
		nil,
		slog.Default(),
	)

	return w
}

func (w *testWorld) principal(t *testing.T, id string, role principal.Role, archived bool) *principal.Principal {
	t.Helper()

	archivedInt := 0
	if archived {
		archivedInt = 1
	}
	_, err := w.db.Exec(
		`INSERT INTO principals (id, display_name, role, archived) VALUES (?, ?, ?, ?)`,
		id, "Principal "+id, string(role), archivedInt)
	if err != nil {
		t.Fatalf("failed to seed principal: %v", err)
	}

	return &principal.Principal{ID: id, DisplayName: "Principal " + id, Role: role, Archived: archived}
}

func (w *testWorld) deliberation(t *testing.T, id, visibility, status, facilitatorID string) *deliberation.Deliberation {
	t.Helper()

	_, err := w.db.Exec(
		`INSERT INTO deliberations (id, title, visibility, status, facilitator_id) VALUES (?, ?, ?, ?, ?)`,
		id, "Deliberation "+id, visibility, status, facilitatorID)
	if err != nil {
		t.Fatalf("failed to seed deliberation: %v", err)
	}

	return &deliberation.Deliberation{ID: id, Visibility: visibility, Status: status, FacilitatorID: facilitatorID}
}

func (w *testWorld) join(t *testing.T, deliberationID, principalID, role string) {
	t.Helper()

	_, err := w.db.Exec(
		`INSERT INTO participants (deliberation_id, principal_id, role) VALUES (?, ?, ?)`,
		deliberationID, principalID, role)
	if err != nil {
		t.Fatalf("failed to seed participant: %v", err)
	}
}

func (w *testWorld) message(t *testing.T, id, deliberationID, authorID string) {
	t.Helper()

	if err := w.repos.resources.CreateMessage(context.Background(), &deliberation.Message{
		ID: id, DeliberationID: deliberationID, AuthorID: authorID, Body: "body of " + id,
	}); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
}

func mustDecision(t *testing.T, w *testWorld, p *principal.Principal, action Action, resourceType, resourceID string) Decision {
	t.Helper()

	d, err := w.evaluator.Evaluate(context.Background(), p, action, resourceType, resourceID)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return d
}
