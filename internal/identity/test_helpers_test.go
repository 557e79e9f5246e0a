package identity

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/infrastructure/config"
	"github.com/openagora/agora-core/internal/principal"
)

const testSecret = "0123456789abcdef0123456789abcdef"

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

	CREATE TABLE federated_identities (
		provider     TEXT NOT NULL,
		subject      TEXT NOT NULL,
		principal_id TEXT NOT NULL,
		created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		PRIMARY KEY (provider, subject),
		FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
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
		CHECK (max_uses IS NULL OR current_uses <= max_uses)
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

type fixture struct {
	db         *sql.DB
	principals principal.Repository
	codesRepo  accesscode.Repository
	codes      *accesscode.Manager
	recorder   *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testDB(t)
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db), slog.Default())
	codesRepo := accesscode.NewSQLiteRepository(db)
	guard := accesscode.NewGuard(6, time.Hour, time.Hour, 0, 0)
	codes := accesscode.NewManager(db, codesRepo, guard, recorder, slog.Default(), config.AccessCodeConfig{
		Length:              10,
		MaxGenerateAttempts: 20,
	})

	return &fixture{
		db:         db,
		principals: principal.NewSQLiteRepository(db),
		codesRepo:  codesRepo,
		codes:      codes,
		recorder:   recorder,
	}
}

// mintFederatedToken creates a token shaped like the upstream
// provider's.
func mintFederatedToken(t *testing.T, secret, issuer, subject, name string, ttl time.Duration) string {
	t.Helper()

	claims := federatedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Name: name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to mint federated token: %v", err)
	}
	return signed
}
