package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/identity"
	"github.com/openagora/agora-core/internal/infrastructure/config"
	"github.com/openagora/agora-core/internal/infrastructure/database"
	"github.com/openagora/agora-core/internal/infrastructure/logging"
	"github.com/openagora/agora-core/internal/policy"
	"github.com/openagora/agora-core/internal/principal"
	"github.com/openagora/agora-core/internal/trust"
	_ "github.com/openagora/agora-core/migrations" // register embedded migrations
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testServer wires the full stack over a temp database and serves it
// through the real router.
type testServer struct {
	srv        *Server
	handler    http.Handler
	db         *database.DB
	principals principal.Repository
	codesRepo  accesscode.Repository
	codes      *accesscode.Manager
	resources  *deliberation.ResourceStore
	recorder   *audit.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	principals := principal.NewSQLiteRepository(db.DB)
	codesRepo := accesscode.NewSQLiteRepository(db.DB)
	deliberations := deliberation.NewSQLiteRepository(db.DB)
	resources := deliberation.NewResourceStore(db.DB)
	directory := deliberation.NewDirectory(db.DB)
	kernel := trust.NewKernel(db.DB)

	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), logger.Logger)
	guard := accesscode.NewGuard(6, time.Hour, time.Hour, 0, 0)
	codes := accesscode.NewManager(db.DB, codesRepo, guard, recorder, logger.Logger, config.AccessCodeConfig{
		Length:              10,
		MaxGenerateAttempts: 20,
	})

	evaluator := policy.NewEvaluator(db.DB, principals, deliberations, directory, kernel, recorder, nil, logger.Logger)
	login := identity.NewLoginService(principals, recorder, logger.Logger, testSecret, time.Hour)
	chain := identity.NewChain(logger.Logger,
		identity.NewAccessCodeResolver(codes, codesRepo, principals, logger.Logger),
		identity.NewSessionResolver(testSecret, principals),
	)

	srv, err := New(Deps{
		Config:        config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:            config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Logger:        logger,
		Identity:      chain,
		Login:         login,
		Evaluator:     evaluator,
		Codes:         codes,
		CodesRepo:     codesRepo,
		Principals:    principals,
		Deliberations: deliberations,
		Resources:     resources,
		Events:        audit.NewSQLiteRepository(db.DB),
		Recorder:      recorder,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	srv.hub = NewHub(srv.wsCfg, logger)

	return &testServer{
		srv:        srv,
		handler:    srv.buildRouter(),
		db:         db,
		principals: principals,
		codesRepo:  codesRepo,
		codes:      codes,
		resources:  resources,
		recorder:   recorder,
	}
}

// seedPrincipal inserts a principal with a password so login works.
func (ts *testServer) seedPrincipal(t *testing.T, role principal.Role, password string) *principal.Principal {
	t.Helper()

	hash, err := principal.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	p := &principal.Principal{
		DisplayName:  "Test " + string(role),
		Role:         role,
		PasswordHash: hash,
	}
	if err := ts.principals.Create(context.Background(), p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p
}

// loginAs returns a session token for the principal.
func (ts *testServer) loginAs(t *testing.T, principalID, password string) string {
	t.Helper()

	resp := ts.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"principal_id": principalID,
		"password":     password,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login failed: status %d, body %s", resp.Code, resp.Body.String())
	}

	var body loginResponse
	decodeBody(t, resp, &body)
	return body.AccessToken
}

// request performs one request against the router. token, if set, is
// sent as a bearer token.
func (ts *testServer) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:49152"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// requestWithCode performs a request authenticated by the access-code header.
func (ts *testServer) requestWithCode(t *testing.T, method, path, code string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:49152"
	req.Header.Set("X-Access-Code", code)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}
