package api

import (
	"net/http"
	"testing"

	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/principal"
)

func createDeliberation(t *testing.T, ts *testServer, token, title, visibility string) deliberation.Deliberation {
	t.Helper()

	resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/", token, map[string]any{
		"title":      title,
		"visibility": visibility,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create deliberation: status %d, body %s", resp.Code, resp.Body.String())
	}
	var d deliberation.Deliberation
	decodeBody(t, resp, &d)
	return d
}

func TestCreateDeliberationRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/", "", map[string]any{
		"title": "Open floor",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.Code)
	}
}

func TestPrivateDeliberationMaskedAsNotFound(t *testing.T) {
	ts := newTestServer(t)
	facilitator := ts.seedPrincipal(t, principal.RoleUser, "facilitator pass")
	outsider := ts.seedPrincipal(t, principal.RoleUser, "outsider pass")

	facToken := ts.loginAs(t, facilitator.ID, "facilitator pass")
	d := createDeliberation(t, ts, facToken, "Budget review", "private")

	// Outsider and anonymous both see 404, indistinguishable from a
	// deliberation that does not exist.
	outToken := ts.loginAs(t, outsider.ID, "outsider pass")
	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/"+d.ID, outToken, nil); resp.Code != http.StatusNotFound {
		t.Errorf("outsider: status = %d, want 404", resp.Code)
	}
	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/del-missing0", outToken, nil); resp.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", resp.Code)
	}

	// The facilitator reads it fine.
	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/"+d.ID, facToken, nil); resp.Code != http.StatusOK {
		t.Errorf("facilitator: status = %d, want 200", resp.Code)
	}
}

func TestPublicActiveDeliberationReadableAnonymously(t *testing.T) {
	ts := newTestServer(t)
	facilitator := ts.seedPrincipal(t, principal.RoleUser, "facilitator pass")
	facToken := ts.loginAs(t, facilitator.ID, "facilitator pass")

	d := createDeliberation(t, ts, facToken, "Town square", "public")

	// Draft deliberations are not publicly visible even when public.
	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/"+d.ID, "", nil); resp.Code != http.StatusNotFound {
		t.Errorf("draft: status = %d, want 404", resp.Code)
	}

	// Activate, then anonymous read succeeds.
	if resp := ts.request(t, http.MethodPut, "/api/v1/deliberations/"+d.ID+"/status", facToken, map[string]any{
		"status": "active",
	}); resp.Code != http.StatusOK {
		t.Fatalf("activate: status = %d, body %s", resp.Code, resp.Body.String())
	}

	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/"+d.ID, "", nil); resp.Code != http.StatusOK {
		t.Errorf("anonymous read: status = %d, want 200", resp.Code)
	}
}

func TestJoinAndPostMessage(t *testing.T) {
	ts := newTestServer(t)
	facilitator := ts.seedPrincipal(t, principal.RoleUser, "facilitator pass")
	member := ts.seedPrincipal(t, principal.RoleUser, "member pass")

	facToken := ts.loginAs(t, facilitator.ID, "facilitator pass")
	d := createDeliberation(t, ts, facToken, "Town square", "public")
	ts.request(t, http.MethodPut, "/api/v1/deliberations/"+d.ID+"/status", facToken, map[string]any{"status": "active"})

	memberToken := ts.loginAs(t, member.ID, "member pass")

	// Anonymous join is rejected.
	if resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/"+d.ID+"/join", "", nil); resp.Code != http.StatusUnauthorized {
		t.Errorf("anonymous join: status = %d, want 401", resp.Code)
	}

	// Member joins and posts.
	if resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/"+d.ID+"/join", memberToken, nil); resp.Code != http.StatusCreated {
		t.Fatalf("join: status = %d, body %s", resp.Code, resp.Body.String())
	}
	if resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/"+d.ID+"/messages", memberToken, map[string]any{
		"body": "First point of order.",
	}); resp.Code != http.StatusCreated {
		t.Fatalf("post message: status = %d, body %s", resp.Code, resp.Body.String())
	}

	// Joining twice conflicts.
	if resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/"+d.ID+"/join", memberToken, nil); resp.Code != http.StatusConflict {
		t.Errorf("double join: status = %d, want 409", resp.Code)
	}

	// Visitors can read messages but not post them.
	if resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/"+d.ID+"/messages", "", nil); resp.Code != http.StatusOK {
		t.Errorf("anonymous list messages: status = %d, want 200", resp.Code)
	}
	visitor := ts.seedPrincipal(t, principal.RoleUser, "visitor pass")
	visitorToken := ts.loginAs(t, visitor.ID, "visitor pass")
	if resp := ts.request(t, http.MethodPost, "/api/v1/deliberations/"+d.ID+"/messages", visitorToken, map[string]any{
		"body": "Drive-by comment.",
	}); resp.Code != http.StatusForbidden {
		t.Errorf("non-participant post: status = %d, want 403", resp.Code)
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	ts := newTestServer(t)
	facilitator := ts.seedPrincipal(t, principal.RoleUser, "facilitator pass")
	facToken := ts.loginAs(t, facilitator.ID, "facilitator pass")

	d := createDeliberation(t, ts, facToken, "One-way street", "public")

	// Skipping a stage is rejected.
	if resp := ts.request(t, http.MethodPut, "/api/v1/deliberations/"+d.ID+"/status", facToken, map[string]any{
		"status": "archived",
	}); resp.Code != http.StatusConflict {
		t.Errorf("skip: status = %d, want 409", resp.Code)
	}

	for _, status := range []string{"active", "concluded", "archived"} {
		if resp := ts.request(t, http.MethodPut, "/api/v1/deliberations/"+d.ID+"/status", facToken, map[string]any{
			"status": status,
		}); resp.Code != http.StatusOK {
			t.Fatalf("transition to %s: status = %d, body %s", status, resp.Code, resp.Body.String())
		}
	}

	// No way back.
	if resp := ts.request(t, http.MethodPut, "/api/v1/deliberations/"+d.ID+"/status", facToken, map[string]any{
		"status": "active",
	}); resp.Code != http.StatusConflict {
		t.Errorf("reversal: status = %d, want 409", resp.Code)
	}
}

func TestListDeliberationsVisibility(t *testing.T) {
	ts := newTestServer(t)
	facilitator := ts.seedPrincipal(t, principal.RoleUser, "facilitator pass")
	facToken := ts.loginAs(t, facilitator.ID, "facilitator pass")

	public := createDeliberation(t, ts, facToken, "Agora", "public")
	ts.request(t, http.MethodPut, "/api/v1/deliberations/"+public.ID+"/status", facToken, map[string]any{"status": "active"})
	createDeliberation(t, ts, facToken, "Back room", "private")

	// Anonymous sees only the public active deliberation.
	resp := ts.request(t, http.MethodGet, "/api/v1/deliberations/", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var anon struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &anon)
	if anon.Count != 1 {
		t.Errorf("anonymous count = %d, want 1", anon.Count)
	}

	// The facilitator sees both.
	resp = ts.request(t, http.MethodGet, "/api/v1/deliberations/", facToken, nil)
	var own struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &own)
	if own.Count != 2 {
		t.Errorf("facilitator count = %d, want 2", own.Count)
	}
}
