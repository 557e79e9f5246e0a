package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/policy"
	"github.com/openagora/agora-core/internal/principal"
)

// minPasswordLen is the minimum accepted password length on self-service
// password changes.
const minPasswordLen = 8

// handleListPrincipals lists all principals. Admin only: the roster is
// not a public surface.
func (s *Server) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p == nil || p.Role != principal.RoleAdmin {
		writeForbidden(w, "forbidden")
		return
	}

	principals, err := s.principals.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list principals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"principals": principals, "count": len(principals)})
}

// handleGetPrincipal returns one principal. A caller may read
// themselves; everything else is admin territory.
func (s *Server) handleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourcePrincipal, id) {
		return
	}

	target, err := s.principals.GetByID(r.Context(), id)
	if errors.Is(err, principal.ErrNotFound) {
		writeNotFound(w, "principal not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load principal")
		return
	}

	writeJSON(w, http.StatusOK, target)
}

// updatePrincipalRequest is the request body for PUT /principals/{id}.
// Absent fields are left unchanged.
type updatePrincipalRequest struct {
	DisplayName *string `json:"display_name"`
	Password    *string `json:"password"`
}

// handleUpdatePrincipal updates a principal's display name or password.
// Principals may update themselves; everyone else needs the admin role.
func (s *Server) handleUpdatePrincipal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionUpdate, deliberation.ResourcePrincipal, id) {
		return
	}

	var req updatePrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DisplayName == nil && req.Password == nil {
		writeBadRequest(w, "nothing to update")
		return
	}

	target, err := s.principals.GetByID(r.Context(), id)
	if errors.Is(err, principal.ErrNotFound) {
		writeNotFound(w, "principal not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load principal")
		return
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			writeBadRequest(w, "display_name must not be empty")
			return
		}
		target.DisplayName = name
		if err := s.principals.Update(r.Context(), target); err != nil {
			writeInternalError(w, "update failed")
			return
		}
	}

	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			writeBadRequest(w, "password too short")
			return
		}
		hash, err := principal.HashPassword(*req.Password)
		if err != nil {
			writeInternalError(w, "update failed")
			return
		}
		if err := s.principals.SetPassword(r.Context(), id, hash); err != nil {
			writeInternalError(w, "update failed")
			return
		}

		caller := principalFrom(r.Context())
		s.recorder.Record(r.Context(), &audit.SecurityEvent{
			PrincipalID:  caller.ID,
			Action:       "principal.password_change",
			ResourceType: "principal",
			ResourceID:   id,
			RiskLevel:    audit.RiskMedium,
			SourceIP:     sourceIP(r),
		})
	}

	writeJSON(w, http.StatusOK, target)
}

// changeRoleRequest is the request body for PUT /principals/{id}/role.
type changeRoleRequest struct {
	Role string `json:"role"`
}

// handleChangeRole changes a principal's role. The evaluator enforces
// the admin gate and the last-admin rule, and writes the audit trail.
func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.evaluator.ChangeRole(r.Context(), p, id, principal.Role(req.Role), sourceIP(r))
	switch {
	case errors.Is(err, policy.ErrLastAdmin):
		writeConflict(w, "cannot demote the last remaining admin")
	case errors.Is(err, policy.ErrForbidden):
		writeForbidden(w, "forbidden")
	case errors.Is(err, principal.ErrInvalidRole):
		writeBadRequest(w, "invalid role")
	case errors.Is(err, principal.ErrNotFound):
		writeNotFound(w, "principal not found")
	case err != nil:
		writeInternalError(w, "role change failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "role": req.Role})
	}
}

// archivePrincipalRequest is the request body for POST /principals/{id}/archive.
type archivePrincipalRequest struct {
	Reason string `json:"reason"`
}

// handleArchivePrincipal archives a principal. Archived principals fail
// every subsequent policy check but remain for audit history.
func (s *Server) handleArchivePrincipal(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req archivePrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.evaluator.ArchivePrincipal(r.Context(), p, id, req.Reason, sourceIP(r))
	switch {
	case errors.Is(err, policy.ErrLastAdmin):
		writeConflict(w, "cannot archive the last remaining admin")
	case errors.Is(err, policy.ErrForbidden):
		writeForbidden(w, "forbidden")
	case errors.Is(err, principal.ErrNotFound):
		writeNotFound(w, "principal not found")
	case err != nil:
		writeInternalError(w, "archive failed")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "archived": true})
	}
}
