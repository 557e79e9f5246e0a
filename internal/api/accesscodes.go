package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openagora/agora-core/internal/accesscode"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/policy"
)

// generateCodeRequest is the request body for POST /access-codes.
type generateCodeRequest struct {
	CodeType  string     `json:"code_type"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleGenerateCode creates a new access code. Admin only.
func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if !s.authorise(w, r, policy.ActionCreate, deliberation.ResourceAccessCode, "") {
		return
	}

	var req generateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	code, err := s.codes.Generate(r.Context(), req.CodeType, req.MaxUses, req.ExpiresAt, p.ID)
	if errors.Is(err, accesscode.ErrInvalidCodeType) {
		writeBadRequest(w, "code_type must be admin or user")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to generate code")
		return
	}

	writeJSON(w, http.StatusCreated, code)
}

// handleListCodes lists all access codes. Admin only.
func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourceAccessCode, "") {
		return
	}

	codes, err := s.codesRepo.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list codes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"codes": codes, "count": len(codes)})
}

// validateCodeRequest is the request body for POST /access-codes/validate.
type validateCodeRequest struct {
	Code string `json:"code"`
}

// handleValidateCode checks a code without consuming a use. Public:
// this is what entry forms call before attempting a join. The manager
// rate-limits by source address.
func (s *Server) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.codes.Validate(r.Context(), req.Code, sourceIP(r))
	if err != nil {
		writeInternalError(w, "validation failed")
		return
	}

	if result.Reason == accesscode.ReasonRateLimited {
		writeJSON(w, http.StatusTooManyRequests, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// consumeCodeRequest is the request body for POST /access-codes/consume.
type consumeCodeRequest struct {
	Code string `json:"code"`
}

// handleConsumeCode spends one use of a code. The usual path is the
// X-Access-Code header on any request, which consumes on first
// presentation; this endpoint exists for flows that want the consume
// step to be explicit.
func (s *Server) handleConsumeCode(w http.ResponseWriter, r *http.Request) {
	var req consumeCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.codes.Consume(r.Context(), req.Code, sourceIP(r))
	if errors.Is(err, accesscode.ErrNotFound) {
		writeNotFound(w, "code not found")
		return
	}
	if errors.Is(err, accesscode.ErrNoLongerValid) {
		writeConflict(w, "code is no longer valid")
		return
	}
	if err != nil {
		writeInternalError(w, "consume failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeactivateCode retires a code. Admin only.
func (s *Server) handleDeactivateCode(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	code := chi.URLParam(r, "code")
	if !s.authorise(w, r, policy.ActionUpdate, deliberation.ResourceAccessCode, code) {
		return
	}

	if err := s.codes.Deactivate(r.Context(), code, p.ID); err != nil {
		if errors.Is(err, accesscode.ErrNotFound) {
			writeNotFound(w, "code not found")
			return
		}
		writeInternalError(w, "deactivate failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deactivated": code})
}

// handleResetCode returns a code to circulation: use count cleared and
// any principal binding removed. Admin only.
func (s *Server) handleResetCode(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	code := chi.URLParam(r, "code")
	if !s.authorise(w, r, policy.ActionUpdate, deliberation.ResourceAccessCode, code) {
		return
	}

	if err := s.codes.ResetUses(r.Context(), code, p.ID); err != nil {
		if errors.Is(err, accesscode.ErrNotFound) {
			writeNotFound(w, "code not found")
			return
		}
		writeInternalError(w, "reset failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reset": code})
}

// authorise runs a policy check and writes the denial response itself.
// Returns true when the request may proceed.
func (s *Server) authorise(w http.ResponseWriter, r *http.Request, action policy.Action, resourceType, resourceID string) bool {
	p := principalFrom(r.Context())

	decision, err := s.evaluator.Evaluate(r.Context(), p, action, resourceType, resourceID)
	if err != nil {
		writeInternalError(w, "policy evaluation failed")
		return false
	}
	if decision.Allowed {
		return true
	}

	switch decision.Reason {
	case policy.ReasonNotFound:
		writeNotFound(w, "not found")
	case policy.ReasonUnauthenticated:
		writeUnauthorized(w, "authentication required")
	default:
		writeForbidden(w, "forbidden")
	}
	return false
}
