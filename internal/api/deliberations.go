package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/policy"
)

// createDeliberationRequest is the request body for POST /deliberations.
type createDeliberationRequest struct {
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
}

// handleCreateDeliberation creates a deliberation with the caller as
// facilitator. Any authenticated principal may create one.
func (s *Server) handleCreateDeliberation(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req createDeliberationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Title == "" {
		writeBadRequest(w, "title is required")
		return
	}

	d := &deliberation.Deliberation{
		Title:         req.Title,
		Visibility:    req.Visibility,
		FacilitatorID: p.ID,
	}
	if err := s.deliberations.Create(r.Context(), d); err != nil {
		if errors.Is(err, deliberation.ErrInvalidVisibility) {
			writeBadRequest(w, "visibility must be public or private")
			return
		}
		writeInternalError(w, "failed to create deliberation")
		return
	}

	// The facilitator is also a participant so membership queries see them.
	participant := &deliberation.Participant{
		DeliberationID: d.ID,
		PrincipalID:    p.ID,
		Role:           deliberation.ParticipantFacilitator,
	}
	if err := s.deliberations.AddParticipant(r.Context(), participant); err != nil {
		writeInternalError(w, "failed to add facilitator")
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// handleListDeliberations lists deliberations visible to the caller:
// public active ones plus any the caller belongs to.
func (s *Server) handleListDeliberations(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	principalID := ""
	if p != nil {
		principalID = p.ID
	}

	list, err := s.deliberations.ListVisibleTo(r.Context(), principalID)
	if err != nil {
		writeInternalError(w, "failed to list deliberations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deliberations": list, "count": len(list)})
}

// handleGetDeliberation returns one deliberation, subject to policy.
// A denied private deliberation is indistinguishable from a missing one.
func (s *Server) handleGetDeliberation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourceDeliberation, id) {
		return
	}

	d, err := s.deliberations.GetByID(r.Context(), id)
	if errors.Is(err, deliberation.ErrNotFound) {
		writeNotFound(w, "not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load deliberation")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleJoinDeliberation adds the caller as a member.
func (s *Server) handleJoinDeliberation(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionJoin, deliberation.ResourceDeliberation, id) {
		return
	}

	participant := &deliberation.Participant{
		DeliberationID: id,
		PrincipalID:    p.ID,
		Role:           deliberation.ParticipantMember,
	}
	if err := s.deliberations.AddParticipant(r.Context(), participant); err != nil {
		if errors.Is(err, deliberation.ErrAlreadyParticipant) {
			writeConflict(w, "already a participant")
			return
		}
		writeInternalError(w, "failed to join deliberation")
		return
	}

	writeJSON(w, http.StatusCreated, participant)
}

// updateStatusRequest is the request body for PUT /deliberations/{id}/status.
type updateStatusRequest struct {
	Status string `json:"status"`
}

// handleUpdateStatus advances the deliberation lifecycle. Transitions
// only move forward; there is no way back from archived.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionUpdate, deliberation.ResourceDeliberation, id) {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.deliberations.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, deliberation.ErrInvalidTransition):
		writeConflict(w, "invalid status transition")
	case errors.Is(err, deliberation.ErrInvalidStatus):
		writeBadRequest(w, "invalid status")
	case errors.Is(err, deliberation.ErrNotFound):
		writeNotFound(w, "not found")
	case err != nil:
		writeInternalError(w, "failed to update status")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
	}
}

// handleListParticipants lists a deliberation's membership. Reading the
// roster follows the same policy as reading the deliberation.
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourceDeliberation, id) {
		return
	}

	participants, err := s.deliberations.ListParticipants(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list participants")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"participants": participants, "count": len(participants)})
}

// createMessageRequest is the request body for POST /deliberations/{id}/messages.
type createMessageRequest struct {
	Body string `json:"body"`
}

// handleCreateMessage posts a message into a deliberation.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Body == "" {
		writeBadRequest(w, "body is required")
		return
	}

	// Creation is scoped to the tenant, so the check runs against the
	// deliberation, not an individual message.
	if !s.authorise(w, r, policy.ActionCreate, deliberation.ResourceDeliberation, id) {
		return
	}

	m := &deliberation.Message{
		DeliberationID: id,
		AuthorID:       p.ID,
		Body:           req.Body,
	}
	if err := s.resources.CreateMessage(r.Context(), m); err != nil {
		writeInternalError(w, "failed to create message")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// handleListMessages lists a deliberation's messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourceDeliberation, id) {
		return
	}

	messages, err := s.resources.ListMessages(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}
