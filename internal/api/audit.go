package api

import (
	"net/http"
	"strconv"

	"github.com/openagora/agora-core/internal/audit"
	"github.com/openagora/agora-core/internal/deliberation"
	"github.com/openagora/agora-core/internal/policy"
)

// handleListEvents queries the audit log. Admin only.
//
// Filters come from query parameters: action, resource_type,
// resource_id, principal_id, risk_level, limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorise(w, r, policy.ActionRead, deliberation.ResourceSecurityEvent, "") {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		PrincipalID:  q.Get("principal_id"),
		RiskLevel:    q.Get("risk_level"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	events, err := s.events.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to query audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events.Events, "count": len(events.Events)})
}
