package handlers

import (
	"net/http"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
)

func accessResponse(enterprise string, statuses []*models.OrgAccessStatus) map[string]any {
	if statuses == nil {
		statuses = []*models.OrgAccessStatus{}
	}
	granted := 0
	for _, s := range statuses {
		if s.HasAccess {
			granted++
		}
	}
	return map[string]any{
		"enterprise_name": enterprise,
		"organizations":   statuses,
		"total":           len(statuses),
		"with_access":     granted,
	}
}

// CheckAccess handles POST /api/v1/enterprises/{enterprise}/access/check
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")

	statuses, err := h.svc.CheckAccess(r.Context(), enterprise, bearerToken(r))
	if err != nil {
		h.sendServiceError(w, r, "check access", err)
		return
	}
	h.sendJSON(w, http.StatusOK, accessResponse(enterprise, statuses))
}

// ListAccess handles GET /api/v1/enterprises/{enterprise}/access
func (h *Handler) ListAccess(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")

	statuses, err := h.svc.ListAccessStatuses(r.Context(), enterprise)
	if err != nil {
		h.sendServiceError(w, r, "list access", err)
		return
	}
	h.sendJSON(w, http.StatusOK, accessResponse(enterprise, statuses))
}
