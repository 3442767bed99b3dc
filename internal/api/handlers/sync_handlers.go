package handlers

import (
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
)

// triggerSyncBody is the optional body of a sync trigger
type triggerSyncBody struct {
	Organizations []string `json:"organizations,omitempty"`
	RequireAccess bool     `json:"require_access,omitempty"`
}

// TriggerSync handles POST /api/v1/enterprises/{enterprise}/syncs.
// The caller's bearer token is the credential for the run. Without one the
// unattended credential is used, if the server has one.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")

	var body triggerSyncBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		WriteErrorFromErr(w, err)
		return
	}

	orgs := make([]string, 0, len(body.Organizations))
	for _, o := range body.Organizations {
		if o = strings.TrimSpace(o); o != "" {
			orgs = append(orgs, o)
		}
	}

	ack := h.svc.TriggerSync(r.Context(), services.TriggerRequest{
		Enterprise:    enterprise,
		Organizations: orgs,
		RequireAccess: body.RequireAccess,
		Credential:    bearerToken(r),
	})
	if !ack.Success {
		if ack.Err == nil {
			WriteError(w, ErrInternal.WithDetails(ack.Message))
			return
		}
		h.sendServiceError(w, r, "trigger sync", ack.Err)
		return
	}

	h.logger.Info("Sync triggered via API",
		"enterprise", enterprise,
		"sync_id", ack.SyncID,
		"organizations", len(ack.Progress))
	h.sendJSON(w, http.StatusAccepted, ack)
}

// ListSyncs handles GET /api/v1/enterprises/{enterprise}/syncs
func (h *Handler) ListSyncs(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")
	page := ParsePaginationWithDefaults(r, services.DefaultHistoryLimit, 0)

	histories, err := h.svc.ListSyncHistories(r.Context(), enterprise, page.Limit, page.Offset)
	if err != nil {
		h.sendServiceError(w, r, "list syncs", err)
		return
	}
	if histories == nil {
		histories = []*models.SyncHistory{}
	}

	running := h.svc.RunningSyncs(enterprise)
	if running == nil {
		running = []string{}
	}

	h.sendJSON(w, http.StatusOK, map[string]any{
		"enterprise_name": enterprise,
		"syncs":           histories,
		"running":         running,
		"limit":           page.Limit,
		"offset":          page.Offset,
	})
}

// GetSync handles GET /api/v1/syncs/{syncID}
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	syncID := r.PathValue("syncID")

	history, err := h.svc.GetSyncHistory(r.Context(), syncID)
	if err != nil {
		h.sendServiceError(w, r, "get sync", err)
		return
	}
	if history == nil {
		WriteError(w, ErrSyncNotFound.WithDetails(syncID))
		return
	}
	h.sendJSON(w, http.StatusOK, history)
}
