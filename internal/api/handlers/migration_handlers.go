package handlers

import (
	"net/http"
	"strings"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
)

// ListMigrations handles GET /api/v1/migrations.
// Filters: enterprise, organization, state (case-insensitive), limit, offset.
func (h *Handler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := ParsePaginationWithDefaults(r, services.DefaultMigrationLimit, 0)

	filter := models.MigrationFilter{
		EnterpriseName:   q.Get("enterprise"),
		OrganizationName: q.Get("organization"),
		Limit:            page.Limit,
		Offset:           page.Offset,
	}
	if raw := q.Get("state"); raw != "" {
		state, ok := models.ParseMigrationState(strings.ToUpper(raw))
		if !ok {
			WriteError(w, ErrInvalidField.WithField("state").WithDetails(raw))
			return
		}
		filter.State = state
	}

	result, err := h.svc.ListMigrations(r.Context(), filter)
	if err != nil {
		h.sendServiceError(w, r, "list migrations", err)
		return
	}
	if result.Migrations == nil {
		result.Migrations = []*models.MigrationRecord{}
	}
	h.sendJSON(w, http.StatusOK, result)
}

// DeleteMigration handles DELETE /api/v1/migrations/{id}
func (h *Handler) DeleteMigration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.svc.DeleteMigration(r.Context(), id); err != nil {
		h.sendServiceError(w, r, "delete migration", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
