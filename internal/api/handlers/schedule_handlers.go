package handlers

import (
	"net/http"
	"strings"
)

// cronConfigBody is the body of PUT .../cron
type cronConfigBody struct {
	Schedule string `json:"schedule"`
	Enabled  *bool  `json:"enabled"`
}

// GetCronConfig handles GET /api/v1/enterprises/{enterprise}/cron
func (h *Handler) GetCronConfig(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")

	cfg, err := h.svc.GetCronConfig(r.Context(), enterprise)
	if err != nil {
		h.sendServiceError(w, r, "get cron config", err)
		return
	}
	if cfg == nil {
		WriteError(w, NewNotFoundError("Cron config", enterprise))
		return
	}
	h.sendJSON(w, http.StatusOK, cfg)
}

// SetCronConfig handles PUT /api/v1/enterprises/{enterprise}/cron
func (h *Handler) SetCronConfig(w http.ResponseWriter, r *http.Request) {
	enterprise := r.PathValue("enterprise")

	var body cronConfigBody
	if err := decodeOptionalJSON(r, &body); err != nil {
		WriteErrorFromErr(w, err)
		return
	}
	body.Schedule = strings.TrimSpace(body.Schedule)
	if body.Schedule == "" {
		WriteError(w, ErrMissingField.WithField("schedule"))
		return
	}
	if body.Enabled == nil {
		WriteError(w, ErrMissingField.WithField("enabled"))
		return
	}

	cfg, err := h.svc.SetCronConfig(r.Context(), enterprise, body.Schedule, *body.Enabled)
	if err != nil {
		h.sendServiceError(w, r, "set cron config", err)
		return
	}

	h.logger.Info("Cron config updated via API",
		"enterprise", enterprise,
		"schedule", cfg.Schedule,
		"enabled", cfg.Enabled)
	h.sendJSON(w, http.StatusOK, cfg)
}
