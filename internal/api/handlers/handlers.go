// Package handlers contains the HTTP handlers of the tracker API. Every
// handler is a thin adapter over the sync service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/services"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
)

const defaultHeartbeat = 30 * time.Second

// SyncOperations is the part of services.SyncService the handlers use
type SyncOperations interface {
	TriggerSync(ctx context.Context, req services.TriggerRequest) syncer.Ack
	RunningSyncs(enterprise string) []string
	ListSyncHistories(ctx context.Context, enterprise string, limit, offset int) ([]*models.SyncHistory, error)
	GetSyncHistory(ctx context.Context, syncID string) (*models.SyncHistory, error)
	SubscribeProgress(ctx context.Context, enterprise string) <-chan models.EnterpriseProgress
	SubscribeHistory(ctx context.Context, enterprise, syncID string) <-chan models.SyncHistory
	SetCronConfig(ctx context.Context, enterprise, schedule string, enabled bool) (*models.CronConfig, error)
	GetCronConfig(ctx context.Context, enterprise string) (*models.CronConfig, error)
	CheckAccess(ctx context.Context, enterprise, credential string) ([]*models.OrgAccessStatus, error)
	ListAccessStatuses(ctx context.Context, enterprise string) ([]*models.OrgAccessStatus, error)
	ListMigrations(ctx context.Context, f models.MigrationFilter) (*services.MigrationPage, error)
	DeleteMigration(ctx context.Context, providerID string) error
}

var _ SyncOperations = (*services.SyncService)(nil)

// Handler contains all HTTP handlers
type Handler struct {
	svc       SyncOperations
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a new Handler instance
func NewHandler(svc SyncOperations, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, heartbeat: defaultHeartbeat}
}

// WithHeartbeat sets the keep-alive interval of event streams
func (h *Handler) WithHeartbeat(d time.Duration) *Handler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// sendJSON sends a JSON response
func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// sendServiceError logs and writes err, unless the client already went away
func (h *Handler) sendServiceError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	if h.handleContextError(r.Context(), err, operation, r) {
		return
	}
	apiErr := toAPIError(err)
	if apiErr.StatusCode() >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", operation, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("Request rejected", "operation", operation, "path", r.URL.Path, "error", err)
	}
	WriteError(w, apiErr)
}

// handleContextError checks if an error is due to request cancellation and logs appropriately.
// Returns true if the error is a context cancellation (caller should return early)
func (h *Handler) handleContextError(ctx context.Context, err error, operation string, r *http.Request) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		h.logger.Debug("Request canceled by client",
			"operation", operation,
			"path", r.URL.Path,
			"method", r.Method)
		return true
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		h.logger.Warn("Request timeout",
			"operation", operation,
			"path", r.URL.Path,
			"method", r.Method,
			"error", err)
		return true
	}
	return false
}

// bearerToken returns the token of an "Authorization: Bearer" header, or ""
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// PaginationParams holds limit/offset query parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePaginationWithDefaults extracts pagination parameters with custom defaults.
// Values the service does not accept are clamped there, not here.
func ParsePaginationWithDefaults(r *http.Request, defaultLimit, defaultOffset int) PaginationParams {
	limit := defaultLimit
	offset := defaultOffset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// decodeOptionalJSON decodes the body into v. An empty body leaves v alone.
func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrInvalidJSON.WithDetails(err.Error())
	}
	return nil
}
