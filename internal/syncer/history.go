package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
)

// HistoryRecorder keeps the durable audit trail of each run and rebroadcasts
// the record after every change
type HistoryRecorder struct {
	store  storage.SyncHistoryStore
	topic  *pubsub.Topic[models.SyncHistory]
	logger *slog.Logger
	now    func() time.Time
}

// NewHistoryRecorder creates a recorder. topic may be nil.
func NewHistoryRecorder(store storage.SyncHistoryStore, topic *pubsub.Topic[models.SyncHistory], logger *slog.Logger) *HistoryRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRecorder{
		store:  store,
		topic:  topic,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *HistoryRecorder) publish(h *models.SyncHistory) {
	if r.topic == nil || h == nil {
		return
	}
	cp := *h
	cp.Organizations = make([]models.SyncHistoryOrg, len(h.Organizations))
	for i, o := range h.Organizations {
		o.Errors = append([]string(nil), o.Errors...)
		cp.Organizations[i] = o
	}
	r.topic.Publish(h.EnterpriseName, cp)
}

// Create records the start of a run with every organization at zero
func (r *HistoryRecorder) Create(ctx context.Context, enterprise, syncID string, logins []string) (*models.SyncHistory, error) {
	h := models.NewSyncHistory(syncID, enterprise, logins, r.now())
	if err := r.store.CreateSyncHistory(ctx, h); err != nil {
		return nil, err
	}
	r.logger.Info("Sync history created",
		"sync_id", syncID,
		"enterprise", enterprise,
		"organizations", h.TotalOrganizations)
	r.publish(h)
	return h, nil
}

// UpdateOrg records one organization's outcome. It must be called exactly
// once per organization.
func (r *HistoryRecorder) UpdateOrg(ctx context.Context, syncID, login string, result models.OrgResult) (*models.SyncHistory, error) {
	h, err := r.store.UpdateSyncHistoryOrg(ctx, syncID, login, result)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Sync history organization recorded",
		"sync_id", syncID,
		"org", login,
		"completed", h.CompletedOrganizations,
		"total", h.TotalOrganizations)
	r.publish(h)
	return h, nil
}

// Complete stamps the end time and terminal status of a run
func (r *HistoryRecorder) Complete(ctx context.Context, syncID string, status models.SyncStatus, errMsg string) (*models.SyncHistory, error) {
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	h, err := r.store.CompleteSyncHistory(ctx, syncID, status, msg)
	if err != nil {
		return nil, err
	}
	r.logger.Info("Sync history completed",
		"sync_id", syncID,
		"enterprise", h.EnterpriseName,
		"status", h.Status,
		"duration_ms", h.DurationMs())
	r.publish(h)
	return h, nil
}
