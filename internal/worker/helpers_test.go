package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memCronStore keeps cron configs in memory
type memCronStore struct {
	mu        sync.Mutex
	cfgs      map[string]models.CronConfig
	upsertErr error
}

func newMemCronStore() *memCronStore {
	return &memCronStore{cfgs: make(map[string]models.CronConfig)}
}

func (s *memCronStore) GetCronConfig(_ context.Context, enterprise string) (*models.CronConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.cfgs[enterprise]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *memCronStore) UpsertCronConfig(_ context.Context, cfg *models.CronConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.cfgs[cfg.EnterpriseName] = *cfg
	return nil
}

func (s *memCronStore) UpdateCronRunTimes(_ context.Context, enterprise string, lastRun time.Time, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.cfgs[enterprise]
	if !ok {
		return errors.New("not found")
	}
	cfg.LastRun = &lastRun
	cfg.NextRun = nextRun
	s.cfgs[enterprise] = cfg
	return nil
}

func (s *memCronStore) ListEnabledCronConfigs(_ context.Context) ([]*models.CronConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CronConfig
	for _, cfg := range s.cfgs {
		if cfg.Enabled {
			c := cfg
			out = append(out, &c)
		}
	}
	return out, nil
}

// staticFinder returns a fixed latest run per enterprise
type staticFinder map[string]*models.SyncHistory

func (f staticFinder) GetLatestCompletedSyncHistory(_ context.Context, enterprise string) (*models.SyncHistory, error) {
	return f[enterprise], nil
}

// recordingRunner remembers every request
type recordingRunner struct {
	mu   sync.Mutex
	reqs []syncer.Request
	err  error
	ran  chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{ran: make(chan struct{}, 16)}
}

func (r *recordingRunner) Run(_ context.Context, req syncer.Request) (*syncer.Result, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	err := r.err
	r.mu.Unlock()

	r.ran <- struct{}{}
	if err != nil {
		return nil, err
	}
	return &syncer.Result{SyncID: "scheduled-1", State: models.RunCompleted}, nil
}

func (r *recordingRunner) requests() []syncer.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]syncer.Request(nil), r.reqs...)
}

// gatedCronStore parks the first enabled upsert after it is written until
// release is closed
type gatedCronStore struct {
	*memCronStore
	written chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedCronStore() *gatedCronStore {
	return &gatedCronStore{
		memCronStore: newMemCronStore(),
		written:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (s *gatedCronStore) UpsertCronConfig(ctx context.Context, cfg *models.CronConfig) error {
	if err := s.memCronStore.UpsertCronConfig(ctx, cfg); err != nil {
		return err
	}
	if cfg.Enabled {
		first := false
		s.once.Do(func() { first = true })
		if first {
			close(s.written)
			<-s.release
		}
	}
	return nil
}
