package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/config"
	"github.com/kuhlman-labs/migration-tracker/internal/github"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
	"github.com/kuhlman-labs/migration-tracker/internal/storage"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func setupTestDB(t *testing.T) *storage.Database {
	t.Helper()

	db, err := storage.NewDatabase(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  ":memory:",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// makeNodes returns n succeeded migrations for org, oldest first
func makeNodes(org string, n int) []github.MigrationNode {
	nodes := make([]github.MigrationNode, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, github.MigrationNode{
			ID:             strPtr(fmt.Sprintf("RM_%s_%03d", org, i)),
			SourceURL:      strPtr(fmt.Sprintf("https://source.example.com/%s/repo-%03d", org, i)),
			State:          strPtr(string(models.MigrationStateSucceeded)),
			WarningsCount:  intPtr(0),
			CreatedAt:      strPtr(baseTime.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)),
			RepositoryName: strPtr(fmt.Sprintf("repo-%03d", i)),
			MigrationSource: &github.MigrationSourceNode{
				ID:   strPtr("MS_1"),
				Name: strPtr("GHES source"),
				Type: strPtr("GITHUB_ARCHIVE"),
				URL:  strPtr("https://source.example.com"),
			},
		})
	}
	return nodes
}

// fakeProvider serves migrations newest page first the way GitHub does.
// Cursors are the index of the first node of a page.
type fakeProvider struct {
	mu         sync.Mutex
	orgs       []github.Organization
	listErr    error
	migrations map[string][]github.MigrationNode
	// pageErr fails the given page number (1-based, newest first) of an org
	pageErr   map[string]map[int]error
	omitTotal bool
	admin     map[string]bool
	adminErr  map[string]error
	pageCalls map[string]int
}

func newFakeProvider(orgCounts map[string]int, order ...string) *fakeProvider {
	p := &fakeProvider{
		migrations: make(map[string][]github.MigrationNode),
		pageErr:    make(map[string]map[int]error),
		admin:      make(map[string]bool),
		adminErr:   make(map[string]error),
		pageCalls:  make(map[string]int),
	}
	for _, login := range order {
		p.orgs = append(p.orgs, github.Organization{ID: "O_" + login, Login: login, Name: login})
		p.migrations[login] = makeNodes(login, orgCounts[login])
		p.admin[login] = true
	}
	return p
}

func (p *fakeProvider) failPage(org string, page int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pageErr[org] == nil {
		p.pageErr[org] = make(map[int]error)
	}
	p.pageErr[org][page] = err
}

func (p *fakeProvider) calls(org string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCalls[org]
}

func (p *fakeProvider) ListEnterpriseOrganizations(ctx context.Context, enterpriseSlug string) ([]github.Organization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]github.Organization(nil), p.orgs...), nil
}

func (p *fakeProvider) ListOrganizationMigrations(ctx context.Context, orgLogin string, pageSize int, before *string) (*github.MigrationPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.pageCalls[orgLogin]++

	all := p.migrations[orgLogin]
	end := len(all)
	if before != nil {
		n, err := strconv.Atoi(*before)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", *before)
		}
		end = n
	}
	start := max(end-pageSize, 0)
	pageNumber := (len(all)-end)/pageSize + 1

	if err := p.pageErr[orgLogin][pageNumber]; err != nil {
		return nil, err
	}

	page := &github.MigrationPage{
		Nodes:           append([]github.MigrationNode(nil), all[start:end]...),
		HasPreviousPage: start > 0,
		StartCursor:     strconv.Itoa(start),
	}
	if !p.omitTotal {
		page.TotalCount = intPtr(len(all))
	}
	return page, nil
}

func (p *fakeProvider) CheckOrganizationAdmin(ctx context.Context, orgLogin string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.adminErr[orgLogin]; err != nil {
		return false, err
	}
	return p.admin[orgLogin], nil
}

// countingStore counts writes that reach the record store
type countingStore struct {
	storage.MigrationRecordStore
	creates atomic.Int64
	updates atomic.Int64
}

func (s *countingStore) CreateMigrationRecord(ctx context.Context, rec *models.MigrationRecord) error {
	s.creates.Add(1)
	return s.MigrationRecordStore.CreateMigrationRecord(ctx, rec)
}

func (s *countingStore) UpdateMigrationRecordState(ctx context.Context, rec *models.MigrationRecord) error {
	s.updates.Add(1)
	return s.MigrationRecordStore.UpdateMigrationRecordState(ctx, rec)
}

// recordingMetrics remembers what the orchestrator reported
type recordingMetrics struct {
	mu      sync.Mutex
	runs    []models.SyncStatus
	orgs    map[string]int
	records map[string]int
	pages   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{orgs: map[string]int{}, records: map[string]int{}}
}

func (m *recordingMetrics) RunFinished(status models.SyncStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

func (m *recordingMetrics) OrgFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[outcome]++
}

func (m *recordingMetrics) RecordProcessed(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[outcome]++
}

func (m *recordingMetrics) PageFetched() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages++
}

// harness wires an orchestrator to a fresh database
type harness struct {
	db        *storage.Database
	records   *countingStore
	progress  *pubsub.Topic[models.EnterpriseProgress]
	histories *pubsub.Topic[models.SyncHistory]
	access    *AccessChecker
	metrics   *recordingMetrics
	cfg       OrchestratorConfig
	orch      *Orchestrator
}

type harnessOption func(*OrchestratorConfig)

func newHarness(t *testing.T, provider *fakeProvider, opts ...harnessOption) *harness {
	t.Helper()

	db := setupTestDB(t)
	h := &harness{
		db:        db,
		records:   &countingStore{MigrationRecordStore: db},
		progress:  pubsub.NewTopic[models.EnterpriseProgress](1024),
		histories: pubsub.NewTopic[models.SyncHistory](1024),
		metrics:   newRecordingMetrics(),
	}
	h.access = NewAccessChecker(db, time.Minute, testLogger())

	cfg := OrchestratorConfig{
		Fetcher:       NewFetcher(100, 0, testLogger()),
		Processor:     NewProcessor(h.records, testLogger()),
		History:       NewHistoryRecorder(db, h.histories, testLogger()),
		Access:        h.access,
		ProgressTopic: h.progress,
		NewProvider: func(credential string) (Provider, error) {
			if credential == "bad-token" {
				return nil, github.ErrUnauthorized
			}
			return provider, nil
		},
		ProgressBatchSize: 10,
		Metrics:           h.metrics,
		Logger:            testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.cfg = cfg
	h.orch = NewOrchestrator(cfg)

	t.Cleanup(func() {
		h.orch.Wait()
		h.progress.Close()
		h.histories.Close()
	})
	return h
}

// drain collects everything currently queued on a subscription
func drain[T any](sub *pubsub.Subscription[T]) []T {
	var out []T
	for {
		select {
		case v, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

// flakyHistoryStore fails UpdateSyncHistoryOrg for one organization a set
// number of times. A negative count fails forever.
type flakyHistoryStore struct {
	storage.SyncHistoryStore
	org string

	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyHistoryStore) UpdateSyncHistoryOrg(ctx context.Context, syncID, login string, result models.OrgResult) (*models.SyncHistory, error) {
	if login == s.org {
		s.mu.Lock()
		s.attempts++
		fail := s.failures != 0
		if s.failures > 0 {
			s.failures--
		}
		s.mu.Unlock()
		if fail {
			return nil, fmt.Errorf("database is locked")
		}
	}
	return s.SyncHistoryStore.UpdateSyncHistoryOrg(ctx, syncID, login, result)
}

// withHistoryStore rebuilds the harness orchestrator on top of store
func (h *harness) withHistoryStore(t *testing.T, store storage.SyncHistoryStore) *Orchestrator {
	t.Helper()
	prev := historyRetryDelay
	historyRetryDelay = 0
	t.Cleanup(func() { historyRetryDelay = prev })

	cfg := h.cfg
	cfg.History = NewHistoryRecorder(store, h.histories, testLogger())
	return NewOrchestrator(cfg)
}
