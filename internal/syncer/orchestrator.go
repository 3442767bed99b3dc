package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
)

const historyWriteAttempts = 3

// historyRetryDelay is the backoff step between history write attempts
var historyRetryDelay = 200 * time.Millisecond

// Trigger says who started a run
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// Request describes one run
type Request struct {
	Enterprise string
	// Credential is the caller's token. Empty means use the unattended
	// credential.
	Credential string
	// Organizations limits the run to these logins, intersected with the
	// enterprise's organizations. Empty means all.
	Organizations []string
	// RequireAccess skips organizations whose last access check failed
	RequireAccess bool
	Trigger       Trigger
}

// Result is the outcome of a run that got past organization listing
type Result struct {
	SyncID   string
	State    models.RunState
	History  *models.SyncHistory
	Progress models.EnterpriseProgress
}

// Ack is the immediate answer to a triggered run
type Ack struct {
	Success  bool                      `json:"success"`
	Message  string                    `json:"message"`
	SyncID   string                    `json:"sync_id,omitempty"`
	Progress []models.ProgressSnapshot `json:"progress"`
	// Err is the rejection cause when Success is false
	Err error `json:"-"`
}

// OrchestratorConfig wires an Orchestrator
type OrchestratorConfig struct {
	Fetcher   *Fetcher
	Processor *Processor
	History   *HistoryRecorder
	// Access is only needed for RequireAccess runs
	Access        *AccessChecker
	ProgressTopic *pubsub.Topic[models.EnterpriseProgress]

	NewProvider ProviderFactory
	Unattended  UnattendedProvider

	ProgressBatchSize   int
	AllowConcurrentRuns bool

	Metrics Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator runs syncs: it lists an enterprise's organizations, walks
// each one in turn and keeps history and progress up to date. One
// organization failing never stops the others.
type Orchestrator struct {
	cfg    OrchestratorConfig
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]map[string]struct{}

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:     cfg,
		logger:  cfg.Logger,
		running: make(map[string]map[string]struct{}),
		rootCtx: ctx,
		cancel:  cancel,
	}
}

func (o *Orchestrator) acquire(enterprise, syncID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.running[enterprise]) > 0 && !o.cfg.AllowConcurrentRuns {
		return ErrSyncInProgress
	}
	if o.running[enterprise] == nil {
		o.running[enterprise] = make(map[string]struct{})
	}
	o.running[enterprise][syncID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(enterprise, syncID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.running[enterprise], syncID)
	if len(o.running[enterprise]) == 0 {
		delete(o.running, enterprise)
	}
}

// Running returns the sync ids currently in flight for enterprise
func (o *Orchestrator) Running(enterprise string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.running[enterprise]))
	for id := range o.running[enterprise] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ProviderFor returns a provider acting as credential, or as the unattended
// credential when credential is empty
func (o *Orchestrator) ProviderFor(credential string) (Provider, error) {
	switch {
	case credential != "":
		if o.cfg.NewProvider == nil {
			return nil, &CredentialError{Err: errors.New("no provider factory configured")}
		}
		p, err := o.cfg.NewProvider(credential)
		if err != nil {
			return nil, &CredentialError{Err: err}
		}
		return p, nil
	case o.cfg.Unattended != nil:
		p, err := o.cfg.Unattended()
		if err != nil {
			return nil, &CredentialError{Err: err}
		}
		return p, nil
	default:
		return nil, &CredentialError{Err: errors.New("no credential provided")}
	}
}

// selectOrganizations lists the enterprise and narrows it to the request
func (o *Orchestrator) selectOrganizations(ctx context.Context, provider Provider, req Request) ([]string, error) {
	orgs, err := provider.ListEnterpriseOrganizations(ctx, req.Enterprise)
	if err != nil {
		return nil, &OrganizationListError{Enterprise: req.Enterprise, Err: err}
	}

	wanted := make(map[string]bool, len(req.Organizations))
	for _, login := range req.Organizations {
		wanted[login] = true
	}

	selected := make([]string, 0, len(orgs))
	seen := make(map[string]bool, len(orgs))
	for _, org := range orgs {
		if seen[org.Login] {
			continue
		}
		seen[org.Login] = true
		if len(wanted) > 0 && !wanted[org.Login] {
			continue
		}
		selected = append(selected, org.Login)
	}

	for login := range wanted {
		if !seen[login] {
			o.logger.Warn("Requested organization is not part of the enterprise",
				"enterprise", req.Enterprise,
				"org", login)
		}
	}

	if !req.RequireAccess {
		return selected, nil
	}
	if o.cfg.Access == nil {
		o.logger.Warn("Access gate requested but no access checker configured", "enterprise", req.Enterprise)
		return selected, nil
	}

	allowed := selected[:0]
	for _, login := range selected {
		ok, known, err := o.cfg.Access.HasAccess(ctx, req.Enterprise, login)
		if err != nil {
			o.logger.Warn("Failed to read org access status", "enterprise", req.Enterprise, "org", login, "error", err)
		}
		if known && !ok {
			o.logger.Info("Skipping organization without admin access",
				"enterprise", req.Enterprise,
				"org", login)
			continue
		}
		allowed = append(allowed, login)
	}
	return allowed, nil
}

type run struct {
	o        *Orchestrator
	req      Request
	syncID   string
	provider Provider
	orgs     []string
	state    models.RunState
	tracker  *Tracker
	started  time.Time
	logger   *slog.Logger
}

func (r *run) transition(event models.RunEvent) {
	next, err := r.state.Next(event)
	if err != nil {
		r.logger.Error("Invalid run transition", "error", err)
		return
	}
	r.state = next
}

// start does everything that can fail the whole run. On return without
// error the history exists and the enterprise lock is held.
func (o *Orchestrator) start(ctx context.Context, req Request) (*run, error) {
	if req.Enterprise == "" {
		return nil, errors.New("enterprise name is required")
	}
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}

	syncID := uuid.NewString()
	if err := o.acquire(req.Enterprise, syncID); err != nil {
		return nil, err
	}

	r := &run{
		o:       o,
		req:     req,
		syncID:  syncID,
		state:   models.RunInitiated,
		started: o.cfg.Now(),
		logger: o.logger.With(
			"sync_id", syncID,
			"enterprise", req.Enterprise,
			"trigger", req.Trigger),
	}

	provider, err := o.ProviderFor(req.Credential)
	if err == nil {
		r.provider = provider
		r.orgs, err = o.selectOrganizations(ctx, provider, req)
	}
	if err != nil {
		o.fail(ctx, r, err)
		o.release(req.Enterprise, syncID)
		return nil, err
	}

	r.transition(models.RunEventOrganizationsListed)
	if _, err := o.cfg.History.Create(context.WithoutCancel(ctx), req.Enterprise, syncID, r.orgs); err != nil {
		o.release(req.Enterprise, syncID)
		return nil, fmt.Errorf("failed to record sync start: %w", err)
	}

	r.tracker = NewTracker(TrackerConfig{
		SyncID:     syncID,
		Enterprise: req.Enterprise,
		Orgs:       r.orgs,
		Topic:      o.cfg.ProgressTopic,
		BatchSize:  o.cfg.ProgressBatchSize,
		Now:        o.cfg.Now,
	})

	r.logger.Info("Sync started", "organizations", len(r.orgs))
	return r, nil
}

// fail records a run that ended before any organization was touched
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) {
	r.transition(models.RunEventListFailed)
	r.logger.Error("Sync failed before processing organizations", "error", cause)

	storeCtx := context.WithoutCancel(ctx)
	if _, err := o.cfg.History.Create(storeCtx, r.req.Enterprise, r.syncID, nil); err != nil {
		r.logger.Error("Failed to record failed sync", "error", err)
		return
	}
	if _, err := o.cfg.History.Complete(storeCtx, r.syncID, r.state.HistoryStatus(), cause.Error()); err != nil {
		r.logger.Error("Failed to complete failed sync history", "error", err)
	}
	o.cfg.Metrics.RunFinished(models.SyncStatusFailed, o.cfg.Now().Sub(r.started))
}

// execute walks every organization and completes the history. It always
// releases the enterprise lock.
func (r *run) execute(ctx context.Context) *Result {
	o := r.o
	defer o.release(r.req.Enterprise, r.syncID)

	storeCtx := context.WithoutCancel(ctx)
	var unrecorded []string
	for _, login := range r.orgs {
		result := r.processOrg(ctx, login)
		if err := r.recordOrg(storeCtx, login, result); err != nil {
			r.logger.Error("Failed to record organization result", "org", login, "error", err)
			unrecorded = append(unrecorded, login)
		}
	}

	errMsg := ""
	if len(unrecorded) > 0 {
		r.transition(models.RunEventRecordingFailed)
		errMsg = fmt.Sprintf("failed to record results for organizations: %s", strings.Join(unrecorded, ", "))
	} else {
		r.transition(models.RunEventAllAttempted)
	}
	h, err := o.cfg.History.Complete(storeCtx, r.syncID, r.state.HistoryStatus(), errMsg)
	if err != nil {
		r.logger.Error("Failed to complete sync history", "error", err)
	}

	duration := o.cfg.Now().Sub(r.started)
	o.cfg.Metrics.RunFinished(r.state.HistoryStatus(), duration)
	r.logger.Info("Sync finished",
		"state", r.state,
		"organizations", len(r.orgs),
		"duration", duration)

	return &Result{
		SyncID:   r.syncID,
		State:    r.state,
		History:  h,
		Progress: r.tracker.Snapshot(),
	}
}

// recordOrg writes one organization's outcome, retrying transient store
// failures
func (r *run) recordOrg(ctx context.Context, login string, result models.OrgResult) error {
	var err error
	for attempt := 1; attempt <= historyWriteAttempts; attempt++ {
		if _, err = r.o.cfg.History.UpdateOrg(ctx, r.syncID, login, result); err == nil {
			return nil
		}
		if attempt < historyWriteAttempts {
			r.logger.Warn("Retrying organization result",
				"org", login,
				"attempt", attempt,
				"error", err)
			time.Sleep(time.Duration(attempt) * historyRetryDelay)
		}
	}
	return err
}

// processOrg walks one organization to the end. Errors are captured in the
// result rather than returned.
func (r *run) processOrg(ctx context.Context, login string) models.OrgResult {
	o := r.o
	logger := r.logger.With("org", login)
	start := o.cfg.Now()

	r.track(r.tracker.Transition(login, models.OrgEventStart, ""))

	walker := o.cfg.Fetcher.Walk(r.provider, login)
	count := 0
	var latest *time.Time
	var failure error
	final := models.OrgEventExhausted

walk:
	for !walker.Done() {
		page, err := walker.Next(ctx)
		if err != nil {
			var dangling *DanglingReferenceError
			if errors.As(err, &dangling) {
				r.track(r.tracker.PageFetched(login, walker.Pages(), walker.EstimatedTotalPages()))
				final = models.OrgEventSoftTerminal
			} else {
				failure = err
			}
			break
		}
		if page == nil {
			break
		}

		o.cfg.Metrics.PageFetched()
		if page.Number == 1 {
			r.track(r.tracker.Transition(login, models.OrgEventFirstPage, ""))
		}
		r.track(r.tracker.PageFetched(login, page.Number, page.EstimatedTotalPages))

		for _, node := range page.Nodes {
			outcome, rec, err := o.cfg.Processor.Upsert(ctx, node, r.req.Enterprise, login)
			if err != nil {
				var recErr *RecordProcessingError
				if errors.As(err, &recErr) {
					logger.Warn("Skipping malformed migration record", "page", page.Number, "error", err)
					o.cfg.Metrics.RecordProcessed(RecordOutcomeRejected)
					continue
				}
				failure = fmt.Errorf("failed to store migration records: %w", err)
				break walk
			}

			o.cfg.Metrics.RecordProcessed(outcome.String())
			r.track(r.tracker.RecordProcessed(login))
			count++
			if latest == nil || rec.CreatedAt.After(*latest) {
				t := rec.CreatedAt
				latest = &t
			}
		}
	}

	result := models.OrgResult{
		TotalMigrations:     count,
		TotalPages:          walker.Pages(),
		ElapsedTimeMs:       max(o.cfg.Now().Sub(start).Milliseconds(), 0),
		LatestMigrationDate: latest,
	}

	outcome := OrgOutcomeOK
	switch {
	case failure != nil:
		final = models.OrgEventFailed
		result.Error = failure.Error()
		outcome = OrgOutcomeError
		logger.Error("Organization sync failed", "pages", result.TotalPages, "error", failure)
	case final == models.OrgEventSoftTerminal:
		outcome = OrgOutcomeSoftTerminated
		logger.Info("Organization sync ended early", "pages", result.TotalPages, "migrations", count)
	default:
		logger.Info("Organization sync completed", "pages", result.TotalPages, "migrations", count)
	}

	r.track(r.tracker.Transition(login, final, result.Error))
	o.cfg.Metrics.OrgFinished(outcome)
	return result
}

func (r *run) track(err error) {
	if err != nil {
		r.logger.Error("Progress tracking error", "error", err)
	}
}

// Run executes a sync and returns once every organization was attempted.
// Credential and organization listing failures are returned as errors and
// recorded as a failed run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	r, err := o.start(ctx, req)
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)
	defer o.wg.Done()
	return r.execute(ctx), nil
}

// Trigger starts a sync and returns as soon as the organizations are known.
// The run continues in the background; follow it on the progress topic.
func (o *Orchestrator) Trigger(ctx context.Context, req Request) Ack {
	r, err := o.start(ctx, req)
	if err != nil {
		return Ack{Success: false, Message: err.Error(), Progress: []models.ProgressSnapshot{}, Err: err}
	}

	initial := r.tracker.Snapshot()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		r.execute(o.rootCtx)
	}()

	return Ack{
		Success:  true,
		Message:  fmt.Sprintf("Sync started for %d organizations", len(r.orgs)),
		SyncID:   r.syncID,
		Progress: initial.Organizations,
	}
}

// Wait blocks until every run started so far has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels background runs and waits for them, or for ctx
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
