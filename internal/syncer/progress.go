package syncer

import (
	"fmt"
	"sync"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/pubsub"
)

// DefaultProgressBatchSize is how many records pass between broadcasts
const DefaultProgressBatchSize = 10

type orgProgress struct {
	snap          models.ProgressSnapshot
	start         time.Time
	lastEmitCount int
	lastEmitAt    time.Time
}

// Tracker holds the live progress of every organization in one run and
// broadcasts the whole run each time any organization changes
type Tracker struct {
	mu         sync.Mutex
	syncID     string
	enterprise string
	order      []string
	orgs       map[string]*orgProgress
	topic      *pubsub.Topic[models.EnterpriseProgress]
	batchSize  int
	now        func() time.Time
}

// TrackerConfig configures a Tracker
type TrackerConfig struct {
	SyncID     string
	Enterprise string
	Orgs       []string
	// Topic may be nil, in which case nothing is broadcast
	Topic     *pubsub.Topic[models.EnterpriseProgress]
	BatchSize int
	Now       func() time.Time
}

// NewTracker starts every organization in PENDING
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultProgressBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Tracker{
		syncID:     cfg.SyncID,
		enterprise: cfg.Enterprise,
		orgs:       make(map[string]*orgProgress, len(cfg.Orgs)),
		topic:      cfg.Topic,
		batchSize:  cfg.BatchSize,
		now:        cfg.Now,
	}
	for _, login := range cfg.Orgs {
		if _, ok := t.orgs[login]; ok {
			continue
		}
		t.order = append(t.order, login)
		t.orgs[login] = &orgProgress{snap: models.ProgressSnapshot{
			SyncID:           cfg.SyncID,
			OrganizationName: login,
			State:            models.OrgPending,
		}}
	}
	return t
}

func (t *Tracker) org(login string) (*orgProgress, error) {
	p, ok := t.orgs[login]
	if !ok {
		return nil, fmt.Errorf("organization %s is not tracked by sync %s", login, t.syncID)
	}
	return p, nil
}

// Transition moves an organization through its state machine. Starting an
// organization stamps its clock; finishing it marks it completed and records
// errMsg when non-empty.
func (t *Tracker) Transition(login string, event models.OrgEvent, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.org(login)
	if err != nil {
		return err
	}
	next, err := p.snap.State.Next(event)
	if err != nil {
		return err
	}
	now := t.now()
	if event == models.OrgEventStart {
		p.start = now
		p.lastEmitAt = now
	}
	p.snap.State = next
	if next.IsDone() {
		p.snap.IsCompleted = true
		if errMsg != "" {
			msg := errMsg
			p.snap.Error = &msg
		}
	}
	t.emitLocked(login, now)
	return nil
}

// PageFetched records that page number of login was fetched. The current
// page and estimate never move backward.
func (t *Tracker) PageFetched(login string, page, estimatedTotalPages int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.org(login)
	if err != nil {
		return err
	}
	p.snap.CurrentPage = max(p.snap.CurrentPage, page)
	p.snap.TotalPages = max(p.snap.TotalPages, estimatedTotalPages)
	t.emitLocked(login, t.now())
	return nil
}

// RecordProcessed counts one more record for login and broadcasts on every
// batch boundary
func (t *Tracker) RecordProcessed(login string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, err := t.org(login)
	if err != nil {
		return err
	}
	p.snap.MigrationsCount++
	if p.snap.MigrationsCount%t.batchSize == 0 {
		t.emitLocked(login, t.now())
	}
	return nil
}

// emitLocked recomputes login's live metrics and broadcasts the whole run
func (t *Tracker) emitLocked(login string, now time.Time) {
	p := t.orgs[login]

	if !p.start.IsZero() {
		p.snap.ElapsedTimeMs = max(now.Sub(p.start).Milliseconds(), 0)
	}

	// the rate covers only what happened since the previous broadcast
	newRecords := p.snap.MigrationsCount - p.lastEmitCount
	interval := now.Sub(p.lastEmitAt)
	p.snap.ProcessingRate = nil
	switch {
	case newRecords > 0 && interval > 0:
		rate := float64(newRecords) / interval.Seconds()
		p.snap.ProcessingRate = &rate
		p.lastEmitCount = p.snap.MigrationsCount
		p.lastEmitAt = now
	case newRecords == 0:
		p.lastEmitAt = now
	}

	p.snap.EstimatedTimeRemainingMs = nil
	switch {
	case p.snap.IsCompleted:
		zero := int64(0)
		p.snap.EstimatedTimeRemainingMs = &zero
	case p.snap.TotalPages > 0 && p.snap.CurrentPage > 0 && p.snap.ProcessingRate != nil && *p.snap.ProcessingRate > 0:
		remainingPages := max(p.snap.TotalPages-p.snap.CurrentPage, 0)
		perPage := float64(p.snap.MigrationsCount) / float64(p.snap.CurrentPage)
		eta := int64(float64(remainingPages) * perPage / *p.snap.ProcessingRate * 1000)
		p.snap.EstimatedTimeRemainingMs = &eta
	}

	if t.topic != nil {
		t.topic.Publish(t.enterprise, t.snapshotLocked())
	}
}

func (t *Tracker) snapshotLocked() models.EnterpriseProgress {
	out := models.EnterpriseProgress{
		EnterpriseName: t.enterprise,
		SyncID:         t.syncID,
		Organizations:  make([]models.ProgressSnapshot, 0, len(t.order)),
	}
	for _, login := range t.order {
		snap := t.orgs[login].snap
		// detach pointers from the live state
		if snap.Error != nil {
			e := *snap.Error
			snap.Error = &e
		}
		if snap.ProcessingRate != nil {
			r := *snap.ProcessingRate
			snap.ProcessingRate = &r
		}
		if snap.EstimatedTimeRemainingMs != nil {
			eta := *snap.EstimatedTimeRemainingMs
			snap.EstimatedTimeRemainingMs = &eta
		}
		out.Organizations = append(out.Organizations, snap)
	}
	return out
}

// Snapshot returns the current progress of every organization
func (t *Tracker) Snapshot() models.EnterpriseProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Org returns the current progress of one organization
func (t *Tracker) Org(login string) (models.ProgressSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orgs[login]; !ok {
		return models.ProgressSnapshot{}, false
	}
	for _, snap := range t.snapshotLocked().Organizations {
		if snap.OrganizationName == login {
			return snap, true
		}
	}
	return models.ProgressSnapshot{}, false
}
