package syncer

import (
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
)

// Organization outcomes reported to Metrics
const (
	OrgOutcomeOK             = "ok"
	OrgOutcomeSoftTerminated = "soft_terminated"
	OrgOutcomeError          = "error"
)

// RecordOutcomeRejected is reported for records that failed validation
const RecordOutcomeRejected = "rejected"

// Metrics receives run telemetry
type Metrics interface {
	RunFinished(status models.SyncStatus, duration time.Duration)
	OrgFinished(outcome string)
	RecordProcessed(outcome string)
	PageFetched()
}

type noopMetrics struct{}

func (noopMetrics) RunFinished(models.SyncStatus, time.Duration) {}
func (noopMetrics) OrgFinished(string)                           {}
func (noopMetrics) RecordProcessed(string)                       {}
func (noopMetrics) PageFetched()                                 {}
