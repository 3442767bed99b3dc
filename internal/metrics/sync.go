// Package metrics provides Prometheus metrics for sync runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-tracker/internal/models"
	"github.com/kuhlman-labs/migration-tracker/internal/syncer"
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains the Prometheus metrics reported by the sync engine
type SyncMetrics struct {
	RunsTotal          *prometheus.CounterVec   // Runs by final status
	RunDuration        *prometheus.HistogramVec // Run duration by final status
	OrganizationsTotal *prometheus.CounterVec   // Organizations by outcome
	RecordsTotal       *prometheus.CounterVec   // Records by upsert outcome
	PagesFetchedTotal  prometheus.Counter       // Pages fetched from the provider

	registry *prometheus.Registry
}

var _ syncer.Metrics = (*SyncMetrics)(nil)

// NewSyncMetrics creates the sync metrics and registers them with registry
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migtrack_sync_runs_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"status"}, // completed, failed
	)

	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "migtrack_sync_run_duration_seconds",
			Help:    "Wall time of sync runs by final status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}, // 1s to 1h
		},
		[]string{"status"},
	)

	m.OrganizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migtrack_sync_organizations_total",
			Help: "Total number of organizations walked by outcome",
		},
		[]string{"outcome"}, // ok, soft_terminated, error
	)

	m.RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migtrack_sync_records_total",
			Help: "Total number of migration records processed by upsert outcome",
		},
		[]string{"outcome"}, // created, updated, unchanged, rejected
	)

	m.PagesFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migtrack_sync_pages_fetched_total",
			Help: "Total number of migration pages fetched from the provider",
		},
	)
}

// RunFinished records a finished run
func (m *SyncMetrics) RunFinished(status models.SyncStatus, duration time.Duration) {
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// OrgFinished records a finished organization
func (m *SyncMetrics) OrgFinished(outcome string) {
	m.OrganizationsTotal.WithLabelValues(outcome).Inc()
}

// RecordProcessed records one processed migration record
func (m *SyncMetrics) RecordProcessed(outcome string) {
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// PageFetched records one fetched page
func (m *SyncMetrics) PageFetched() {
	m.PagesFetchedTotal.Inc()
}

// ObserveDropped exposes a broadcast topic's dropped-message counter
func (m *SyncMetrics) ObserveDropped(topic string, dropped func() uint64) error {
	c := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "migtrack_broadcast_dropped_total",
			Help:        "Messages dropped because a subscriber fell behind",
			ConstLabels: prometheus.Labels{"topic": topic},
		},
		func() float64 { return float64(dropped()) },
	)
	if err := m.registry.Register(c); err != nil {
		return fmt.Errorf("failed to register dropped counter for %s: %w", topic, err)
	}
	return nil
}

// Describe implements prometheus.Collector
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RunsTotal.Describe(ch)
	m.RunDuration.Describe(ch)
	m.OrganizationsTotal.Describe(ch)
	m.RecordsTotal.Describe(ch)
	m.PagesFetchedTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RunsTotal.Collect(ch)
	m.RunDuration.Collect(ch)
	m.OrganizationsTotal.Collect(ch)
	m.RecordsTotal.Collect(ch)
	m.PagesFetchedTotal.Collect(ch)
}
