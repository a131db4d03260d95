// Package metrics provides the Prometheus collectors for migration runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics counts record outcomes, identity lookups, pipeline days
// and CRM write latency.
type MigrationMetrics struct {
	records       *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	pipelineDays  *prometheus.CounterVec
	writeDuration prometheus.Histogram
	writeErrors   prometheus.Counter

	collectors []prometheus.Collector
}

// NewMigrationMetrics creates the collectors and registers them on registry.
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmsync_records_total",
			Help: "Source records processed, by kind (policy, call) and outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmsync_identity_lookups_total",
			Help: "Identity cache resolutions by entity and result",
		},
		[]string{"entity", "result"},
	)
	m.pipelineDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmsync_pipeline_days_total",
			Help: "Backfill days by terminal outcome",
		},
		[]string{"outcome"},
	)
	m.writeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmsync_write_duration_seconds",
			Help:    "Latency of CRM mutations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	m.writeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crmsync_write_errors_total",
			Help: "CRM mutations that returned an error",
		},
	)

	m.collectors = []prometheus.Collector{m.records, m.lookups, m.pipelineDays, m.writeDuration, m.writeErrors}
}

// Describe implements prometheus.Collector.
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *MigrationMetrics) RecordOutcome(kind, outcome string) {
	m.records.WithLabelValues(kind, outcome).Inc()
}

// RecordLookup has the identity.Observer signature.
func (m *MigrationMetrics) RecordLookup(entity, result string) {
	m.lookups.WithLabelValues(entity, result).Inc()
}

func (m *MigrationMetrics) RecordPipelineDay(outcome string) {
	m.pipelineDays.WithLabelValues(outcome).Inc()
}

// ObserveWrite has the graphql write observer signature.
func (m *MigrationMetrics) ObserveWrite(d time.Duration, err error) {
	m.writeDuration.Observe(d.Seconds())
	if err != nil {
		m.writeErrors.Inc()
	}
}
