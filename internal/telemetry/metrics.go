// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the config center's Prometheus metrics:
// query volume and latency, per-namespace rebuild outcomes, and snapshot
// age.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the center registers. It is not a
// singleton so tests can register an isolated instance against their own
// prometheus.Registry.
type Metrics struct {
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	RebuildsTotal      *prometheus.CounterVec
	RebuildFailures    *prometheus.CounterVec
	SnapshotAgeSeconds *prometheus.GaugeVec
}

// New constructs a Metrics bundle with unregistered collectors.
func New() *Metrics {
	return &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfgcenter_queries_total",
			Help: "Total number of Namespace.Get calls, by namespace and view mode.",
		}, []string{"namespace", "view"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfgcenter_query_duration_seconds",
			Help:    "Latency of Namespace.Get calls, by namespace.",
			Buckets: prometheus.DefBuckets,
		}, []string{"namespace"}),
		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfgcenter_rebuilds_total",
			Help: "Total snapshot rebuilds attempted, by namespace.",
		}, []string{"namespace"}),
		RebuildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfgcenter_rebuild_failures_total",
			Help: "Snapshot rebuilds that failed and left the previous snapshot serving, by namespace.",
		}, []string{"namespace"}),
		SnapshotAgeSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfgcenter_snapshot_age_seconds",
			Help: "Seconds since the currently-served snapshot was built, by namespace.",
		}, []string{"namespace"}),
	}
}

// MustRegister registers every collector in m against reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.QueriesTotal, m.QueryDuration, m.RebuildsTotal, m.RebuildFailures, m.SnapshotAgeSeconds)
}

// ObserveQuery records one query's outcome for namespace/view.
func (m *Metrics) ObserveQuery(namespace, view string, seconds float64) {
	m.QueriesTotal.WithLabelValues(namespace, view).Inc()
	m.QueryDuration.WithLabelValues(namespace).Observe(seconds)
}

// ObserveRebuild records a rebuild attempt and, if it failed, a failure.
func (m *Metrics) ObserveRebuild(namespace string, ok bool) {
	m.RebuildsTotal.WithLabelValues(namespace).Inc()
	if !ok {
		m.RebuildFailures.WithLabelValues(namespace).Inc()
	}
}

// SetSnapshotAge records how old the currently-served snapshot is.
func (m *Metrics) SetSnapshotAge(namespace string, seconds float64) {
	m.SnapshotAgeSeconds.WithLabelValues(namespace).Set(seconds)
}
