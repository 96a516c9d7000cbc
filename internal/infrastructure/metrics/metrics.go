// Package metrics exposes Prometheus metrics for approval transitions.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

const namespace = "approvals"

// Recorder turns transition events into metrics
type Recorder struct {
	registry *prometheus.Registry

	transitionsTotal  *prometheus.CounterVec
	pendingRequests   *prometheus.GaugeVec
	completionSeconds *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Committed request transitions by event type",
			},
			[]string{"event_type"},
		),
		pendingRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_requests",
				Help:      "Requests awaiting a decision, seeded from storage at startup",
			},
			[]string{"company_id"},
		),
		completionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "completion_seconds",
				Help:      "Time from submission to a terminal status",
				Buckets:   []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600},
			},
			[]string{"status"},
		),
	}

	r.registry.MustRegister(
		r.transitionsTotal,
		r.pendingRequests,
		r.completionSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handle is a dispatcher handler; it never fails
func (r *Recorder) Handle(ctx context.Context, evt *event.Event) error {
	r.transitionsTotal.WithLabelValues(evt.Type.String()).Inc()

	switch {
	case evt.Type == event.TypeRequestSubmitted:
		r.pendingRequests.WithLabelValues(evt.CompanyID).Inc()
	case evt.Type.IsTerminal():
		r.pendingRequests.WithLabelValues(evt.CompanyID).Dec()
		if submitted, ok := evt.Payload["submitted_at"].(time.Time); ok {
			elapsed := evt.Timestamp.Sub(submitted)
			if elapsed < 0 {
				elapsed = 0
			}
			r.completionSeconds.WithLabelValues(string(evt.NewStatus)).Observe(elapsed.Seconds())
		}
	}
	return nil
}

// SeedPending sets the pending gauge from stored counts. Call it before
// subscribing Handle so that later events adjust a correct baseline.
func (r *Recorder) SeedPending(counts map[string]int) {
	for companyID, n := range counts {
		r.pendingRequests.WithLabelValues(companyID).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
