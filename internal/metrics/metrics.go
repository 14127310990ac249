// Package metrics exposes Prometheus metrics for limiter decisions.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/ipguard/internal/ratelimit"
)

// Recorder counts limiter decisions, blocks and storage failures.
// It implements ratelimit.Observer and ratelimit.EventSink.
type Recorder struct {
	// DecisionsTotal counts decisions by class, outcome and reason.
	DecisionsTotal *prometheus.CounterVec
	// BlocksTotal counts clients escalated to the block list, by class.
	BlocksTotal *prometheus.CounterVec
	// StorageErrorsTotal counts failed store operations.
	StorageErrorsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the limiter metrics with reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Total number of admission decisions",
			},
			[]string{"class", "outcome", "reason"},
		),
		BlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_blocks_total",
				Help: "Total number of clients blocked",
			},
			[]string{"class"},
		),
		StorageErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_storage_errors_total",
				Help: "Total number of failed store operations",
			},
			[]string{"store", "op"},
		),
		gatherer: gatherer,
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func (r *Recorder) ObserveDecision(result ratelimit.Result) {
	r.DecisionsTotal.WithLabelValues(string(result.Class), string(result.Outcome), string(result.Reason)).Inc()
}

func (r *Recorder) ObserveStorageError(store, op string) {
	r.StorageErrorsTotal.WithLabelValues(store, op).Inc()
}

// Notify counts block events.
func (r *Recorder) Notify(_ context.Context, event ratelimit.Event) error {
	if event.Type == ratelimit.EventIPBlocked {
		r.BlocksTotal.WithLabelValues(string(event.Class)).Inc()
	}

	return nil
}

// Handler returns the Prometheus scrape handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

var (
	_ ratelimit.Observer  = (*Recorder)(nil)
	_ ratelimit.EventSink = (*Recorder)(nil)
)
