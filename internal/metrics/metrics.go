// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WorkQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cronbridge_workqueue_length",
		Help: "Number of distinct schedule ids currently in the internal work queue.",
	})

	SchedulerIndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cronbridge_schedule_index_size",
		Help: "Number of schedules currently tracked by the scheduler index.",
	})

	EnqueueTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronbridge_enqueue_total",
		Help: "Outcomes of queue enqueuer calls.",
	}, []string{"outcome"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "cronbridge_fetch_duration_seconds",
		Help: "Latency of task payload fetches.",
	})

	ReviewErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cronbridge_review_errors_total",
		Help: "Errors observed by the review worker, and payload fetch errors observed by the timer loop, by kind.",
	}, []string{"kind"})
)

// Serve starts a minimal HTTP server exposing /metrics at addr until
// ctx is cancelled. Intended to run in its own goroutine; a bind
// failure is logged by the caller, not treated as fatal, since
// metrics export is ambient instrumentation, not core functionality.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errc:
		return err
	}
}
