// Package metrics holds the Prometheus collectors for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	handler       http.Handler
	runs          *prometheus.CounterVec
	eventsFetched prometheus.Gauge
	userOutcomes  *prometheus.CounterVec
	writeActions  *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
}

func New() *Recorder {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxcalsync_runs_total",
		Help: "Sync runs by result",
	}, []string{"result"})

	eventsFetched := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fxcalsync_events_fetched",
		Help: "Number of qualifying events fetched by the latest run",
	})

	userOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxcalsync_user_outcomes_total",
		Help: "Per-user sync outcomes by status",
	}, []string{"status"})

	writeActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxcalsync_event_writes_total",
		Help: "Calendar event writes by action",
	}, []string{"action"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fxcalsync_run_duration_seconds",
		Help:    "Duration of sync runs in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fxcalsync_last_run_timestamp_seconds",
		Help: "Unix time the latest run finished",
	})

	registry.MustRegister(runs, eventsFetched, userOutcomes, writeActions, runDuration, lastRun)

	return &Recorder{
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		runs:          runs,
		eventsFetched: eventsFetched,
		userOutcomes:  userOutcomes,
		writeActions:  writeActions,
		runDuration:   runDuration,
		lastRun:       lastRun,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

func (r *Recorder) EventsFetched(n int) {
	if r == nil {
		return
	}
	r.eventsFetched.Set(float64(n))
}

func (r *Recorder) UserOutcome(status string) {
	if r == nil {
		return
	}
	r.userOutcomes.WithLabelValues(status).Inc()
}

func (r *Recorder) WriteActions(action string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.writeActions.WithLabelValues(action).Add(float64(n))
}

// RunFinished records one run; result is "ok", "empty" or "error".
func (r *Recorder) RunFinished(result string, duration time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
	r.runDuration.Observe(duration.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}
