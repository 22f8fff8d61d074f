package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one worker. All methods are
// no-ops on a nil receiver so callers never need to check configuration.
type Metrics struct {
	reg       *prometheus.Registry
	claimed   prometheus.Counter
	lostRaces prometheus.Counter
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	running   prometheus.Gauge
}

// New creates a private registry and registers the worker collectors on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		claimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stq",
			Name:      "tasks_claimed_total",
			Help:      "Tasks moved from QUEUE to RUNNING by this worker.",
		}),
		lostRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stq",
			Name:      "claim_races_lost_total",
			Help:      "Claims lost to another worker.",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stq",
			Name:      "tasks_completed_total",
			Help:      "Tasks finalized, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stq",
			Name:      "task_duration_seconds",
			Help:      "Wall time of task scripts.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stq",
			Name:      "task_running",
			Help:      "1 while a task is executing.",
		}),
	}
	reg.MustRegister(m.claimed, m.lostRaces, m.completed, m.duration, m.running)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Claimed() {
	if m == nil {
		return
	}
	m.claimed.Inc()
}

func (m *Metrics) LostRace() {
	if m == nil {
		return
	}
	m.lostRaces.Inc()
}

func (m *Metrics) Running(on bool) {
	if m == nil {
		return
	}
	if on {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

// Completed records a finalized task.
func (m *Metrics) Completed(succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := Outcome(succeeded)
	m.completed.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Outcome maps a task result to its label value.
func Outcome(succeeded bool) string {
	if succeeded {
		return "finished"
	}
	return "failed"
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
