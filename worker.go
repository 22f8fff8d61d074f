package simpletq

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/UniQw/simpletq/internal/events"
	"github.com/UniQw/simpletq/internal/layout"
	"github.com/UniQw/simpletq/internal/metrics"
	"github.com/UniQw/simpletq/internal/pidfile"
	rtm "github.com/UniQw/simpletq/internal/runtime"
	"github.com/UniQw/simpletq/internal/shell"
	"github.com/UniQw/simpletq/internal/store"
	"github.com/fatih/color"
)

// WorkerConfig defines the configuration for a worker.
type WorkerConfig struct {
	// Root is the queue root directory.
	Root string
	// Host and PID form the worker identity. Zero values use the current host and process.
	Host string
	PID  int
	// PollInterval is the sleep after finding QUEUE empty (default 10s).
	PollInterval time.Duration
	// RacePause is the sleep after losing a claim to another worker (default 1s).
	RacePause time.Duration
	// Console receives the launch banner and a live copy of task output.
	// Nil means os.Stdout; use io.Discard to silence it.
	Console io.Writer
	// Logger is the logger used for worker events.
	Logger Logger
	// Publisher receives task transitions. Nil disables publication.
	Publisher Publisher
	// Metrics enables the Prometheus collectors served by ServeMetrics.
	Metrics bool
}

// Report describes one scheduler iteration.
type Report = rtm.Report

// Outcome of a scheduler iteration.
type Outcome = rtm.Outcome

const (
	OutcomeIdle     = rtm.OutcomeIdle
	OutcomeLostRace = rtm.OutcomeLostRace
	OutcomeFinished = rtm.OutcomeFinished
	OutcomeFailed   = rtm.OutcomeFailed
)

// Worker claims queued tasks one at a time, runs them and files the result.
type Worker struct {
	l           layout.Layout
	id          string
	cfg         WorkerConfig
	log         Logger
	pub         Publisher
	met         *metrics.Metrics
	runner      *shell.Runner
	console     io.Writer
	middlewares []Middleware

	mu      sync.Mutex
	running bool
	rt      *rtm.Runtime
}

// NewWorker creates a worker and makes sure the queue layout exists.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	l := layout.For(abs)
	if err := store.EnsureLayout(l); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		if cfg.Host, err = os.Hostname(); err != nil {
			return nil, err
		}
	}
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	lg := cfg.Logger
	if lg == nil {
		lg = NewFmtLogger()
	}
	var pub Publisher = events.Nop{}
	if cfg.Publisher != nil {
		pub = cfg.Publisher
	}
	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	w := &Worker{
		l:       l,
		id:      layout.Identity(cfg.Host, cfg.PID),
		cfg:     cfg,
		log:     lg,
		pub:     pub,
		runner:  shell.NewRunner(console),
		console: console,
	}
	if cfg.Metrics {
		w.met = metrics.New()
	}
	return w, nil
}

// Identity returns the "<host>-<pid>" worker identity.
func (w *Worker) Identity() string { return w.id }

// Root returns the absolute queue root.
func (w *Worker) Root() string { return w.l.Root }

// Use adds middleware around task execution. Middlewares run in the order
// they are added. It must be called before Run or RunOnce.
func (w *Worker) Use(mw Middleware) {
	w.middlewares = append(w.middlewares, mw)
}

func (w *Worker) runtime() *rtm.Runtime {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rt == nil {
		w.rt = rtm.New(rtm.Config{
			Layout:       w.l,
			Identity:     w.id,
			PollInterval: w.cfg.PollInterval,
			RacePause:    w.cfg.RacePause,
			Logger:       w.log,
		}, chain(w.execute, w.middlewares), w.observe)
	}
	return w.rt
}

// Run registers the liveness marker and processes tasks until ctx is done or
// a fatal filesystem error occurs. The marker is removed on every return path.
// A task that is running when ctx is cancelled is allowed to finish.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWorkerRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	marker, err := pidfile.Acquire(w.l.Pids, w.id)
	if err != nil {
		return err
	}
	defer func() {
		if err := marker.Release(); err != nil {
			w.log.Warnf("remove liveness marker failed: path=%s err=%v", marker.Path(), err)
		}
	}()

	err = w.runtime().Run(ctx)
	if err != nil {
		w.log.Errorf("worker stopped: %v", err)
		return err
	}
	w.log.Infof("worker %s stopped", w.id)
	return nil
}

// RunOnce performs a single poll/claim/execute/finalize iteration without
// sleeping and without registering a liveness marker.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	return w.runtime().RunOnce(ctx)
}

func (w *Worker) execute(_ context.Context, job Job) (Result, error) {
	color.New(color.Bold).Fprintf(w.console, "\n\n******** LAUNCHING %s ********\n\n\n", job.Name)
	w.met.Running(true)
	defer w.met.Running(false)
	return w.runner.Run(job.Dir, job.Name)
}

func (w *Worker) observe(tr rtm.Transition) {
	switch tr.Kind {
	case events.KindClaimed:
		w.met.Claimed()
	case events.KindLostRace:
		w.met.LostRace()
	case events.KindFinished, events.KindFailed:
		w.met.Completed(tr.Kind == events.KindFinished, tr.Duration)
	}
	ev := Event{
		Kind:       tr.Kind,
		Task:       tr.Task,
		Worker:     w.id,
		Path:       tr.Path,
		ExitCode:   tr.ExitCode,
		DurationMs: tr.Duration.Milliseconds(),
	}
	// Publication is best effort and must not stall the scheduler.
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	if err := w.pub.Publish(ctx, ev); err != nil {
		w.log.Warnf("publish %s event failed: task=%s err=%v", tr.Kind, tr.Task, err)
	}
}

// ServeMetrics exposes Prometheus metrics on addr until ctx is done.
// It returns immediately when metrics are disabled.
func (w *Worker) ServeMetrics(ctx context.Context, addr string) error {
	if w.met == nil || addr == "" {
		return nil
	}
	w.log.Infof("serving metrics on %s/metrics", addr)
	return w.met.Serve(ctx, addr)
}
