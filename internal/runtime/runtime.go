package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UniQw/simpletq/internal/events"
	"github.com/UniQw/simpletq/internal/layout"
	"github.com/UniQw/simpletq/internal/shell"
	"github.com/UniQw/simpletq/internal/store"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

const (
	DefaultPollInterval = 10 * time.Second
	DefaultRacePause    = time.Second
)

type Config struct {
	Layout   layout.Layout
	Identity string
	// PollInterval is the sleep after a poll that found QUEUE empty.
	PollInterval time.Duration
	// RacePause is the sleep after losing a claim to another worker.
	RacePause time.Duration
	Logger    Logger
}

// Job is a claimed task record.
type Job struct {
	Name string
	Dir  string
}

// Executor runs a claimed job inside its running directory.
type Executor func(ctx context.Context, job Job) (shell.Result, error)

// Transition is reported to the Observer on every state change of a task.
type Transition struct {
	Kind     events.Kind
	Task     string
	Path     string
	ExitCode int
	Duration time.Duration
}

// Observer receives transitions. It must not block for long.
type Observer func(Transition)

// Outcome is the result of one scheduler iteration.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeLostRace
	OutcomeFinished
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeLostRace:
		return "lost_race"
	case OutcomeFinished:
		return "finished"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Report describes what one iteration did.
type Report struct {
	Outcome  Outcome
	Task     string
	Path     string
	ExitCode int
}

type Runtime struct {
	cfg     Config
	exec    Executor
	observe Observer
	log     Logger
	waiting bool
}

// New creates a scheduler over cfg.Layout. observe may be nil.
func New(cfg Config, exec Executor, observe Observer) *Runtime {
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RacePause <= 0 {
		cfg.RacePause = DefaultRacePause
	}
	if observe == nil {
		observe = func(Transition) {}
	}
	return &Runtime{cfg: cfg, exec: exec, observe: observe, log: lg}
}

// Run polls until ctx is done or a fatal error occurs. Cancellation is only
// honoured between tasks; a running script is never interrupted.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.log.Infof("worker %s polling %s", rt.cfg.Identity, rt.cfg.Layout.Queue)
	for {
		if ctx.Err() != nil {
			return nil
		}
		rep, err := rt.RunOnce(ctx)
		if err != nil {
			return err
		}
		switch rep.Outcome {
		case OutcomeIdle:
			if !sleep(ctx, rt.cfg.PollInterval) {
				return nil
			}
		case OutcomeLostRace:
			if !sleep(ctx, rt.cfg.RacePause) {
				return nil
			}
		}
	}
}

// RunOnce performs a single poll/claim/execute/finalize iteration without sleeping.
func (rt *Runtime) RunOnce(ctx context.Context) (Report, error) {
	entries, err := store.ListQueued(rt.cfg.Layout)
	if err != nil {
		return Report{}, err
	}
	oldest, ok := store.Oldest(entries)
	if !ok {
		if !rt.waiting {
			rt.log.Infof("NO NEW TASKS FOUND, WAITING ...")
			rt.waiting = true
		}
		return Report{Outcome: OutcomeIdle}, nil
	}
	rt.waiting = false

	name := oldest.Name
	dir, err := store.Claim(rt.cfg.Layout, name, layout.RunningName(rt.cfg.Identity, name))
	if errors.Is(err, store.ErrLostRace) {
		rt.log.Warnf("FAILED TO SETUP %s", name)
		rt.log.Debugf("claim: %v", err)
		rt.observe(Transition{Kind: events.KindLostRace, Task: name})
		return Report{Outcome: OutcomeLostRace, Task: name}, nil
	}
	if err != nil {
		return Report{}, err
	}
	rt.observe(Transition{Kind: events.KindClaimed, Task: name, Path: dir})

	start := time.Now()
	res, err := rt.exec(ctx, Job{Name: name, Dir: dir})
	if err != nil {
		rt.log.Errorf("execute failed: task=%s dir=%s err=%v", name, dir, err)
		res = shell.Result{ExitCode: -1, Err: err}
	}
	elapsed := time.Since(start)

	succeeded := res.Succeeded()
	final, err := store.Finalize(rt.cfg.Layout, dir, name, succeeded)
	if err != nil {
		return Report{}, err
	}

	rep := Report{Outcome: OutcomeFinished, Task: name, Path: final, ExitCode: res.ExitCode}
	kind := events.KindFinished
	if !succeeded {
		rep.Outcome = OutcomeFailed
		kind = events.KindFailed
		rt.log.Warnf("task failed: task=%s exit=%d dur=%s path=%s", name, res.ExitCode, elapsed, final)
	} else {
		rt.log.Infof("task finished: task=%s dur=%s path=%s", name, elapsed, final)
	}
	rt.observe(Transition{Kind: kind, Task: name, Path: final, ExitCode: res.ExitCode, Duration: elapsed})
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
