package layout

import (
	"path/filepath"
	"strconv"
)

// Package layout centralizes queue-root path construction.
// It is kept in internal to avoid leaking path formats to public API.

// Names of the state containers below a queue root.
const (
	QueueDir    = "QUEUE"
	RunningDir  = "RUNNING"
	FailedDir   = "FAILED"
	FinishedDir = "FINISHED"
	PidsDir     = "PIDS"

	// OutputFile is the capture of combined stdout/stderr inside a record directory.
	OutputFile = "out.txt"
)

// Layout holds all precomputed paths for a queue root to avoid repeated joins.
type Layout struct {
	Root     string
	Queue    string
	Running  string
	Failed   string
	Finished string
	Pids     string
}

// For returns the set of paths for the provided queue root.
func For(root string) Layout {
	root = filepath.Clean(root)
	return Layout{
		Root:     root,
		Queue:    filepath.Join(root, QueueDir),
		Running:  filepath.Join(root, RunningDir),
		Failed:   filepath.Join(root, FailedDir),
		Finished: filepath.Join(root, FinishedDir),
		Pids:     filepath.Join(root, PidsDir),
	}
}

// Dirs lists every directory of the layout, root first.
func (l Layout) Dirs() []string {
	return []string{l.Root, l.Queue, l.Running, l.Failed, l.Finished, l.Pids}
}

// Terminal returns FINISHED for a successful task and FAILED otherwise.
func (l Layout) Terminal(succeeded bool) string {
	if succeeded {
		return l.Finished
	}
	return l.Failed
}

// Identity returns the worker identity "<host>-<pid>" used for the liveness
// marker and as prefix of running directories.
func Identity(host string, pid int) string { return host + "-" + strconv.Itoa(pid) }

// RunningName returns the name of a worker-private running directory.
// It is unique per (host, pid, task) so two workers never share a destination.
func RunningName(identity, task string) string { return identity + "-" + task }

// Suffixed returns base for n == 0 and "base_n" otherwise.
func Suffixed(base string, n int) string {
	if n == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(n)
}
