package simpletq

import (
	"github.com/UniQw/simpletq/internal/runtime"
	"github.com/UniQw/simpletq/internal/shell"
)

// Job is a claimed task: its name and the running directory it executes in.
type Job = runtime.Job

// Result is the exit status of a task script.
type Result = shell.Result

// Executor runs a claimed job. Returning an error marks the task failed.
type Executor = runtime.Executor

// Middleware wraps an Executor to provide cross-cutting concerns.
type Middleware func(Executor) Executor

func chain(exec Executor, mws []Middleware) Executor {
	for i := len(mws) - 1; i >= 0; i-- {
		exec = mws[i](exec)
	}
	return exec
}
