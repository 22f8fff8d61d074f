package simpletq

import (
	"errors"

	"github.com/UniQw/simpletq/internal/store"
)

// ErrUnknownState is returned when an invalid state is used.
var ErrUnknownState = errors.New("simpletq: unknown state")

// ErrEmptyCommand is returned by Submit when the command is blank.
var ErrEmptyCommand = errors.New("simpletq: empty command")

// ErrInvalidName is returned when a task name cannot be used as a file name.
var ErrInvalidName = errors.New("simpletq: invalid task name")

// ErrWorkerRunning is returned when Run is called on a worker that is already running.
var ErrWorkerRunning = errors.New("simpletq: worker already running")

// ErrCorrupt reports a filesystem state the worker cannot reason about,
// e.g. a terminal directory that vanished. Run returns it and the worker must stop.
var ErrCorrupt = store.ErrCorrupt
