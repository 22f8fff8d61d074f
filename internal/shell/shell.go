package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/UniQw/simpletq/internal/layout"
)

// Result describes how a task script ended.
type Result struct {
	// ExitCode is the process exit status, or -1 when the script could not be
	// started or died from a signal.
	ExitCode int
	// Err holds a start failure; it is also written to the capture file.
	Err error
}

// Succeeded reports whether the script exited with status zero.
func (r Result) Succeeded() bool { return r.Err == nil && r.ExitCode == 0 }

// Runner executes task scripts inside their running directory.
type Runner struct {
	// Console receives a live copy of the task output. Nil discards it.
	Console io.Writer
	// Unbuffer is the command prefix used to disable stdio buffering of the
	// child, e.g. ["stdbuf", "-o0", "-e0"]. Empty runs the script directly.
	Unbuffer []string
}

// NewRunner returns a Runner writing to console, wrapping scripts with
// stdbuf when it is available on PATH.
func NewRunner(console io.Writer) *Runner {
	r := &Runner{Console: console}
	if p, err := exec.LookPath("stdbuf"); err == nil {
		r.Unbuffer = []string{p, "-o0", "-e0"}
	}
	return r
}

// MakeExecutable adds the owner execute bit to path.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0o100)
}

// Run executes dir/script with dir as working directory. Stdout and stderr share
// one pipe so their interleaving is preserved, and the stream is duplicated to
// the console and dir/out.txt. A non-nil error means the capture file itself
// could not be handled; task failures are reported through Result.
func (r *Runner) Run(dir, script string) (Result, error) {
	scriptPath := filepath.Join(dir, script)
	out, err := os.OpenFile(filepath.Join(dir, layout.OutputFile), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("open output: %w", err)
	}
	defer out.Close()

	var w io.Writer = out
	if r.Console != nil {
		w = io.MultiWriter(r.Console, out)
	}

	if err := MakeExecutable(scriptPath); err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return Result{ExitCode: -1, Err: err}, nil
	}

	argv := append(append([]string{}, r.Unbuffer...), scriptPath)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = w
	cmd.Stderr = w

	err = cmd.Run()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return Result{ExitCode: ee.ExitCode()}, nil
	}
	fmt.Fprintf(w, "%v\n", err)
	return Result{ExitCode: -1, Err: err}, nil
}
