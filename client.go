package simpletq

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UniQw/simpletq/internal/events"
	"github.com/UniQw/simpletq/internal/layout"
	"github.com/UniQw/simpletq/internal/store"
)

// Shebang is the first line of every task script.
const Shebang = "#!/bin/bash\n"

// Client submits and inspects tasks below a queue root.
type Client struct {
	l   layout.Layout
	pub Publisher
	log Logger

	publishTimeout time.Duration
}

// NewClient creates a client for the queue root, creating the directory
// layout if it does not exist yet.
func NewClient(root string, opts ...ClientOption) (*Client, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	c := &Client{
		l:              layout.For(abs),
		pub:            events.Nop{},
		log:            NewFmtLogger(),
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := store.EnsureLayout(c.l); err != nil {
		return nil, err
	}
	return c, nil
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientPublisher makes Submit publish a "submitted" event.
func WithClientPublisher(p Publisher) ClientOption {
	return func(c *Client) {
		if p != nil {
			c.pub = p
		}
	}
}

// WithClientLogger sets the logger used for non-fatal diagnostics.
func WithClientLogger(l Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Root returns the absolute queue root.
func (c *Client) Root() string { return c.l.Root }

// Submit queues command as a new task and returns the name it was stored under.
// When the name is taken, the smallest free suffix _1, _2, ... is used.
func (c *Client) Submit(ctx context.Context, command string, opts ...Option) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	name := cfg.name
	if name == "" {
		name = DeriveName(command)
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}

	created, err := store.CreateQueued(c.l, name, BuildScript(command, cfg.workingDir))
	if err != nil {
		return "", err
	}
	pctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()
	if err := c.pub.Publish(pctx, Event{
		Kind: events.KindSubmitted,
		Task: created,
		Path: filepath.Join(c.l.Queue, created),
	}); err != nil {
		c.log.Warnf("publish submitted event failed: task=%s err=%v", created, err)
	}
	return created, nil
}

var nameReplacer = strings.NewReplacer(
	"/", "_",
	`"`, "_",
	"'", "_",
	" ", "_",
	";", "-",
	`\`, "",
)

// DeriveName turns a command into a file-system safe task name: leading '.'
// and '/' characters are dropped, '/', quotes and spaces become '_', ';'
// becomes '-' and backslashes are removed.
func DeriveName(command string) string {
	return nameReplacer.Replace(strings.TrimLeft(command, "./"))
}

// ValidateName rejects names that cannot live as a single file in QUEUE or
// would clash with the output capture of a running record.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case name == layout.OutputFile:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// BuildScript returns the task script: shebang, an optional cd line and the
// command verbatim. No quoting is applied; the submitter is trusted.
func BuildScript(command, workingDir string) []byte {
	var b strings.Builder
	b.WriteString(Shebang)
	if workingDir != "" {
		b.WriteString("cd " + workingDir + "\n")
	}
	b.WriteString(command)
	return []byte(b.String())
}

// TaskFilter is a function used to filter tasks during ListTasks.
type TaskFilter func(*Task) bool

// ListTasks returns the records in state. Queued tasks come in scheduling
// order; other states are sorted by name.
func (c *Client) ListTasks(state State, filter TaskFilter) ([]*Task, error) {
	dir, err := state.dir(c.l)
	if err != nil {
		return nil, err
	}
	var out []*Task
	if state == StateQueued {
		entries, err := store.ListQueued(c.l)
		if err != nil {
			return nil, err
		}
		store.SortFIFO(entries)
		for _, e := range entries {
			t := &Task{Name: e.Name, State: state, Path: filepath.Join(dir, e.Name), ModTime: e.ModTime}
			if filter == nil || filter(t) {
				out = append(out, t)
			}
		}
		return out, nil
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", state, err)
	}
	for _, de := range des {
		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t := &Task{Name: de.Name(), State: state, Path: filepath.Join(dir, de.Name()), ModTime: info.ModTime()}
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Output returns the captured out.txt of a running or terminal record.
func (c *Client) Output(t *Task) ([]byte, error) {
	if t == nil || t.State == StateQueued {
		return nil, errors.New("simpletq: queued tasks have no output")
	}
	return os.ReadFile(filepath.Join(t.Path, layout.OutputFile))
}
