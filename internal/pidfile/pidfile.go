package pidfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Marker is an acquired liveness marker. Release removes it exactly once.
type Marker struct {
	path string
	once sync.Once
	err  error
}

// Acquire creates the empty marker file dir/id.
func Acquire(dir, id string) (*Marker, error) {
	path := filepath.Join(dir, id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &Marker{path: path}, nil
}

// Path returns the marker location.
func (m *Marker) Path() string { return m.path }

// Release removes the marker. It is safe to call many times and from any exit path.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.err = err
		}
	})
	return m.err
}
