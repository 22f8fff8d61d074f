package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/UniQw/simpletq/internal/layout"
	"github.com/google/uuid"
)

// ErrLostRace is returned by Claim when another worker moved the queued file first.
// It is an expected outcome, not a failure of the queue.
var ErrLostRace = errors.New("store: lost claim race")

// ErrCorrupt is returned by Finalize when a rename fails for a reason other than
// a name collision. The worker cannot reason about such a tree and must stop.
var ErrCorrupt = errors.New("store: unexpected filesystem state")

// tempPrefix names scripts being staged in the queue root before submission.
const tempPrefix = ".stq-tmp-"

// maxProbe bounds suffix probing so a broken filesystem cannot spin forever.
const maxProbe = 1 << 20

// Entry is a queued task record as seen by the scheduler.
type Entry struct {
	Name    string
	ModTime time.Time
}

// EnsureLayout creates the queue root and its state containers if absent.
func EnsureLayout(l layout.Layout) error {
	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// CreateQueued atomically creates a queued task file. When name is taken it
// probes name_1, name_2, ... and returns the first name it could create.
// The content is written to a temporary file in the queue root first and then
// hard linked into QUEUE, so a worker never sees a partial script and a failed
// write leaves nothing behind. Link fails on an existing name, which makes the
// probe safe against concurrent submitters.
func CreateQueued(l layout.Layout, name string, content []byte) (string, error) {
	tmp, err := writeTemp(l.Root, content)
	if err != nil {
		return "", fmt.Errorf("stage queued %s: %w", name, err)
	}
	defer os.Remove(tmp)

	for n := 0; n < maxProbe; n++ {
		candidate := layout.Suffixed(name, n)
		err := os.Link(tmp, filepath.Join(l.Queue, candidate))
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create queued %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("create queued %s: no free name", name)
}

func writeTemp(dir string, content []byte) (string, error) {
	path := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o755)
	if err != nil {
		return "", err
	}
	_, err = f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// ListQueued returns the current QUEUE entries with their modification times.
// Entries claimed by another worker between listing and stat are skipped.
func ListQueued(l layout.Layout) ([]Entry, error) {
	des, err := os.ReadDir(l.Queue)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return queuedEntries(des)
}

func queuedEntries(des []fs.DirEntry) ([]Entry, error) {
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat queued %s: %w", de.Name(), err)
		}
		out = append(out, Entry{Name: de.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Oldest picks the entry with the smallest (mtime, name) pair.
func Oldest(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.ModTime.Before(best.ModTime) || (e.ModTime.Equal(best.ModTime) && e.Name < best.Name) {
			best = e
		}
	}
	return best, true
}

// SortFIFO orders entries the way the scheduler would pick them.
func SortFIFO(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.Before(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
}

// Claim creates RUNNING/<dirName> and moves the queued file into it.
// It returns the running directory on success. If the rename fails the
// directory is removed again and ErrLostRace is returned.
func Claim(l layout.Layout, name, dirName string) (string, error) {
	dir := filepath.Join(l.Running, dirName)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create running dir %s: %w", dirName, err)
	}
	if err := os.Rename(filepath.Join(l.Queue, name), filepath.Join(dir, name)); err != nil {
		if rerr := os.Remove(dir); rerr != nil {
			return "", fmt.Errorf("remove running dir %s after lost race: %w", dirName, rerr)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrLostRace, name, err)
	}
	return dir, nil
}

// Finalize renames a running directory into FINISHED or FAILED under base,
// probing base_1, base_2, ... while the destination exists. It never replaces
// an existing record. Any other failure wraps ErrCorrupt.
func Finalize(l layout.Layout, runningDir, base string, succeeded bool) (string, error) {
	parent := l.Terminal(succeeded)
	for n := 0; n < maxProbe; n++ {
		dst := filepath.Join(parent, layout.Suffixed(base, n))
		// rename(2) replaces an empty directory silently; refuse to do so.
		if exists(dst) {
			continue
		}
		err := os.Rename(runningDir, dst)
		if err == nil {
			return dst, nil
		}
		if !exists(dst) {
			return "", fmt.Errorf("%w: rename %s to %s: %v", ErrCorrupt, runningDir, dst, err)
		}
	}
	return "", fmt.Errorf("%w: no free name for %s in %s", ErrCorrupt, base, parent)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
