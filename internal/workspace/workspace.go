// Package workspace guards the data directory so only one command writes to
// it at a time.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// LockName is the lock file created inside the data directory.
const LockName = ".presenter.lock"

// ErrBusy is returned when another command holds the workspace.
var ErrBusy = errors.New("workspace is in use by another presenter command")

// Workspace is a locked data directory.
type Workspace struct {
	Dir  string
	lock *flock.Flock
}

// Acquire creates dir when missing and takes its lock without waiting.
func Acquire(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}
	lockPath := filepath.Join(dir, LockName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, errors.Wrapf(ErrBusy, "lock %s", lockPath)
	}
	return &Workspace{Dir: dir, lock: lock}, nil
}

// Release drops the lock.
func (w *Workspace) Release() error {
	if w == nil || w.lock == nil {
		return nil
	}
	return errors.Wrap(w.lock.Unlock(), "release lock")
}

// EnsureFree fails when the filesystem holding path has less than min bytes
// available.
func EnsureFree(path string, min uint64) (uint64, error) {
	free, err := FreeBytes(path)
	if err != nil {
		return 0, err
	}
	if free < min {
		return free, fmt.Errorf("insufficient disk space at %s: %s free, %s required",
			path, humanize.Bytes(free), humanize.Bytes(min))
	}
	return free, nil
}
