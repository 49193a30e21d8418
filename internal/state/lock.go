// Package state implements the on-disk JSON state files and advisory file
// locks described for the recipe, config, and cache-revision granularities:
// a recipe lock at "<recipe>/.dop/lock", a config lock at
// "<recipe>/.dop/<build-id>.lock", and a revision lock at
// "<cache>/<name>/<ver>/<rev>.lock".
package state

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"

	"github.com/rtbo/dopamine/internal/diag"
)

// lockPollInterval is how often a blocking lock acquisition retries while
// waiting for a concurrent process to release the same file.
const lockPollInterval = 100 * time.Millisecond

// Lock wraps an advisory file lock. The zero value is not usable; construct
// with NewLock.
type Lock struct {
	path string
	fl   *flock.Flock
	log  *diag.Logger
}

// NewLock returns a Lock on the file at path. The file (and its parent
// directory) need not exist yet; acquiring the lock creates it.
func NewLock(path string, log *diag.Logger) *Lock {
	return &Lock{path: path, fl: flock.NewFlock(path), log: log}
}

// Path returns the underlying lock file's path.
func (l *Lock) Path() string { return l.path }

// Acquire takes an exclusive lock, blocking until it is available or ctx is
// canceled. It logs once if the acquisition blocks.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrapf(err, "locking %s", l.path)
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return errors.Wrapf(err, "locking %s", l.path)
	}
	if ok {
		return nil
	}
	if l.log != nil {
		l.log.LogDopfln("waiting for lock %s", l.path)
	}
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "locking %s", l.path)
		case <-time.After(lockPollInterval):
		}
		ok, err := l.fl.TryLock()
		if err != nil {
			return errors.Wrapf(err, "locking %s", l.path)
		}
		if ok {
			return nil
		}
	}
}

// AcquireShared takes a shared (read) lock, with the same blocking and
// cancellation semantics as Acquire.
func (l *Lock) AcquireShared(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrapf(err, "read-locking %s", l.path)
	}
	ok, err := l.fl.TryRLock()
	if err != nil {
		return errors.Wrapf(err, "read-locking %s", l.path)
	}
	if ok {
		return nil
	}
	if l.log != nil {
		l.log.LogDopfln("waiting for read lock %s", l.path)
	}
	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "read-locking %s", l.path)
		case <-time.After(lockPollInterval):
		}
		ok, err := l.fl.TryRLock()
		if err != nil {
			return errors.Wrapf(err, "read-locking %s", l.path)
		}
		if ok {
			return nil
		}
	}
}

// Release drops whichever lock (exclusive or shared) is currently held.
func (l *Lock) Release() error {
	return errors.Wrapf(l.fl.Unlock(), "unlocking %s", l.path)
}

// RecipePath returns the recipe-granularity lock path for the recipe at dir.
func RecipePath(recipeDir string) string {
	return dotDopPath(recipeDir, "lock")
}

// ConfigPath returns the build-config lock path for the recipe at dir and
// the given build id.
func ConfigPath(recipeDir, buildID string) string {
	return dotDopPath(recipeDir, buildID+".lock")
}

// RevisionPath returns the cache-revision lock path for (name, version,
// revision) rooted at cacheRoot.
func RevisionPath(cacheRoot, pkgDir, version, revision string) string {
	return cacheRoot + "/" + pkgDir + "/" + version + "/" + revision + ".lock"
}
