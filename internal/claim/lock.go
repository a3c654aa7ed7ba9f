package claim

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// lockSuffix names the advisory lock directory next to a target.
const lockSuffix = ".lck"

// LockDir implements advisory per-item locks via create-if-absent
// directory semantics: mkdir succeeds for exactly one caller, even
// across processes that share nothing but the filesystem.
//
// These locks are a best-effort safety net against external
// interference (a second diskburn instance, leftovers from a crashed
// run); the claim counter alone already guarantees exactly-once
// within a run. Failure to acquire is therefore a skip, never an
// error and never a wait.
type LockDir struct {
	dir string
}

// NewLockDir returns a lock manager for targets under dir.
func NewLockDir(dir string) *LockDir {
	return &LockDir{dir: dir}
}

// TryLock attempts to acquire the advisory lock for target. It
// reports false if another holder exists or the mkdir fails for any
// other reason; the item is then presumed in use or already done.
func (l *LockDir) TryLock(target string) bool {
	err := os.Mkdir(target+lockSuffix, 0o755)
	if err != nil && !os.IsExist(err) {
		logrus.WithError(err).WithField("target", target).
			Debug("advisory lock unavailable")
	}
	return err == nil
}

// Unlock releases the advisory lock for target. Releasing a lock that
// is not held is a no-op.
func (l *LockDir) Unlock(target string) {
	if err := os.Remove(target + lockSuffix); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).WithField("target", target).
			Warn("failed to release advisory lock")
	}
}

// Sweep removes every advisory lock directory under the managed
// directory. The orchestrator runs it unconditionally at run end (and
// at startup, against stale state from a crashed run) so leftover
// locks cannot poison the next run.
func (l *LockDir) Sweep() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), lockSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
