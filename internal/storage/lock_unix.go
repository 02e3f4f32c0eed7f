//go:build unix

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// LockJobs takes an exclusive flock on jobs.lock in the data directory.
// The lock is advisory and held by the open file, so it is dropped if the
// process dies.
func (f *FileStore) LockJobs() (func(), error) {
	lf, err := os.OpenFile(filepath.Join(f.dir, jobsLockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening job lock: %w", err)
	}
	for {
		err = syscall.Flock(int(lf.Fd()), syscall.LOCK_EX)
		if !errors.Is(err, syscall.EINTR) {
			break
		}
	}
	if err != nil {
		_ = lf.Close()
		return nil, fmt.Errorf("locking %s: %w", lf.Name(), err)
	}
	return func() {
		_ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		_ = lf.Close()
	}, nil
}
