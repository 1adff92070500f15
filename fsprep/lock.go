//go:build !windows

package fsprep

import (
	"fmt"
	"os"
	"syscall"
)

// Lock is a held advisory file lock; call Unlock to release it.
type Lock struct {
	f *os.File
}

// Flock acquires an exclusive advisory lock on path, creating the lock
// file if it doesn't exist. Serializes concurrent gator runs that would
// otherwise race over the same device-allocation table.
func Flock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fsprep: open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("fsprep: flock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Locked reports whether path is currently held by another Flock holder,
// without blocking.
func Locked(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("fsprep: open lock file %s: %w", path, err)
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return true, nil
		}
		return false, fmt.Errorf("fsprep: flock probe %s: %w", path, err)
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *Lock) Unlock() error {
	defer l.f.Close()
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("fsprep: unlock %s: %w", l.f.Name(), err)
	}
	return nil
}
