package fsprep

import (
	"fmt"
	"os"
)

// Chroot retains the current root directory as an open file descriptor,
// chroots into newRoot, and returns a Restore func that chroots back via
// the retained fd and restores the working directory. Grounded on the
// Python original's use of os.open(root_dir) + fchdir to reverse a chroot
// without forking a new process.
func Chroot(newRoot string) (restore func() error, err error) {
	rootFD, err := os.Open("/")
	if err != nil {
		return nil, fmt.Errorf("fsprep: open current root: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		rootFD.Close()
		return nil, fmt.Errorf("fsprep: getwd: %w", err)
	}

	if err := os.Chdir(newRoot); err != nil {
		rootFD.Close()
		return nil, fmt.Errorf("fsprep: chdir into new root: %w", err)
	}
	if err := chrootSys(newRoot); err != nil {
		rootFD.Close()
		return nil, fmt.Errorf("fsprep: chroot: %w", err)
	}

	return func() error {
		defer rootFD.Close()
		if err := rootFD.Chdir(); err != nil {
			return fmt.Errorf("fsprep: fchdir to retained root: %w", err)
		}
		if err := chrootSys("."); err != nil {
			return fmt.Errorf("fsprep: chroot back: %w", err)
		}
		if err := os.Chdir(cwd); err != nil {
			return fmt.Errorf("fsprep: restore cwd: %w", err)
		}
		return nil
	}, nil
}
