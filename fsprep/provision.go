package fsprep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// provisionBackupSuffix matches the Python original's rename scheme for
// files gator temporarily overwrites during provisioning (e.g.
// /etc/resolv.conf) and restores on exit.
const provisionBackupSuffix = ".gator_bak"

// InstallProvisionConfig copies src over dst inside the chroot, first
// backing up any existing dst so RemoveProvisionConfig can restore it. A
// missing src is a no-op: not every provisioner ships every optional file.
func InstallProvisionConfig(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	if _, err := os.Lstat(dst); err == nil {
		if err := backupFile(dst); err != nil {
			return err
		}
	}

	return CopyImage(src, dst, 0o644)
}

// RemoveProvisionConfig deletes dst and restores any file InstallProvisionConfig
// backed up in its place. If there was nothing to restore, dst is simply removed.
func RemoveProvisionConfig(dst string) error {
	backup := dst + provisionBackupSuffix
	if _, err := os.Lstat(backup); err == nil {
		return restoreFile(dst)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsprep: remove provision config %s: %w", dst, err)
	}
	return nil
}

func backupFile(path string) error {
	backup := path + provisionBackupSuffix
	if err := os.Rename(path, backup); err != nil {
		return crossDeviceCopyRename(path, backup)
	}
	return nil
}

func restoreFile(path string) error {
	backup := path + provisionBackupSuffix
	if err := os.Rename(backup, path); err != nil {
		return crossDeviceCopyRename(backup, path)
	}
	return nil
}

// crossDeviceCopyRename falls back to copy-then-remove when os.Rename
// fails across a mount boundary (EXDEV), matching the Python original's
// shutil.move fallback for chroot-local renames that cross a bind mount.
func crossDeviceCopyRename(src, dst string) error {
	if err := CopyImage(src, dst, 0); err != nil {
		return fmt.Errorf("fsprep: cross-device move %s -> %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("fsprep: remove source after cross-device move: %w", err)
	}
	return nil
}

// CopyImage copies src to dst, preserving mode when mode == 0 by reading
// it from src, and using mode otherwise.
func CopyImage(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fsprep: open %s: %w", src, err)
	}
	defer in.Close()

	if mode == 0 {
		fi, err := in.Stat()
		if err != nil {
			return fmt.Errorf("fsprep: stat %s: %w", src, err)
		}
		mode = fi.Mode()
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fsprep: mkdir parent of %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("fsprep: create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("fsprep: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// MkdirP creates path and any missing parents, matching the semantics of
// the Python original's mkdir_p (ignoring EEXIST).
func MkdirP(path string, mode os.FileMode) error {
	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("fsprep: mkdir -p %s: %w", path, err)
	}
	return nil
}
