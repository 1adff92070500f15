// Package fsprep prepares and tears down a foreign root filesystem so a
// chrooted package manager can install a package safely: mounting,
// chrooting, LIFO-ordered unmounting, provisioning-file backup/restore,
// and command short-circuiting.
//
// Grounded on the teacher's FileOps interface (file_ops.go) generalized
// from a single cp-shellout to the fuller filesystem surface this spec
// needs, and on the Python original's gator.util.linux module for exact
// mount/chroot/backup semantics.
package fsprep

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/haleterminal/gator/execrun"
)

// MountSpec describes a single mount operation. FSType == "bind" is a bind
// mount.
type MountSpec struct {
	Device     string
	FSType     string
	Mountpoint string
	Options    string
}

// Mount performs the mount described by spec, creating the mountpoint
// directory if needed.
func Mount(spec MountSpec) (execrun.CommandResult, error) {
	if spec.Device == "" && spec.Mountpoint == "" {
		return execrun.CommandResult{}, fmt.Errorf("fsprep: must provide device or mountpoint")
	}

	if err := os.MkdirAll(spec.Mountpoint, 0o755); err != nil {
		return execrun.CommandResult{}, fmt.Errorf("fsprep: mkdir mountpoint: %w", err)
	}

	args := []string{"mount"}
	switch {
	case spec.FSType == "bind":
		args = append(args, "-o", "bind")
	case spec.FSType != "":
		args = append(args, "-t", spec.FSType)
	}
	if spec.Options != "" {
		args = append(args, "-o", spec.Options)
	}
	args = append(args, spec.Device, spec.Mountpoint)

	return execrun.Run(context.Background(), execrun.Argv(args...), 0)
}

// Unmount unmounts spec.Mountpoint.
func Unmount(spec MountSpec, verbose, recursive bool) (execrun.CommandResult, error) {
	args := []string{"umount"}
	if verbose {
		args = append(args, "--verbose")
	}
	if recursive {
		args = append(args, "--recursive")
	}
	args = append(args, spec.Mountpoint)
	return execrun.Run(context.Background(), execrun.Argv(args...), 0)
}

// Mounted reports whether spec.Mountpoint appears in /proc/mounts.
func Mounted(spec MountSpec) (bool, error) {
	pat := strings.TrimSpace(spec.Mountpoint) + " "
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false, fmt.Errorf("fsprep: open /proc/mounts: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), pat) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// LifoMounts returns the mountpoints at or below root, in reverse order of
// appearance in /proc/mounts -- the order they must be unmounted in.
func LifoMounts(root string) ([]string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("fsprep: open /proc/mounts: %w", err)
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, root) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, fields[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matched []string
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e == root || strings.HasPrefix(e, root+"/") {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// BusyMount runs lsof against mountpoint and filters the output down to
// lines that actually mention the mountpoint -- a bind-mounted /dev shows
// open handles against /dev itself otherwise.
func BusyMount(mountpoint string) (execrun.CommandResult, error) {
	res, err := execrun.Run(context.Background(), execrun.Argv("lsof", "-X", mountpoint), 0)
	if err != nil {
		return res, err
	}
	if !res.Success || len(res.Response.Stdout) == 0 {
		return res, nil
	}
	lines := strings.Split(string(res.Response.Stdout), "\n")
	header := lines[0]
	var filtered []string
	for _, l := range lines {
		if strings.Contains(l, mountpoint) {
			filtered = append(filtered, l)
		}
	}
	res.Success = len(filtered) > 0
	res.Response.Stdout = []byte(strings.Join(append([]string{header}, filtered...), "\n"))
	return res, nil
}
