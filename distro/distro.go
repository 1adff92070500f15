// Package distro implements the distro stage: it bind-mounts /proc,
// /sys, and /dev into the volume stage's mountpoint, chroots into it,
// applies distro-specific provisioning-time tweaks (Debian's
// policy-rc.d, Red Hat's service-block hooks), and tears everything down
// in reverse order on exit. Grounded on the Python original's
// gator.plugins.distro.{base,debian,redhat} trio.
package distro

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/fsprep"
	"github.com/haleterminal/gator/plugin"
)

// bindMounts is the fixed set of pseudo-filesystems a chroot needs to run
// package-manager post-install scripts, in the order they must be
// mounted (and unmounted in reverse).
var bindMounts = []string{"/proc", "/sys", "/dev"}

// Hooks lets a distro variant install and remove its own
// service-start-suppression mechanism without duplicating the bind-mount
// and chroot plumbing base provides.
type Hooks interface {
	// Install is called once the bind mounts are in place, before the
	// chroot is entered; root is the path of the mounted volume.
	Install(root string) error
	// Remove reverses Install, called after the chroot has been left and
	// before the bind mounts are undone.
	Remove(root string) error
}

// base is embedded by Debian and RedHat; it owns the bind-mount and
// chroot lifecycle common to every Linux distro variant.
type base struct {
	hooks Hooks

	root          string
	mountedPaths  []string
	restoreChroot func() error
}

func (b *base) bindAndChroot(ctx *config.Context) error {
	b.root = ctx.Volume.Mountpoint
	if b.root == "" {
		return &errs.ProvisionError{Msg: "distro stage requires a mounted volume"}
	}

	for _, p := range bindMounts {
		mountpoint := filepath.Join(b.root, p)
		if _, err := fsprep.Mount(fsprep.MountSpec{Device: p, FSType: "bind", Mountpoint: mountpoint, Options: "bind"}); err != nil {
			b.unwindMounts()
			return &errs.ProvisionError{Msg: fmt.Sprintf("bind mount %s: %v", p, err), Err: err}
		}
		b.mountedPaths = append(b.mountedPaths, mountpoint)
	}

	if b.hooks != nil {
		if err := b.hooks.Install(b.root); err != nil {
			b.unwindMounts()
			return &errs.ProvisionError{Msg: fmt.Sprintf("install distro hooks: %v", err), Err: err}
		}
	}

	restore, err := fsprep.Chroot(b.root)
	if err != nil {
		b.unwindHooks()
		b.unwindMounts()
		return &errs.ProvisionError{Msg: fmt.Sprintf("chroot %s: %v", b.root, err), Err: err}
	}
	b.restoreChroot = restore
	return nil
}

func (b *base) unwindHooks() {
	if b.hooks == nil {
		return
	}
	if err := b.hooks.Remove(b.root); err != nil {
		slog.Warn("distro: error removing hooks", "error", err)
	}
}

// unwindMounts undoes bindAndChroot's mounts in strict LIFO order,
// matching the invariant every stage exit honors.
func (b *base) unwindMounts() {
	for i := len(b.mountedPaths) - 1; i >= 0; i-- {
		mp := b.mountedPaths[i]
		if _, err := fsprep.Unmount(fsprep.MountSpec{Mountpoint: mp}, false, false); err != nil {
			slog.Warn("distro: error unmounting", "mountpoint", mp, "error", err)
		}
	}
	b.mountedPaths = nil
}

func (b *base) exit(err error, preserveOnError bool) error {
	if err != nil && preserveOnError {
		slog.Warn("distro: preserving chroot after error", "root", b.root, "error", err)
		return nil
	}

	if b.restoreChroot != nil {
		if rerr := b.restoreChroot(); rerr != nil {
			return &errs.ProvisionError{Msg: fmt.Sprintf("restore chroot: %v", rerr), Err: rerr}
		}
		b.restoreChroot = nil
	}

	b.unwindHooks()
	b.unwindMounts()
	return nil
}

var _ plugin.Stage = (*Debian)(nil)
var _ plugin.Stage = (*RedHat)(nil)
var _ plugin.Binder = (*Debian)(nil)
var _ plugin.Binder = (*RedHat)(nil)
