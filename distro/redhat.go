package distro

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/fsprep"
	"github.com/haleterminal/gator/plugin"
)

// blockedCommands is short-circuited to /bin/true for the duration of a
// Red Hat chroot: yum/rpm postinstall scriptlets call these to start
// services immediately, which gator never wants on an image being built.
var blockedCommands = []string{"/sbin/service", "/sbin/chkconfig", "/bin/systemctl"}

type redhatHooks struct{}

func (redhatHooks) Install(root string) error {
	for _, cmd := range blockedCommands {
		path := filepath.Join(root, cmd)
		if err := fsprep.ShortCircuit(path); err != nil {
			return fmt.Errorf("distro: short-circuit %s: %w", cmd, err)
		}
	}
	return nil
}

func (redhatHooks) Remove(root string) error {
	for _, cmd := range blockedCommands {
		path := filepath.Join(root, cmd)
		if err := fsprep.Rewire(path); err != nil {
			return fmt.Errorf("distro: rewire %s: %w", cmd, err)
		}
	}
	return nil
}

// RedHat is the distro stage for RHEL/CentOS/Amazon Linux-family images.
type RedHat struct {
	base
	runCtx *config.Context
}

// NewRedHat builds an unconfigured RedHat distro stage.
func NewRedHat(runCtx *config.Context) *RedHat {
	r := &RedHat{runCtx: runCtx}
	r.hooks = redhatHooks{}
	return r
}

func (r *RedHat) Configure(plugin.Config) error { return nil }

func (r *RedHat) Enabled() bool { return true }

func (r *RedHat) Bind(map[string]plugin.Stage) error { return nil }

func (r *RedHat) Enter(context.Context) (plugin.Stage, error) {
	if err := r.bindAndChroot(r.runCtx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RedHat) Exit(_ context.Context, err error) error {
	return r.exit(err, r.runCtx.PreserveOnError)
}
