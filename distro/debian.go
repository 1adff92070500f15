package distro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/plugin"
)

// policyRCD is dpkg's hook point for suppressing service starts during
// a postinst script: if present and it exits non-zero, dpkg skips the
// service action entirely.
const policyRCD = "/usr/sbin/policy-rc.d"

const policyRCDScript = "#!/bin/sh\nexit 101\n"

// policyFileMode is the default permission bits for the installed
// policy-rc.d script; 0755 makes it executable by dpkg's invoking user.
const policyFileMode = 0o755

// debianHooks installs and removes policy-rc.d.
type debianHooks struct {
	fileMode os.FileMode
}

func (h debianHooks) Install(root string) error {
	path := filepath.Join(root, policyRCD)
	if err := os.WriteFile(path, []byte(policyRCDScript), h.fileMode); err != nil {
		return fmt.Errorf("distro: write policy-rc.d: %w", err)
	}
	return nil
}

func (h debianHooks) Remove(root string) error {
	path := filepath.Join(root, policyRCD)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("distro: remove policy-rc.d: %w", err)
	}
	return nil
}

// debianSettings is the per-environment YAML block for this plugin.
type debianSettings struct {
	PolicyFileMode int `yaml:"policy_file_mode"`
}

// Debian is the distro stage for Debian/Ubuntu-family images.
type Debian struct {
	base
	runCtx *config.Context
}

// NewDebian builds an unconfigured Debian distro stage.
func NewDebian(runCtx *config.Context) *Debian {
	d := &Debian{runCtx: runCtx}
	d.hooks = debianHooks{fileMode: policyFileMode}
	return d
}

func (d *Debian) Configure(cfg plugin.Config) error {
	var s debianSettings
	s.PolicyFileMode = policyFileMode
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&s); err != nil {
			return fmt.Errorf("distro(debian): decode config: %w", err)
		}
	}
	d.hooks = debianHooks{fileMode: os.FileMode(s.PolicyFileMode)}
	return nil
}

func (d *Debian) Enabled() bool { return true }

func (d *Debian) Bind(map[string]plugin.Stage) error { return nil }

func (d *Debian) Enter(context.Context) (plugin.Stage, error) {
	if err := d.bindAndChroot(d.runCtx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Debian) Exit(_ context.Context, err error) error {
	return d.exit(err, d.runCtx.PreserveOnError)
}
