package provisioner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/plugin"
)

// Aptitude is the provisioner stage that uses aptitude instead of
// apt-get: aptitude's dependency resolver can silently pick a different
// candidate than the one requested when a simple version constraint is
// ambiguous, so this variant runs a second dpkg-query check and raises
// AptitudeInstallMismatch rather than trusting aptitude's exit code alone.
type Aptitude struct {
	cfg    settings
	runCtx *config.Context
}

// NewAptitude builds an unconfigured aptitude provisioner stage.
func NewAptitude(runCtx *config.Context) *Aptitude {
	return &Aptitude{cfg: defaultSettings(), runCtx: runCtx}
}

func (a *Aptitude) Configure(cfg plugin.Config) error {
	merged := defaultSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("provisioner(aptitude): decode config: %w", err)
		}
	}
	a.cfg = merged
	return nil
}

func (a *Aptitude) Enabled() bool { return true }

func (a *Aptitude) Enter(ctx context.Context) (plugin.Stage, error) {
	if a.cfg.RefreshMetadata {
		res, err := runInChroot(ctx, a.cfg.TimeoutSeconds, execrun.Argv("aptitude", "update"))
		if err != nil {
			return nil, provisionErr(fmt.Sprintf("aptitude update: %v", err))
		}
		if !res.Success {
			return nil, provisionErr(fmt.Sprintf("aptitude update exited %d: %s", res.Response.StatusCode, res.Response.Stderr))
		}
	}

	target := requestedName(a.runCtx.Package)
	res, err := runInChroot(ctx, a.cfg.TimeoutSeconds, execrun.Shell(fmt.Sprintf("DEBIAN_FRONTEND=noninteractive aptitude install -y %s", target)))
	if err != nil {
		return nil, provisionErr(fmt.Sprintf("aptitude install %s: %v", target, err))
	}
	if !res.Success {
		return nil, provisionErr(fmt.Sprintf("aptitude install %s exited %d: %s", target, res.Response.StatusCode, res.Response.Stderr))
	}

	installed, err := queryDpkg(ctx, a.cfg.TimeoutSeconds, a.runCtx.Package.Name)
	if err != nil {
		return nil, err
	}
	if installed.Status != "install ok installed" {
		return nil, &errs.AptitudeInstallMismatch{
			Package:   a.runCtx.Package.Name,
			Requested: target,
			Installed: fmt.Sprintf("%s (%s)", installed.Version, installed.Status),
		}
	}
	if a.runCtx.Package.Version != "" && !strings.HasPrefix(installed.Version, a.runCtx.Package.Version) {
		return nil, &errs.AptitudeInstallMismatch{
			Package:   a.runCtx.Package.Name,
			Requested: target,
			Installed: installed.Version,
		}
	}

	storeAttributes(a.runCtx, a.cfg.Attributes, map[string]string{
		"name":         installed.Name,
		"version":      installed.Version,
		"release":      installed.Release,
		"architecture": installed.Architecture,
	})

	return a, nil
}

func (a *Aptitude) Exit(context.Context, error) error { return nil }
