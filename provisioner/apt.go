package provisioner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/plugin"
)

// Apt is the provisioner stage for plain apt-get installs on
// Debian/Ubuntu-family images.
type Apt struct {
	cfg    settings
	runCtx *config.Context
}

// NewApt builds an unconfigured apt provisioner stage.
func NewApt(runCtx *config.Context) *Apt {
	return &Apt{cfg: defaultSettings(), runCtx: runCtx}
}

func (a *Apt) Configure(cfg plugin.Config) error {
	merged := defaultSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("provisioner(apt): decode config: %w", err)
		}
	}
	a.cfg = merged
	return nil
}

func (a *Apt) Enabled() bool { return true }

func (a *Apt) Enter(ctx context.Context) (plugin.Stage, error) {
	if a.cfg.RefreshMetadata {
		res, err := runInChroot(ctx, a.cfg.TimeoutSeconds, execrun.Argv("apt-get", "update"))
		if err != nil {
			return nil, provisionErr(fmt.Sprintf("apt-get update: %v", err))
		}
		if !res.Success {
			return nil, provisionErr(fmt.Sprintf("apt-get update exited %d: %s", res.Response.StatusCode, res.Response.Stderr))
		}
	}

	target := requestedName(a.runCtx.Package)
	res, err := runInChroot(ctx, a.cfg.TimeoutSeconds, execrun.Shell(fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", target)))
	if err != nil {
		return nil, provisionErr(fmt.Sprintf("apt-get install %s: %v", target, err))
	}
	if !res.Success {
		return nil, provisionErr(fmt.Sprintf("apt-get install %s exited %d: %s", target, res.Response.StatusCode, res.Response.Stderr))
	}

	installed, err := queryDpkg(ctx, a.cfg.TimeoutSeconds, a.runCtx.Package.Name)
	if err != nil {
		return nil, err
	}
	if installed.Status != "install ok installed" {
		return nil, provisionErr(fmt.Sprintf("package %s status after install: %q", a.runCtx.Package.Name, installed.Status))
	}

	storeAttributes(a.runCtx, a.cfg.Attributes, map[string]string{
		"name":         installed.Name,
		"version":      installed.Version,
		"release":      installed.Release,
		"architecture": installed.Architecture,
	})

	return a, nil
}

func (a *Apt) Exit(context.Context, error) error { return nil }

// queryDpkg runs dpkg-query against name and parses its Status field,
// shared by Apt and Aptitude's post-install verification. Version is
// split into upstream version and Debian revision ("release" in gator's
// attribute vocabulary).
func queryDpkg(ctx context.Context, timeoutSeconds int, name string) (installedPackage, error) {
	res, err := runInChroot(ctx, timeoutSeconds, execrun.Argv("dpkg-query", "-W", "-f", "${Version} ${Architecture} ${Status}", name))
	if err != nil {
		return installedPackage{}, provisionErr(fmt.Sprintf("dpkg-query %s: %v", name, err))
	}
	if !res.Success {
		return installedPackage{Name: name, Status: "not-installed"}, nil
	}
	fields := strings.Fields(string(res.Response.Stdout))
	if len(fields) < 3 {
		return installedPackage{}, provisionErr(fmt.Sprintf("dpkg-query %s: unparseable output %q", name, res.Response.Stdout))
	}
	version, release := splitDebianVersion(fields[0])
	return installedPackage{
		Name:         name,
		Version:      version,
		Release:      release,
		Architecture: fields[1],
		Status:       strings.Join(fields[2:], " "),
	}, nil
}

// splitDebianVersion splits a dpkg version string "<upstream>-<revision>"
// into upstream version and Debian revision; a version with no "-" has
// no revision.
func splitDebianVersion(version string) (upstream, revision string) {
	idx := strings.LastIndex(version, "-")
	if idx < 0 {
		return version, ""
	}
	return version[:idx], version[idx+1:]
}
