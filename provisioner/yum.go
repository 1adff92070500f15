package provisioner

import (
	"context"
	"fmt"
	"strings"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/plugin"
)

// Yum is the provisioner stage for yum-based distros (RHEL/CentOS/Amazon
// Linux).
type Yum struct {
	cfg    settings
	runCtx *config.Context
}

// NewYum builds an unconfigured yum provisioner stage.
func NewYum(runCtx *config.Context) *Yum {
	return &Yum{cfg: defaultSettings(), runCtx: runCtx}
}

func (y *Yum) Configure(cfg plugin.Config) error {
	merged := defaultSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("provisioner(yum): decode config: %w", err)
		}
	}
	y.cfg = merged
	return nil
}

func (y *Yum) Enabled() bool { return true }

func (y *Yum) Enter(ctx context.Context) (plugin.Stage, error) {
	if y.cfg.RefreshMetadata {
		res, err := runInChroot(ctx, y.cfg.TimeoutSeconds, execrun.Argv("yum", "clean", "metadata"))
		if err != nil {
			return nil, provisionErr(fmt.Sprintf("yum clean metadata: %v", err))
		}
		if !res.Success {
			return nil, provisionErr(fmt.Sprintf("yum clean metadata exited %d: %s", res.Response.StatusCode, res.Response.Stderr))
		}
	}

	target := requestedName(y.runCtx.Package)
	res, err := runInChroot(ctx, y.cfg.TimeoutSeconds, execrun.Argv("yum", "install", "-y", target))
	if err != nil {
		return nil, provisionErr(fmt.Sprintf("yum install %s: %v", target, err))
	}
	if !res.Success {
		return nil, provisionErr(fmt.Sprintf("yum install %s exited %d: %s", target, res.Response.StatusCode, res.Response.Stderr))
	}

	installed, err := y.queryInstalled(ctx, y.runCtx.Package.Name)
	if err != nil {
		return nil, err
	}
	if installed.Status != "installed" {
		return nil, provisionErr(fmt.Sprintf("package %s not installed after yum install: status %s", y.runCtx.Package.Name, installed.Status))
	}

	storeAttributes(y.runCtx, y.cfg.Attributes, map[string]string{
		"name":         installed.Name,
		"version":      installed.Version,
		"release":      installed.Release,
		"architecture": installed.Architecture,
	})

	return y, nil
}

// queryInstalled runs rpm -q with a "|"-delimited query format so
// name/version/release/architecture split cleanly even when any of them
// is empty, unlike space-delimited Fields.
func (y *Yum) queryInstalled(ctx context.Context, name string) (installedPackage, error) {
	res, err := runInChroot(ctx, y.cfg.TimeoutSeconds, execrun.Argv("rpm", "-q", "--qf", "%{NAME}|%{VERSION}|%{RELEASE}|%{ARCH}", name))
	if err != nil {
		return installedPackage{}, provisionErr(fmt.Sprintf("rpm -q %s: %v", name, err))
	}
	if !res.Success {
		return installedPackage{Name: name, Status: "not-installed"}, nil
	}
	fields := strings.Split(strings.TrimSpace(string(res.Response.Stdout)), "|")
	if len(fields) < 4 {
		return installedPackage{}, provisionErr(fmt.Sprintf("rpm -q %s: unparseable output %q", name, res.Response.Stdout))
	}
	return installedPackage{
		Name:         fields[0],
		Version:      fields[1],
		Release:      fields[2],
		Architecture: fields[3],
		Status:       "installed",
	}, nil
}

func (y *Yum) Exit(context.Context, error) error { return nil }
