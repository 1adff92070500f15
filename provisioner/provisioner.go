// Package provisioner implements the provisioner stage: the package
// manager invocations that actually install the target package inside
// the chrooted volume, and the post-install metadata checks that confirm
// the install matches what was requested. Grounded on the Python
// original's gator.plugins.provisioner.{yum,aptitude} pair.
package provisioner

import (
	"context"
	"time"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/plugin"
)

// settings is the per-environment YAML block shared by every provisioner
// variant.
type settings struct {
	RefreshMetadata bool `yaml:"refresh_metadata"`
	TimeoutSeconds  int  `yaml:"timeout_seconds"`

	// Attributes names the package-metadata keys stored into
	// context.package.attributes after install; a key the family query
	// doesn't report is stored as the empty string.
	Attributes []string `yaml:"pkg_attributes"`
}

// defaultAttributeKeys is the standard set of package attributes every
// finalizer's name_format template may reference.
var defaultAttributeKeys = []string{"name", "version", "release", "architecture"}

func defaultSettings() settings {
	return settings{RefreshMetadata: true, TimeoutSeconds: 600, Attributes: defaultAttributeKeys}
}

// installedPackage is what a post-install metadata query returns.
type installedPackage struct {
	Name         string
	Version      string
	Release      string
	Architecture string
	Status       string
}

// storeAttributes writes queried into runCtx.Package.Attributes, one
// entry per key in keys; a key queried didn't report is stored as the
// empty string rather than omitted.
func storeAttributes(runCtx *config.Context, keys []string, queried map[string]string) {
	if runCtx.Package.Attributes == nil {
		runCtx.Package.Attributes = make(map[string]string, len(keys))
	}
	for _, k := range keys {
		runCtx.Package.Attributes[k] = queried[k]
	}
}

func requestedName(pkg config.PackageInfo) string {
	if pkg.Version == "" {
		return pkg.Name
	}
	return pkg.Name + "-" + pkg.Version
}

func runInChroot(ctx context.Context, timeoutSeconds int, cmd execrun.Command) (execrun.CommandResult, error) {
	return execrun.Run(ctx, cmd, time.Duration(timeoutSeconds)*time.Second)
}

func provisionErr(msg string) error {
	return &errs.ProvisionError{Msg: msg}
}

var _ plugin.Stage = (*Yum)(nil)
var _ plugin.Stage = (*Aptitude)(nil)
var _ plugin.Stage = (*Apt)(nil)
