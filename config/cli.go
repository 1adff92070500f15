package config

import (
	"fmt"

	"github.com/alecthomas/kong"
	kongyaml "github.com/alecthomas/kong-yaml"
)

// CLI is the top-level command-line surface. Per-stage flags that would
// otherwise need to be registered dynamically by whichever plugin is
// active are pre-declared here instead: kong builds a static struct tree
// at compile time, so gator enumerates every known finalizer/provisioner
// flag up front rather than discovering them at runtime the way the
// Python original's argparse subparsers-per-plugin loader does.
type CLI struct {
	ConfigFile string `help:"Path to the gator YAML config file." default:"/etc/gator/gator.yaml" type:"path"`
	Environment string `help:"Named environment to provision for." required:""`
	LogLevel   string `help:"Logging verbosity." enum:"debug,info,warn,error" default:"info"`
	LogFile    string `help:"Path to write rotated log output to. Empty means stderr only."`

	// Name overrides the AMI name a finalizer would otherwise build from
	// name_format + package attributes. Shared across both finalizers,
	// not prefixed under Finalizer, since it names the resulting image
	// rather than tuning a specific finalizer's mechanics.
	Name string `name:"name" short:"n" help:"Override the AMI name instead of building it from name_format."`

	// RootVolumeSize bounds the bundle finalizer's copy step; rejected
	// before any subprocess runs if it exceeds the environment's
	// max_root_volume_size.
	RootVolumeSize int64 `name:"root-volume-size" help:"Root volume size in GB, checked against the environment's max_root_volume_size."`

	Package struct {
		Name    string `help:"Package name to install." required:""`
		Version string `help:"Package version constraint." optional:""`
	} `embed:"" prefix:"package-"`

	Finalizer struct {
		SnapshotDescription string `help:"Description recorded on the resulting AMI/snapshot."`
		BundleDestination   string `help:"S3 bucket to upload the bundle to (bundle finalizer only)."`
		BundleSizeLimitMB   int64  `help:"Maximum bundle size in MB before the finalizer aborts." default:"10240"`

		Cert            string `help:"X.509 cert path passed to euca-bundle-image (bundle finalizer only)."`
		PrivateKey      string `help:"Private key path passed to euca-bundle-image (bundle finalizer only)."`
		EC2User         string `help:"EC2 user/account ID passed to euca-bundle-image (bundle finalizer only)."`
		TmpDir          string `help:"Working directory for the bundle copy/split, instead of an auto-generated one (bundle finalizer only)."`
		BreakCopyVolume bool   `help:"Drop into a shell after copying the volume image, before bundling (bundle finalizer only)."`
	} `embed:"" prefix:"finalizer-"`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// Parse builds the kong parser with YAML-config-file resolution wired in,
// then parses args. Shell completion is not set up here: cmd/gator
// registers it on the parsed application.
func Parse(args []string, version string) (*CLI, *kong.Context, error) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("gator"),
		kong.Description("Provisions AMIs by installing a package into a cloned base image."),
		kong.Vars{"version": version},
		kong.Resolvers(kongyaml.Loader),
		kong.Configuration(kongyaml.Loader, "/etc/gator/gator.yaml"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("config: build cli parser: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return nil, nil, fmt.Errorf("config: parse args: %w", err)
	}
	return &cli, kctx, nil
}
