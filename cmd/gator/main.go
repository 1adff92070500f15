// Command gator provisions a new AMI by installing a package into a
// clone of a base image: it attaches a scratch volume, chroots into it,
// runs the configured package manager, and finalizes the result as
// either an EBS snapshot or an S3 bundle. Grounded on the teacher's
// cmd/sand/main.go wiring (kong CLI, slog initialized from a CLI flag,
// an application entry point that builds its dependency graph and hands
// off to a long-lived driver).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	kongcompletion "github.com/jotaen/kong-completion"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/cloud/ec2driver"
	gatorconfig "github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/distro"
	"github.com/haleterminal/gator/finalizer"
	"github.com/haleterminal/gator/metrics"
	"github.com/haleterminal/gator/orchestrator"
	"github.com/haleterminal/gator/plugin"
	"github.com/haleterminal/gator/provisioner"
	"github.com/haleterminal/gator/version"
	"github.com/haleterminal/gator/volume"
)

func initSlog(level, logFile string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w = os.Stderr
	var handler slog.Handler
	if logFile == "" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	cli, kctx, err := gatorconfig.Parse(os.Args[1:], version.Get().String())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	initSlog(cli.LogLevel, cli.LogFile)
	slog.Info("gator starting", "environment", cli.Environment, "package", cli.Package.Name)

	kongcompletion.Register(kctx.Kong)

	if err := run(context.Background(), cli); err != nil {
		slog.Error("gator run failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.Info("gator run completed successfully")
}

func run(ctx context.Context, cli *gatorconfig.CLI) error {
	pluginConfig, err := gatorconfig.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	envConfig, err := pluginConfig.PluginSelection(cli.Environment)
	if err != nil {
		return fmt.Errorf("resolve environment %q: %w", cli.Environment, err)
	}

	runCtx := gatorconfig.NewContext()
	runCtx.Environment = cli.Environment
	runCtx.Package = gatorconfig.PackageInfo{Name: cli.Package.Name, Version: cli.Package.Version}

	if env, ok := pluginConfig.Environments[cli.Environment]; ok {
		for _, t := range env.Tags {
			runCtx.Tags = append(runCtx.Tags, gatorconfig.Tag{Key: t.Key, Value: t.Value})
		}
	}

	finalizerExtra := make(map[string]any)
	if cli.Name != "" {
		finalizerExtra["name_override"] = cli.Name
	}
	if cli.RootVolumeSize != 0 {
		finalizerExtra["root_volume_size"] = cli.RootVolumeSize
	}
	if cli.Finalizer.SnapshotDescription != "" {
		finalizerExtra["description_override"] = cli.Finalizer.SnapshotDescription
	}
	if cli.Finalizer.BundleDestination != "" {
		finalizerExtra["bucket_override"] = cli.Finalizer.BundleDestination
	}
	if cli.Finalizer.BundleSizeLimitMB != 0 {
		finalizerExtra["size_limit_override_mb"] = cli.Finalizer.BundleSizeLimitMB
	}
	if cli.Finalizer.Cert != "" {
		finalizerExtra["cert"] = cli.Finalizer.Cert
	}
	if cli.Finalizer.PrivateKey != "" {
		finalizerExtra["privatekey"] = cli.Finalizer.PrivateKey
	}
	if cli.Finalizer.EC2User != "" {
		finalizerExtra["ec2_user"] = cli.Finalizer.EC2User
	}
	if cli.Finalizer.TmpDir != "" {
		finalizerExtra["tmpdir"] = cli.Finalizer.TmpDir
	}
	if cli.Finalizer.BreakCopyVolume {
		finalizerExtra["break_copy_volume"] = cli.Finalizer.BreakCopyVolume
	}
	runCtx.Extra["finalizer"] = finalizerExtra

	cloudDriver, err := ec2driver.New(ctx, os.Getenv("AWS_REGION"))
	if err != nil {
		return fmt.Errorf("build cloud driver: %w", err)
	}

	sink := metrics.NewLoggerSink(slog.Default())
	defer sink.Close()

	registry := buildRegistry(cloudDriver, runCtx)
	stages, err := registry.ResolveAll(envConfig)
	if err != nil {
		return fmt.Errorf("resolve stage chain: %w", err)
	}
	for i, kind := range plugin.Order {
		cfg, err := pluginConfig.StageConfig(cli.Environment, string(kind))
		if err != nil {
			return fmt.Errorf("resolve config for %s: %w", kind, err)
		}
		if err := stages[i].Configure(cfg); err != nil {
			return fmt.Errorf("configure %s stage: %w", kind, err)
		}
	}

	a := orchestrator.New(sink)
	return a.Run(ctx, runCtx, stages)
}

func buildRegistry(cloudDriver cloud.Cloud, runCtx *gatorconfig.Context) *plugin.Registry {
	r := plugin.NewRegistry()

	r.Register(plugin.KindMetrics, "logger", func() plugin.Stage { return noopStage{} })
	r.Register(plugin.KindCloud, "ec2", func() plugin.Stage { return noopStage{} })

	r.Register(plugin.KindFinalizer, "tagging_ebs", func() plugin.Stage { return finalizer.NewSnapshot(cloudDriver, runCtx) })
	r.Register(plugin.KindFinalizer, "tagging_s3", func() plugin.Stage { return finalizer.NewBundle(cloudDriver, runCtx) })

	r.Register(plugin.KindVolume, "linux", func() plugin.Stage { return volume.New(cloudDriver, runCtx) })

	r.Register(plugin.KindDistro, "debian", func() plugin.Stage { return distro.NewDebian(runCtx) })
	r.Register(plugin.KindDistro, "redhat", func() plugin.Stage { return distro.NewRedHat(runCtx) })

	r.Register(plugin.KindProvisioner, "yum", func() plugin.Stage { return provisioner.NewYum(runCtx) })
	r.Register(plugin.KindProvisioner, "apt", func() plugin.Stage { return provisioner.NewApt(runCtx) })
	r.Register(plugin.KindProvisioner, "aptitude", func() plugin.Stage { return provisioner.NewAptitude(runCtx) })

	return r
}

// noopStage is the metrics/cloud stage placeholder: metrics and cloud
// resources are constructed once up front (the logger sink and the EC2
// driver) rather than acquired/released per run, but they still occupy a
// slot in the fixed nesting order so every run's lifecycle log shows all
// six stages entering and exiting.
type noopStage struct{}

func (noopStage) Configure(plugin.Config) error                { return nil }
func (noopStage) Enabled() bool                                { return true }
func (noopStage) Enter(context.Context) (plugin.Stage, error)  { return noopStage{}, nil }
func (noopStage) Exit(context.Context, error) error            { return nil }
