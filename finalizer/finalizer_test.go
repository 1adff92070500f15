package finalizer

import (
	"context"
	"testing"

	"github.com/haleterminal/gator/cloud/fake"
	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/plugin"
)

func testContext() *config.Context {
	ctx := config.NewContext()
	ctx.Package = config.PackageInfo{
		Name:    "nginx",
		Version: "1.18.0",
		Attributes: map[string]string{
			"name":         "nginx",
			"version":      "1.18.0",
			"release":      "1",
			"architecture": "x86_64",
		},
	}
	ctx.BaseAMI = config.BaseAMIInfo{ID: "ami-base00000001", RootDevice: "/dev/xvda", VirtType: "hvm", Architecture: "x86_64"}
	ctx.Volume = config.VolumeInfo{ID: "vol-00000001", DeviceName: "/dev/xvdf", Mountpoint: "/mnt/gator-volume", SizeGB: 8}
	ctx.Tags = []config.Tag{{Key: "Team", Value: "infra"}, {Key: "Environment", Value: "prod"}}
	return ctx
}

func TestSnapshotFinalizerHappyPath(t *testing.T) {
	driver := fake.New()
	runCtx := testContext()
	stage := NewSnapshot(driver, runCtx)
	if err := stage.Configure(plugin.Config{}); err != nil {
		t.Fatalf("Configure() = %v", err)
	}

	if _, err := stage.Enter(context.Background()); err != nil {
		t.Fatalf("Enter() = %v", err)
	}
	if err := stage.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() = %v", err)
	}
	if stage.state != StateDone {
		t.Fatalf("state = %q, want DONE", stage.state)
	}
	if runCtx.AMI.ID == "" {
		t.Fatal("AMI.ID not populated")
	}
	if runCtx.AMI.Name != "nginx-1.18.0-1-x86_64-ebs" {
		t.Fatalf("AMI.Name = %q, want nginx-1.18.0-1-x86_64-ebs", runCtx.AMI.Name)
	}
	if len(driver.Tags[runCtx.AMI.ID]) != 2 {
		t.Fatalf("tags on image = %v, want 2 entries", driver.Tags[runCtx.AMI.ID])
	}
	if driver.Tags[runCtx.AMI.ID][0].Key != "Team" {
		t.Fatalf("tag order not preserved: %v", driver.Tags[runCtx.AMI.ID])
	}
}

func TestBundleFinalizerSizeLimitAborts(t *testing.T) {
	driver := fake.New()
	runCtx := testContext()
	runCtx.Volume.DeviceName = "/dev/null" // dd from /dev/null yields a zero-byte copy

	stage := NewBundle(driver, runCtx)
	cfg := defaultBundleSettings()
	cfg.SizeLimitMB = -1 // force the over-budget branch regardless of actual copy size
	stage.cfg = cfg

	if _, err := stage.Enter(context.Background()); err != nil {
		t.Fatalf("Enter() = %v", err)
	}
	if err := stage.Finalize(context.Background()); err == nil {
		t.Fatal("Finalize() = nil error, want size-limit error")
	}
	if stage.state != StateCopy {
		t.Fatalf("state = %q, want COPY (should abort before BUNDLE)", stage.state)
	}
	if len(driver.Bundles) != 0 {
		t.Fatalf("driver.Bundles = %v, want no upload attempted", driver.Bundles)
	}
}

func TestBundleFinalizerRootVolumeSizeValidatesBeforeSubprocess(t *testing.T) {
	driver := fake.New()
	runCtx := testContext()
	runCtx.Extra["finalizer"] = map[string]any{"root_volume_size": int64(20)}

	stage := NewBundle(driver, runCtx)
	cfg := defaultBundleSettings()
	cfg.MaxRootVolumeSize = 10
	stage.cfg = cfg

	if _, err := stage.Enter(context.Background()); err != nil {
		t.Fatalf("Enter() = %v", err)
	}
	err := stage.Finalize(context.Background())
	if err == nil {
		t.Fatal("Finalize() = nil error, want VolumeError")
	}
	if _, ok := err.(*errs.VolumeError); !ok {
		t.Fatalf("Finalize() error = %T, want *errs.VolumeError", err)
	}
	if stage.state != "" {
		t.Fatalf("state = %q, want no state transition before the size check", stage.state)
	}
	if len(driver.Bundles) != 0 {
		t.Fatalf("driver.Bundles = %v, want no upload attempted", driver.Bundles)
	}
}
