package volume

import (
	"context"
	"errors"
	"testing"

	"github.com/haleterminal/gator/cloud/fake"
	"github.com/haleterminal/gator/config"
)

func TestEnterCreateVolumeFailureLeavesNoVolume(t *testing.T) {
	driver := fake.New()
	driver.FailCreateVolume = errors.New("service unavailable")

	runCtx := config.NewContext()
	stage := New(driver, runCtx)

	if _, err := stage.Enter(context.Background()); err == nil {
		t.Fatal("Enter() = nil error, want error when CreateVolume fails")
	}
	if len(driver.Volumes) != 0 {
		t.Fatalf("driver.Volumes = %v, want empty after failed create", driver.Volumes)
	}
}

func TestExitPreservesOnError(t *testing.T) {
	driver := fake.New()
	runCtx := config.NewContext()
	runCtx.PreserveOnError = true

	stage := New(driver, runCtx)
	stage.volumeID = "vol-00000001"
	stage.instanceID = driver.Instance.ID
	driver.Volumes[stage.volumeID] = driver.Volumes[stage.volumeID]

	if err := stage.Exit(context.Background(), errors.New("boom")); err != nil {
		t.Fatalf("Exit() = %v, want nil (preserve-on-error should skip cleanup)", err)
	}
}
