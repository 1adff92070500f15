// Package fake is an in-memory cloud.Cloud used by stage unit tests, the
// Go analogue of the Python original's test doubles for
// gator.plugins.cloud.base.BaseCloudPlugin.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/haleterminal/gator/cloud"
)

// Driver is a goroutine-safe in-memory cloud.Cloud.
type Driver struct {
	mu sync.Mutex

	NextVolumeID   int
	NextSnapshotID int
	NextImageID    int

	Volumes   map[string]cloud.Volume
	Snapshots map[string]cloud.Snapshot
	Images    map[string]cloud.Image
	Tags      map[string][]cloud.Tag
	Bundles   [][]string

	// FailCreateVolume, when set, is returned by CreateVolume instead of
	// succeeding -- lets tests exercise the orchestrator's partial-
	// acquisition rollback path.
	FailCreateVolume error

	Instance cloud.Instance
}

// New returns a ready Driver.
func New() *Driver {
	return &Driver{
		Volumes:   make(map[string]cloud.Volume),
		Snapshots: make(map[string]cloud.Snapshot),
		Images:    make(map[string]cloud.Image),
		Tags:      make(map[string][]cloud.Tag),
		Instance:  cloud.Instance{ID: "i-fake000000000000", RootDevice: "/dev/xvda"},
	}
}

func (d *Driver) CurrentInstance(context.Context) (cloud.Instance, error) {
	return d.Instance, nil
}

func (d *Driver) CreateVolume(_ context.Context, _ string, sizeGB int64) (cloud.Volume, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreateVolume != nil {
		return cloud.Volume{}, d.FailCreateVolume
	}
	d.NextVolumeID++
	vol := cloud.Volume{ID: fmt.Sprintf("vol-%08x", d.NextVolumeID), SizeGB: sizeGB}
	d.Volumes[vol.ID] = vol
	return vol, nil
}

func (d *Driver) AttachVolume(_ context.Context, _, volumeID, deviceName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vol, ok := d.Volumes[volumeID]
	if !ok {
		return "", fmt.Errorf("fake: unknown volume %s", volumeID)
	}
	vol.DeviceName = deviceName
	d.Volumes[volumeID] = vol
	return deviceName, nil
}

func (d *Driver) DetachVolume(_ context.Context, _, volumeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vol, ok := d.Volumes[volumeID]
	if !ok {
		return fmt.Errorf("fake: unknown volume %s", volumeID)
	}
	vol.DeviceName = ""
	d.Volumes[volumeID] = vol
	return nil
}

func (d *Driver) DeleteVolume(_ context.Context, volumeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.Volumes, volumeID)
	return nil
}

func (d *Driver) ResizeVolume(_ context.Context, volumeID string, sizeGB int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vol, ok := d.Volumes[volumeID]
	if !ok {
		return fmt.Errorf("fake: unknown volume %s", volumeID)
	}
	vol.SizeGB = sizeGB
	d.Volumes[volumeID] = vol
	return nil
}

func (d *Driver) CreateSnapshot(_ context.Context, volumeID, _ string) (cloud.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NextSnapshotID++
	snap := cloud.Snapshot{ID: fmt.Sprintf("snap-%08x", d.NextSnapshotID), VolumeID: volumeID}
	d.Snapshots[snap.ID] = snap
	return snap, nil
}

func (d *Driver) RegisterImage(_ context.Context, name, snapshotID, rootDevice, virtType string) (cloud.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NextImageID++
	img := cloud.Image{
		ID:         fmt.Sprintf("ami-%08x", d.NextImageID),
		Name:       name,
		SnapshotID: snapshotID,
		RootDevice: rootDevice,
		VirtType:   virtType,
	}
	d.Images[img.ID] = img
	return img, nil
}

func (d *Driver) RegisterBundledImage(_ context.Context, name, manifestLocation, _ string) (cloud.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.NextImageID++
	img := cloud.Image{
		ID:               fmt.Sprintf("ami-%08x", d.NextImageID),
		Name:             name,
		VirtType:         "paravirtual",
		ManifestLocation: manifestLocation,
	}
	d.Images[img.ID] = img
	return img, nil
}

func (d *Driver) TagResources(_ context.Context, resourceIDs []string, tags []cloud.Tag) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range resourceIDs {
		d.Tags[id] = append(append([]cloud.Tag{}, d.Tags[id]...), tags...)
	}
	return nil
}

func (d *Driver) UploadBundle(_ context.Context, _, _, manifestPath string, partPaths []string, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Bundles = append(d.Bundles, append(append([]string{}, partPaths...), manifestPath))
	return nil
}
