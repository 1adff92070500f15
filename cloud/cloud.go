// Package cloud defines the provider-agnostic surface the volume and
// finalizer stages call to talk to a cloud API, grounded on
// the Python original's gator.plugins.cloud.base.BaseCloudPlugin. The
// concrete ec2driver package implements it against AWS; the fake package
// implements it in-memory for tests.
package cloud

import "context"

// Volume is the cloud-side handle to an attached block device.
type Volume struct {
	ID         string
	DeviceName string
	SizeGB     int64
}

// Snapshot is the cloud-side handle to a point-in-time volume copy.
type Snapshot struct {
	ID       string
	VolumeID string
}

// Image is the cloud-side handle to a registered machine image.
type Image struct {
	ID               string
	Name             string
	SnapshotID       string
	RootDevice       string
	VirtType         string
	ManifestLocation string
}

// Tag is a single cloud resource tag.
type Tag struct {
	Key   string
	Value string
}

// Instance identifies the host gator is running on, the source of the
// base-AMI metadata and the target of volume attach/detach calls.
type Instance struct {
	ID         string
	RootDevice string
}

// Cloud is the provider surface every cloud stage implementation and
// every finalizer implementation calls through.
type Cloud interface {
	// CurrentInstance returns metadata about the host gator is running on.
	CurrentInstance(ctx context.Context) (Instance, error)

	// CreateVolume provisions a new volume of sizeGB in the same
	// availability zone as instanceID.
	CreateVolume(ctx context.Context, instanceID string, sizeGB int64) (Volume, error)

	// AttachVolume attaches volumeID to instanceID under the requested
	// device name, returning the kernel device path the guest actually
	// sees (which may differ under Nitro's NVMe remapping).
	AttachVolume(ctx context.Context, instanceID, volumeID, deviceName string) (string, error)

	// DetachVolume detaches volumeID from instanceID.
	DetachVolume(ctx context.Context, instanceID, volumeID string) error

	// DeleteVolume permanently deletes volumeID.
	DeleteVolume(ctx context.Context, volumeID string) error

	// ResizeVolume grows volumeID to sizeGB. Shrinking is not supported.
	ResizeVolume(ctx context.Context, volumeID string, sizeGB int64) error

	// CreateSnapshot snapshots volumeID with the given description.
	CreateSnapshot(ctx context.Context, volumeID, description string) (Snapshot, error)

	// RegisterImage registers a new image from a snapshot, matching
	// rootDevice and virtType to the base image being provisioned.
	RegisterImage(ctx context.Context, name, snapshotID, rootDevice, virtType string) (Image, error)

	// RegisterBundledImage registers a new image from an S3-hosted bundle
	// manifest, the bundle finalizer's REGISTER step. manifestLocation is
	// "<bucket>/<key>", matching euca-register's manifest= argument.
	RegisterBundledImage(ctx context.Context, name, manifestLocation, architecture string) (Image, error)

	// TagResources applies tags to the given resource IDs, in the exact
	// order given: EC2 and S3 both surface tags in creation order, and
	// callers rely on Tag being an ordered slice rather than a map.
	TagResources(ctx context.Context, resourceIDs []string, tags []Tag) error

	// UploadBundle uploads the bundle manifest and its parts to bucket
	// under prefix, for the bundle finalizer. retry requests the same
	// euca-upload-bundle --retry behavior: retry individual part uploads
	// that fail instead of aborting the whole bundle.
	UploadBundle(ctx context.Context, bucket, prefix, manifestPath string, partPaths []string, retry bool) error
}
