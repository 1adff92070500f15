// Package ec2driver implements cloud.Cloud against AWS EC2 and S3,
// grounded on the aws-sdk-go-v2 usage patterns in the example pack
// (client construction via config.LoadDefaultConfig, per-call context,
// paginator-free single-page calls matched to gator's small result sets).
package ec2driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/fsprep"
	"github.com/haleterminal/gator/retry"
)

// Driver implements cloud.Cloud against live AWS EC2/S3 APIs.
type Driver struct {
	ec2 *ec2.Client
	s3  *s3.Client

	retry retry.Options
}

// New loads the default AWS SDK config (environment, shared config file,
// or instance role) and builds a Driver.
func New(ctx context.Context, region string) (*Driver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ec2driver: load aws config: %w", err)
	}
	return &Driver{
		ec2: ec2.NewFromConfig(cfg),
		s3:  s3.NewFromConfig(cfg),
		retry: retry.Options{
			Tries:    5,
			Delay:    time.Second,
			Backoff:  2,
			MaxDelay: 30 * time.Second,
		},
	}, nil
}

func (d *Driver) CurrentInstance(ctx context.Context) (cloud.Instance, error) {
	out, err := d.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{metadataInstanceID()},
	})
	if err != nil {
		return cloud.Instance{}, &errs.CloudError{Op: "DescribeInstances", Err: err}
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return cloud.Instance{}, &errs.CloudError{Op: "DescribeInstances", Err: fmt.Errorf("no instance found")}
	}
	inst := out.Reservations[0].Instances[0]
	return cloud.Instance{
		ID:         aws.ToString(inst.InstanceId),
		RootDevice: aws.ToString(inst.RootDeviceName),
	}, nil
}

func (d *Driver) CreateVolume(ctx context.Context, instanceID string, sizeGB int64) (cloud.Volume, error) {
	az, err := d.availabilityZone(ctx, instanceID)
	if err != nil {
		return cloud.Volume{}, err
	}

	var vol cloud.Volume
	err = retry.Do(ctx, d.retry, func(ctx context.Context) error {
		out, err := d.ec2.CreateVolume(ctx, &ec2.CreateVolumeInput{
			AvailabilityZone: aws.String(az),
			Size:             aws.Int32(int32(sizeGB)),
			VolumeType:       ec2types.VolumeTypeGp3,
		})
		if err != nil {
			return &errs.CloudError{Op: "CreateVolume", Err: err, Retryable: true}
		}
		vol = cloud.Volume{ID: aws.ToString(out.VolumeId), SizeGB: sizeGB}
		return nil
	})
	return vol, err
}

func (d *Driver) availabilityZone(ctx context.Context, instanceID string) (string, error) {
	out, err := d.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return "", &errs.CloudError{Op: "DescribeInstances", Err: err}
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return "", &errs.CloudError{Op: "DescribeInstances", Err: fmt.Errorf("instance %s not found", instanceID)}
	}
	return aws.ToString(out.Reservations[0].Instances[0].Placement.AvailabilityZone), nil
}

func (d *Driver) AttachVolume(ctx context.Context, instanceID, volumeID, deviceName string) (string, error) {
	waiter := ec2.NewVolumeAvailableWaiter(d.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}}, 2*time.Minute); err != nil {
		return "", &errs.CloudError{Op: "WaitVolumeAvailable", Err: err}
	}

	_, err := d.ec2.AttachVolume(ctx, &ec2.AttachVolumeInput{
		Device:     aws.String(deviceName),
		InstanceId: aws.String(instanceID),
		VolumeId:   aws.String(volumeID),
	})
	if err != nil {
		return "", &errs.CloudError{Op: "AttachVolume", Err: err}
	}

	attachWaiter := ec2.NewVolumeInUseWaiter(d.ec2)
	if err := attachWaiter.Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}}, 2*time.Minute); err != nil {
		return "", &errs.CloudError{Op: "WaitVolumeInUse", Err: err}
	}

	return fsprep.DevicePrefix(deviceName, volumeID)
}

func (d *Driver) DetachVolume(ctx context.Context, instanceID, volumeID string) error {
	_, err := d.ec2.DetachVolume(ctx, &ec2.DetachVolumeInput{
		InstanceId: aws.String(instanceID),
		VolumeId:   aws.String(volumeID),
	})
	if err != nil {
		return &errs.CloudError{Op: "DetachVolume", Err: err}
	}
	waiter := ec2.NewVolumeAvailableWaiter(d.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}}, 2*time.Minute); err != nil {
		return &errs.CloudError{Op: "WaitVolumeAvailable", Err: err}
	}
	return nil
}

func (d *Driver) DeleteVolume(ctx context.Context, volumeID string) error {
	_, err := d.ec2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(volumeID)})
	if err != nil {
		return &errs.CloudError{Op: "DeleteVolume", Err: err}
	}
	return nil
}

func (d *Driver) ResizeVolume(ctx context.Context, volumeID string, sizeGB int64) error {
	_, err := d.ec2.ModifyVolume(ctx, &ec2.ModifyVolumeInput{
		VolumeId: aws.String(volumeID),
		Size:     aws.Int32(int32(sizeGB)),
	})
	if err != nil {
		return &errs.CloudError{Op: "ModifyVolume", Err: err}
	}
	return nil
}

func (d *Driver) CreateSnapshot(ctx context.Context, volumeID, description string) (cloud.Snapshot, error) {
	out, err := d.ec2.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
	})
	if err != nil {
		return cloud.Snapshot{}, &errs.CloudError{Op: "CreateSnapshot", Err: err}
	}
	waiter := ec2.NewSnapshotCompletedWaiter(d.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{aws.ToString(out.SnapshotId)}}, 30*time.Minute); err != nil {
		return cloud.Snapshot{}, &errs.CloudError{Op: "WaitSnapshotCompleted", Err: err}
	}
	return cloud.Snapshot{ID: aws.ToString(out.SnapshotId), VolumeID: volumeID}, nil
}

func (d *Driver) RegisterImage(ctx context.Context, name, snapshotID, rootDevice, virtType string) (cloud.Image, error) {
	out, err := d.ec2.RegisterImage(ctx, &ec2.RegisterImageInput{
		Name:               aws.String(name),
		RootDeviceName:     aws.String(rootDevice),
		VirtualizationType: aws.String(virtType),
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{
			{
				DeviceName: aws.String(rootDevice),
				Ebs:        &ec2types.EbsBlockDevice{SnapshotId: aws.String(snapshotID)},
			},
		},
	})
	if err != nil {
		return cloud.Image{}, &errs.CloudError{Op: "RegisterImage", Err: err}
	}
	return cloud.Image{
		ID:         aws.ToString(out.ImageId),
		Name:       name,
		SnapshotID: snapshotID,
		RootDevice: rootDevice,
		VirtType:   virtType,
	}, nil
}

func (d *Driver) RegisterBundledImage(ctx context.Context, name, manifestLocation, architecture string) (cloud.Image, error) {
	out, err := d.ec2.RegisterImage(ctx, &ec2.RegisterImageInput{
		Name:          aws.String(name),
		ImageLocation: aws.String(manifestLocation),
		Architecture:  ec2types.ArchitectureValues(architecture),
	})
	if err != nil {
		return cloud.Image{}, &errs.CloudError{Op: "RegisterImage", Err: err}
	}
	return cloud.Image{
		ID:               aws.ToString(out.ImageId),
		Name:             name,
		ManifestLocation: manifestLocation,
	}, nil
}

func (d *Driver) TagResources(ctx context.Context, resourceIDs []string, tags []cloud.Tag) error {
	ec2Tags := make([]ec2types.Tag, 0, len(tags))
	for _, t := range tags {
		ec2Tags = append(ec2Tags, ec2types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	_, err := d.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: resourceIDs,
		Tags:      ec2Tags,
	})
	if err != nil {
		return &errs.CloudError{Op: "CreateTags", Err: err}
	}
	return nil
}

func (d *Driver) UploadBundle(ctx context.Context, bucket, prefix, manifestPath string, partPaths []string, retryUpload bool) error {
	for _, p := range append(partPaths, manifestPath) {
		if err := d.putObject(ctx, bucket, filepath.Join(prefix, filepath.Base(p)), p, retryUpload); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) putObject(ctx context.Context, bucket, key, path string, retryUpload bool) error {
	put := func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("ec2driver: open %s: %w", path, err)
		}
		defer f.Close()

		_, err = d.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		})
		if err != nil {
			return &errs.CloudError{Op: "PutObject", Err: err, Retryable: true}
		}
		return nil
	}

	if !retryUpload {
		return put(ctx)
	}
	return retry.Do(ctx, d.retry, put)
}

// metadataInstanceID returns this host's own instance ID as given in the
// GATOR_INSTANCE_ID environment variable. The EC2 instance metadata
// service is not queried, and neither New nor anything else in this
// package sets up a metadata client.
func metadataInstanceID() string {
	return os.Getenv("GATOR_INSTANCE_ID")
}
