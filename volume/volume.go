// Package volume implements the volume stage: it creates, attaches, and
// formats the scratch EBS volume a distro/provisioner stage installs a
// package onto, and on exit detaches and deletes it (unless
// preserve-on-error keeps it after a failed run). Grounded on
// the Python original's gator.plugins.volume.linux.LinuxVolumePlugin.
package volume

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haleterminal/gator/blockdevice"
	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/fsprep"
	"github.com/haleterminal/gator/plugin"
)

// settings is the per-environment YAML block for this plugin, e.g.:
//
//	size_gb: 8
//	fs_type: ext4
//	mountpoint: /mnt/gator-volume
type settings struct {
	SizeGB     int64  `yaml:"size_gb"`
	FSType     string `yaml:"fs_type"`
	Mountpoint string `yaml:"mountpoint"`
}

func defaultSettings() settings {
	return settings{SizeGB: 8, FSType: "ext4", Mountpoint: "/mnt/gator-volume"}
}

// Linux is the volume stage for Linux EBS-backed hosts.
type Linux struct {
	cfg      settings
	cloud    cloud.Cloud
	alloc    blockdevice.Allocator
	ctx      *config.Context
	enabled  bool

	instanceID string
	volumeID   string
	device     string
}

// New builds an unconfigured Linux volume stage. cloudClient and
// runCtx are supplied by the caller at construction time: the
// volume stage needs a live Cloud to create/attach/detach/delete and
// the shared run Context to publish VolumeInfo into.
func New(cloudClient cloud.Cloud, runCtx *config.Context) *Linux {
	return &Linux{
		cfg:     defaultSettings(),
		cloud:   cloudClient,
		alloc:   blockdevice.NewLinux(""),
		ctx:     runCtx,
		enabled: true,
	}
}

func (l *Linux) Configure(cfg plugin.Config) error {
	merged := defaultSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("volume: decode config: %w", err)
		}
	}
	l.cfg = merged
	return nil
}

func (l *Linux) Enabled() bool { return l.enabled }

func (l *Linux) Enter(ctx context.Context) (plugin.Stage, error) {
	inst, err := l.cloud.CurrentInstance(ctx)
	if err != nil {
		return nil, &errs.VolumeError{Msg: fmt.Sprintf("resolve current instance: %v", err)}
	}
	l.instanceID = inst.ID

	vol, err := l.cloud.CreateVolume(ctx, l.instanceID, l.cfg.SizeGB)
	if err != nil {
		return nil, &errs.VolumeError{Msg: fmt.Sprintf("create volume: %v", err)}
	}
	l.volumeID = vol.ID

	device, err := l.alloc.Allocate()
	if err != nil {
		return nil, &errs.VolumeError{Msg: fmt.Sprintf("allocate device name: %v", err)}
	}

	resolved, err := l.cloud.AttachVolume(ctx, l.instanceID, l.volumeID, device)
	if err != nil {
		l.alloc.Release(device)
		return nil, &errs.VolumeError{Msg: fmt.Sprintf("attach volume %s: %v", l.volumeID, err)}
	}
	l.device = resolved

	if err := l.waitForDevice(ctx, resolved); err != nil {
		return nil, err
	}

	if err := l.formatAndMount(ctx); err != nil {
		return nil, err
	}

	l.ctx.Volume = config.VolumeInfo{
		ID:         l.volumeID,
		DeviceName: l.device,
		Mountpoint: l.cfg.Mountpoint,
		SizeGB:     l.cfg.SizeGB,
	}

	return l, nil
}

func (l *Linux) waitForDevice(ctx context.Context, device string) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		res, err := execrun.Run(ctx, execrun.Argv("test", "-b", device), 5*time.Second)
		if err == nil && res.Success {
			return nil
		}
		time.Sleep(time.Second)
	}
	return &errs.VolumeError{Msg: fmt.Sprintf("device %s never appeared", device)}
}

func (l *Linux) formatAndMount(ctx context.Context) error {
	res, err := execrun.Run(ctx, execrun.Argv("mkfs", "-t", l.cfg.FSType, l.device), 0)
	if err != nil {
		return &errs.VolumeError{Msg: fmt.Sprintf("mkfs %s: %v", l.device, err)}
	}
	if !res.Success {
		return &errs.VolumeError{Msg: fmt.Sprintf("mkfs %s exited %d: %s", l.device, res.Response.StatusCode, res.Response.Stderr)}
	}

	_, err = fsprep.Mount(fsprep.MountSpec{Device: l.device, FSType: l.cfg.FSType, Mountpoint: l.cfg.Mountpoint})
	if err != nil {
		return &errs.VolumeError{Msg: fmt.Sprintf("mount %s: %v", l.device, err)}
	}
	return nil
}

// Exit unmounts, detaches, and deletes the volume. When ctx.PreserveOnError is set
// and err != nil, the volume and its attach are left intact so an
// operator can inspect the failure in place, matching the Python
// original's preserve_on_error knob.
func (l *Linux) Exit(ctx context.Context, err error) error {
	if err != nil && l.ctx.PreserveOnError {
		slog.Warn("volume: preserving volume after error", "volume_id", l.volumeID, "device", l.device, "error", err)
		return nil
	}

	if l.cfg.Mountpoint != "" {
		if mounted, _ := fsprep.Mounted(fsprep.MountSpec{Mountpoint: l.cfg.Mountpoint}); mounted {
			if _, uerr := fsprep.Unmount(fsprep.MountSpec{Mountpoint: l.cfg.Mountpoint}, false, false); uerr != nil {
				return &errs.VolumeError{Msg: fmt.Sprintf("unmount %s: %v", l.cfg.Mountpoint, uerr)}
			}
		}
	}

	if l.volumeID == "" {
		return nil
	}

	if l.instanceID != "" {
		if derr := l.cloud.DetachVolume(ctx, l.instanceID, l.volumeID); derr != nil {
			return &errs.VolumeError{Msg: fmt.Sprintf("detach volume %s: %v", l.volumeID, derr)}
		}
	}
	if derr := l.cloud.DeleteVolume(ctx, l.volumeID); derr != nil {
		return &errs.VolumeError{Msg: fmt.Sprintf("delete volume %s: %v", l.volumeID, derr)}
	}

	if l.device != "" {
		l.alloc.Release(l.device)
	}
	return nil
}
