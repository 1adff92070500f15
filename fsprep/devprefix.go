package fsprep

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NativeDevicePrefix returns the partition-suffix prefix for a block
// device path: NVMe and loop devices need a "p" before the partition
// number ("/dev/nvme1n1" -> "/dev/nvme1n1p1"), plain "sdX"/"xvdX" devices
// don't ("/dev/xvdf" -> "/dev/xvdf1").
func NativeDevicePrefix(device string) string {
	base := filepath.Base(device)
	if strings.HasPrefix(base, "nvme") || strings.HasPrefix(base, "loop") {
		return device + "p"
	}
	return device
}

// DevicePrefix resolves the kernel device name EC2 actually attached a
// volume under, given the name requested at AttachVolume time. On Nitro
// instances EC2 silently remaps "/dev/sdf"-style names to
// "/dev/nvme<N>n1". The requested name is returned unchanged when it
// exists; otherwise this walks /sys/block for the NVMe device whose serial
// contains the volume ID, and returns an error when none matches.
func DevicePrefix(requestedDevice, volumeID string) (string, error) {
	if _, err := os.Stat(requestedDevice); err == nil {
		return requestedDevice, nil
	}

	entries, err := os.ReadDir("/sys/block")
	if err != nil {
		return "", fmt.Errorf("fsprep: read /sys/block: %w", err)
	}

	trimmedVolID := strings.TrimPrefix(volumeID, "vol-")
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "nvme") {
			continue
		}
		serialPath := filepath.Join("/sys/block", name, "device", "serial")
		raw, err := os.ReadFile(serialPath)
		if err != nil {
			continue
		}
		serial := strings.TrimSpace(string(raw))
		if strings.Contains(serial, trimmedVolID) {
			return "/dev/" + name, nil
		}
	}

	return "", fmt.Errorf("fsprep: no nvme device found for volume %s", volumeID)
}
