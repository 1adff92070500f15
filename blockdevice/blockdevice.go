// Package blockdevice allocates an unused device name for a new EBS
// volume attach, grounded on the Python original's
// gator.plugins.blockdevice.{base,null,manager} trio: a base allocator
// interface, a null allocator for providers that assign device names
// themselves, and a Linux allocator that scans the host's existing block
// devices to find a free slot.
package blockdevice

import (
	"fmt"
	"os"
	"strings"
)

// Allocator picks an unused device name to attach a new volume under.
type Allocator interface {
	// Allocate returns a device path not already in use on the host,
	// e.g. "/dev/xvdf".
	Allocate() (string, error)

	// Release marks device as free again.
	Release(device string)
}

// candidateLetters is the pool of device-name suffixes gator cycles
// through, matching the Python original's "f" through "p" range (the
// first few letters are reserved for the root device and ephemeral
// stores on most EC2 instance types).
const candidateLetters = "fghijklmnop"

// Linux is an Allocator that scans /dev for the first unused
// /dev/xvd<letter> (or /dev/sd<letter> on older kernels) name.
type Linux struct {
	prefix string // "/dev/xvd" or "/dev/sd"
	inUse  map[string]bool
}

// NewLinux builds a Linux allocator. prefix defaults to "/dev/xvd" if empty.
func NewLinux(prefix string) *Linux {
	if prefix == "" {
		prefix = "/dev/xvd"
	}
	return &Linux{prefix: prefix, inUse: make(map[string]bool)}
}

// Allocate returns the first device name in candidateLetters that is
// neither already present on the host nor already handed out by this
// allocator instance.
func (l *Linux) Allocate() (string, error) {
	for _, c := range candidateLetters {
		device := l.prefix + string(c)
		if l.inUse[device] {
			continue
		}
		if _, err := os.Stat(device); err == nil {
			continue
		}
		l.inUse[device] = true
		return device, nil
	}
	return "", fmt.Errorf("blockdevice: no free device name in %s[%s]", l.prefix, candidateLetters)
}

// Release marks device as available again, for a failed attach or a
// volume detach.
func (l *Linux) Release(device string) {
	delete(l.inUse, device)
}

// Null is an Allocator for cloud plugins that assign device names
// themselves (e.g. a provider that returns the attached name from its
// own attach call); Allocate always returns the empty string, signaling
// the caller should not pre-pick a name.
type Null struct{}

func (Null) Allocate() (string, error) { return "", nil }
func (Null) Release(string)            {}

// IsReservedPrefix reports whether device names the root or an
// instance-store ephemeral disk, which Linux never hands out.
func IsReservedPrefix(device string) bool {
	for _, suffix := range []string{"a", "b", "c", "d", "e"} {
		if strings.HasSuffix(device, suffix) {
			return true
		}
	}
	return false
}
