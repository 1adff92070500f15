package fsprep

import (
	"fmt"
	"os"
	"regexp"
)

// shortCircuitSuffix marks a command binary gator has moved aside and
// replaced with a symlink to /bin/true, so chrooted package-manager
// scripts (e.g. invoke-rc.d, service) are no-ops during provisioning.
const shortCircuitSuffix = ".gator_orig"

// ShortCircuit moves the binary at path aside and symlinks /bin/true in
// its place. Calling ShortCircuit on an already-short-circuited path is a
// no-op.
func ShortCircuit(path string) error {
	if _, err := os.Lstat(path + shortCircuitSuffix); err == nil {
		return nil
	}
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(path, path+shortCircuitSuffix); err != nil {
		return fmt.Errorf("fsprep: short-circuit rename %s: %w", path, err)
	}
	if err := os.Symlink("/bin/true", path); err != nil {
		return fmt.Errorf("fsprep: short-circuit symlink %s: %w", path, err)
	}
	return nil
}

// Rewire reverses ShortCircuit: it removes the /bin/true symlink and
// restores the original binary.
func Rewire(path string) error {
	orig := path + shortCircuitSuffix
	if _, err := os.Lstat(orig); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsprep: rewire remove symlink %s: %w", path, err)
	}
	if err := os.Rename(orig, path); err != nil {
		return fmt.Errorf("fsprep: rewire restore %s: %w", path, err)
	}
	return nil
}

// metadataNamePattern is the allowed character set for AMI/snapshot/image
// names and descriptions: cloud registries reject anything else.
var metadataNamePattern = regexp.MustCompile(`[^A-Za-z0-9().\-/_]`)

// SanitizeMetadata replaces every character outside the allowed set with
// an underscore.
func SanitizeMetadata(s string) string {
	return metadataNamePattern.ReplaceAllString(s, "_")
}
