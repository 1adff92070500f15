//go:build !linux

package fsprep

import "errors"

func chrootSys(path string) error {
	return errors.New("fsprep: chroot is only supported on linux")
}
