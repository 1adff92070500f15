//go:build linux

package fsprep

import "syscall"

func chrootSys(path string) error {
	return syscall.Chroot(path)
}
