package system

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Mount flags used across the repository, aliased so callers don't need to
// import unix directly.
const (
	MsBind    = unix.MS_BIND
	MsNoatime = unix.MS_NOATIME
	MntForce  = unix.MNT_FORCE
	MntDetach = unix.MNT_DETACH
)

// Syscalls abstracts the mount(2)/umount(2) calls so pool and flist code can
// be tested without privileges.
type Syscalls interface {
	// Mount mounts source on target. Empty source, fstype or data are
	// passed through as empty strings the way mount(2) expects.
	Mount(source, target, fstype string, flags uintptr, data string) error

	// Unmount unmounts target. flags is 0 for a plain umount.
	Unmount(target string, flags int) error
}

// Mount implements Syscalls on the live system.
func (System) Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount '%s' on '%s' (%s): %w", source, target, fstype, err)
	}
	return nil
}

// Unmount implements Syscalls on the live system.
func (System) Unmount(target string, flags int) error {
	if err := unix.Unmount(target, flags); err != nil {
		return fmt.Errorf("umount '%s': %w", target, err)
	}
	return nil
}

// Sync flushes filesystem buffers. Used after launching mount helper
// processes so their mount entries become visible promptly.
func Sync() {
	unix.Sync()
}
