package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nodeos/storaged/pkg/log"
)

// mkdisk creates (or grows) a disk image file of the given size. The file
// gets the NOCOW attribute before any space is allocated, otherwise btrfs
// copy-on-write would fragment the image badly under random writes.
func mkdisk(path string, size uint64) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create disk file '%s': %w", path, err)
	}
	defer file.Close()

	if err := setNoCow(file); err != nil {
		// filesystems without attribute support (tmpfs) reject the ioctl
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EINVAL) {
			logger := log.WithComponent("storage")
			logger.Warn().Str("disk", path).Msg("filesystem does not support the NOCOW attribute")
		} else {
			return fmt.Errorf("failed to set NOCOW flag on '%s': %w", path, err)
		}
	}

	if err := unix.Fallocate(int(file.Fd()), 0, 0, int64(size)); err != nil {
		return fmt.Errorf("failed to allocate disk size: %w", err)
	}

	return nil
}

// fsNoCowFl is FS_NOCOW_FL from linux/fs.h, not exported by x/sys.
const fsNoCowFl = 0x00800000

func setNoCow(file *os.File) error {
	fd := int(file.Fd())
	flags, err := unix.IoctlGetInt(fd, unix.FS_IOC_GETFLAGS)
	if err != nil {
		return err
	}
	return unix.IoctlSetPointerInt(fd, unix.FS_IOC_SETFLAGS, flags|fsNoCowFl)
}
