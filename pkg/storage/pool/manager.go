package pool

import (
	"context"
	"fmt"

	"github.com/nodeos/storaged/pkg/mountinfo"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/system"
)

// BtrfsManager builds btrfs pools on top of raw devices.
type BtrfsManager struct {
	exec   system.Executor
	sys    system.Syscalls
	mounts mountinfo.Table
}

var _ Manager = (*BtrfsManager)(nil)

// NewBtrfsManager creates a pool manager. The mount table is consulted on
// Get so already mounted devices come back as Up pools.
func NewBtrfsManager(exec system.Executor, sys system.Syscalls, mounts mountinfo.Table) *BtrfsManager {
	return &BtrfsManager{exec: exec, sys: sys, mounts: mounts}
}

// Get returns a pool wrapping the device. A bare device is formatted first;
// a device with a foreign filesystem, or with btrfs but no label, is
// rejected rather than touched.
func (m *BtrfsManager) Get(ctx context.Context, devices device.Manager, dev device.Device) (*Pool, error) {
	switch dev.Filesystem {
	case "":
		formatted, err := devices.Format(ctx, dev, device.Btrfs, false)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare filesystem on '%s': %w", dev.Path, err)
		}
		dev = formatted
	case string(device.Btrfs):
		if dev.Label == "" {
			// btrfs but no label is an unknown state, leave the device alone
			return nil, fmt.Errorf("%w: '%s'", ErrInvalidLabel, dev.Path)
		}
	default:
		return nil, fmt.Errorf("%w: '%s' has %s", ErrInvalidFilesystem, dev.Path, dev.Filesystem)
	}

	return m.pool(dev)
}

// pool inspects the mount table and wraps the device in the matching state.
// Only a whole-filesystem mount (subvol=/) counts; subvolume mounts belong
// to consumers, not the pool.
func (m *BtrfsManager) pool(dev device.Device) (*Pool, error) {
	if dev.Filesystem == "" || dev.Label == "" {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidFilesystem, dev.Path)
	}

	mounts, err := mountinfo.MountInfo(m.mounts, dev.Path)
	if err != nil {
		return nil, err
	}

	utils := newBtrfsUtils(m.exec)
	for _, mnt := range mounts {
		value, hasValue, found := mnt.Option("subvol")
		if found && hasValue && value == "/" {
			return NewUp(&btrfsUpPool{utils: utils, sys: m.sys, device: dev, path: mnt.Target}), nil
		}
	}

	return NewDown(&btrfsDownPool{utils: utils, sys: m.sys, device: dev}), nil
}
