package devtype

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/mountinfo"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/system"
)

// VolatileRoot hosts the tmpfs-backed cache directories.
const VolatileRoot = "/var/run/cache"

// Detector resolves the type of a device, consulting the cache before
// falling back to the expensive seek probe.
type Detector struct {
	catalog device.Manager
	store   *Store
}

// NewDetector creates a detector. store may be nil, in which case every
// lookup probes.
func NewDetector(catalog device.Manager, store *Store) *Detector {
	return &Detector{catalog: catalog, store: store}
}

// Type returns the device type, probing and caching on a miss.
func (d *Detector) Type(ctx context.Context, dev *device.Device) (device.Type, error) {
	name := dev.Name()
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("invalid device path '%s'", dev.Path)
	}

	if typ, ok, err := d.store.Get(name); err != nil {
		// a broken cache entry must not block classification
		logger := log.WithComponent("devtype")
		logger.Warn().Err(err).Str("device", name).Msg("failed to read cached device type")
	} else if ok {
		return typ, nil
	}

	typ, err := d.catalog.Seektime(ctx, dev)
	if err != nil {
		return "", err
	}

	if err := d.store.Set(name, typ); err != nil {
		return "", fmt.Errorf("failed to cache detected device type for '%s': %w", dev.Path, err)
	}

	return typ, nil
}

// Volatile ensures a tmpfs-backed directory under /var/run/cache with the
// given size, mounting it when it is not mounted yet. The returned path is
// suitable as a Store directory.
func Volatile(sys system.Syscalls, table mountinfo.Table, name string, size uint64) (string, error) {
	path := filepath.Join(VolatileRoot, name)

	mnt, err := mountinfo.Mountpoint(table, path)
	if err != nil {
		return "", err
	}
	if mnt != nil {
		return path, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory '%s': %w", path, err)
	}

	if err := sys.Mount("", path, "tmpfs", 0, fmt.Sprintf("size=%d", size)); err != nil {
		return "", err
	}

	return path, nil
}
