package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nodeos/storaged/pkg/storage/pool"
)

// Kind of object a storage error refers to.
type Kind string

const (
	KindVolume Kind = "volume"
	KindDisk   Kind = "disk"
	KindDevice Kind = "device"
)

var (
	// ErrNotFound is wrapped by lookup failures, carrying the object kind
	// and id in the message.
	ErrNotFound = errors.New("not found")

	// ErrNoSpaceLeft means no SSD pool can fit the requested size.
	ErrNoSpaceLeft = errors.New("no enough space left on devices")

	// ErrNoDeviceLeft means no free HDD device can fit the requested size.
	ErrNoDeviceLeft = errors.New("no device left to support required size")

	// ErrInvalidSize rejects zero sized volumes and shrinking disks.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidName rejects names that would escape the volume directory.
	ErrInvalidName = errors.New("invalid name")
)

func errNotFound(kind Kind, id string) error {
	return fmt.Errorf("%s '%s': %w", kind, id, ErrNotFound)
}

// validName accepts plain file names only, no path separators or dot
// references that could reach outside the parent volume.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

// Usage of a pool or volume, re-exported from the pool layer.
type Usage = pool.Usage

// VolumeInfo describes a named volume on an SSD pool.
type VolumeInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// DiskInfo describes a virtual disk image file.
type DiskInfo struct {
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// DeviceInfo describes an allocated HDD device.
type DeviceInfo struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// PoolStats is a point-in-time snapshot of one pool, used by the metrics
// collector. Usage is zero for pools that are down.
type PoolStats struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`
	Size  uint64 `json:"size"`
	Used  uint64 `json:"used"`
}

// Manager is the full storage surface of the node.
type Manager interface {
	// Volumes lists all volumes on all mounted SSD pools.
	Volumes(ctx context.Context) ([]VolumeInfo, error)

	// VolumeLookup finds a volume by name.
	VolumeLookup(ctx context.Context, name string) (VolumeInfo, error)

	// VolumeCreate creates a volume with the given size. Creating an
	// existing volume returns it unchanged, the size is ignored.
	VolumeCreate(ctx context.Context, name string, size uint64) (VolumeInfo, error)

	// VolumeUpdate resizes the quota of an existing volume.
	VolumeUpdate(ctx context.Context, name string, size uint64) error

	// VolumeDelete deletes a volume by name. Deleting a missing volume
	// is not an error.
	VolumeDelete(ctx context.Context, name string) error

	// Disks lists all virtual disk images.
	Disks(ctx context.Context) ([]DiskInfo, error)

	// DiskLookup finds a disk by name.
	DiskLookup(ctx context.Context, name string) (DiskInfo, error)

	// DiskCreate creates a disk image with the given size. An existing
	// disk is returned unchanged.
	DiskCreate(ctx context.Context, name string, size uint64) (DiskInfo, error)

	// DiskDelete deletes a disk by name. Deleting a missing disk is not
	// an error.
	DiskDelete(ctx context.Context, name string) error

	// DiskExpand grows a disk to size, which must not be smaller than the
	// current size.
	DiskExpand(ctx context.Context, name string, size uint64) error

	// Devices lists all allocated HDD devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// DeviceLookup finds an allocated device by id.
	DeviceLookup(ctx context.Context, name string) (DeviceInfo, error)

	// DeviceAllocate takes the first free HDD that can fit min bytes.
	DeviceAllocate(ctx context.Context, min uint64) (DeviceInfo, error)
}
