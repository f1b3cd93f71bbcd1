package flist

import (
	"context"

	"github.com/nodeos/storaged/pkg/storage"
)

// VolumeAllocator is the slice of the storage manager the engine needs for
// write layers. *storage.StorageManager satisfies it directly.
type VolumeAllocator interface {
	// VolumeLookup finds a volume by name.
	VolumeLookup(ctx context.Context, name string) (storage.VolumeInfo, error)

	// VolumeCreate creates a volume with the given quota.
	VolumeCreate(ctx context.Context, name string, size uint64) (storage.VolumeInfo, error)

	// VolumeUpdate resizes the quota of an existing volume.
	VolumeUpdate(ctx context.Context, name string, size uint64) error

	// VolumeDelete releases a volume. Missing volumes are not an error.
	VolumeDelete(ctx context.Context, name string) error
}
