package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/storage/devtype"
	"github.com/nodeos/storaged/pkg/storage/pool"
)

const (
	// vdisksVolume is the reserved volume holding disk images, one per
	// SSD pool at most.
	vdisksVolume = "vdisks"

	// zdbVolume marks an HDD pool as allocated and holds its data.
	zdbVolume = "zdb"
)

// StorageManager implements Manager on top of a device catalog and a pool
// backend.
type StorageManager struct {
	mu sync.Mutex

	devices  device.Manager
	pools    pool.Manager
	detector *devtype.Detector

	ssds []*pool.Pool
	hdds []*pool.Pool

	ssdSize uint64
	hddSize uint64

	logger zerolog.Logger
}

var _ Manager = (*StorageManager)(nil)

// NewStorageManager scans the device catalog and builds the pool sets. A
// device that fails classification, pool construction or validation is
// logged and skipped, it never fails the whole manager.
func NewStorageManager(ctx context.Context, devices device.Manager, pools pool.Manager, detector *devtype.Detector) (*StorageManager, error) {
	s := &StorageManager{
		devices:  devices,
		pools:    pools,
		detector: detector,
		logger:   log.WithComponent("storage"),
	}

	if err := s.initialize(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *StorageManager) initialize(ctx context.Context) error {
	devs, err := s.devices.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	for _, dev := range devs {
		dev := dev
		typ, err := s.detector.Type(ctx, &dev)
		if err != nil {
			s.logger.Error().Err(err).Str("device", dev.Path).Msg("failed to detect device type")
			continue
		}

		p, err := s.pools.Get(ctx, s.devices, dev)
		if err != nil {
			s.logger.Error().Err(err).Str("device", dev.Path).Msg("failed to initialize pool for device")
			continue
		}

		usage, err := s.validate(ctx, p)
		if err != nil {
			s.logger.Error().Err(err).Str("pool", p.Name()).Msg("failed to validate pool")
			continue
		}

		switch typ {
		case device.SSD:
			s.ssdSize += usage.Size
			s.ssds = append(s.ssds, p)
		case device.HDD:
			s.hddSize += usage.Size
			s.hdds = append(s.hdds, p)
		}
	}

	s.logger.Info().
		Int("ssds", len(s.ssds)).
		Int("hdds", len(s.hdds)).
		Uint64("ssd-size", s.ssdSize).
		Uint64("hdd-size", s.hddSize).
		Msg("storage initialized")

	return nil
}

// validate brings the pool up to read its usage, then brings it back down
// when it holds no volumes so the disk does not stay spinning for nothing.
func (s *StorageManager) validate(ctx context.Context, p *pool.Pool) (Usage, error) {
	up, err := p.IntoUp(ctx)
	if err != nil {
		return Usage{}, err
	}

	usage, err := up.Usage(ctx)
	if err != nil {
		return Usage{}, err
	}

	volumes, err := up.Volumes(ctx)
	if err != nil {
		return Usage{}, err
	}
	if len(volumes) == 0 {
		if _, err := p.IntoDown(ctx); err != nil {
			return Usage{}, err
		}
	}

	return usage, nil
}

// allocate finds an SSD pool with room for size, preferring pools that are
// already up. Bringing a down pool up is tried per pool; failures are
// logged and the next candidate is used.
func (s *StorageManager) allocate(ctx context.Context, size uint64) (pool.UpPool, error) {
	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		usage, err := up.Usage(ctx)
		if err != nil {
			return nil, err
		}
		if usage.EnoughFor(size) {
			return up, nil
		}
	}

	for _, p := range s.ssds {
		if p.State() == pool.StateUp || p.Size() < size {
			continue
		}

		up, err := p.IntoUp(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("pool", p.Name()).Msg("failed to bring pool up")
			continue
		}

		return up, nil
	}

	return nil, ErrNoSpaceLeft
}

func (s *StorageManager) Volumes(ctx context.Context) ([]VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var volumes []VolumeInfo
	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vols, err := up.Volumes(ctx)
		if err != nil {
			return nil, err
		}
		for _, vol := range vols {
			volumes = append(volumes, VolumeInfo{Name: vol.Name(), Path: vol.Path()})
		}
	}

	return volumes, nil
}

func (s *StorageManager) VolumeLookup(ctx context.Context, name string) (VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.volumeLookup(ctx, name)
}

func (s *StorageManager) volumeLookup(ctx context.Context, name string) (VolumeInfo, error) {
	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vol, err := up.Volume(ctx, name)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			return VolumeInfo{}, err
		}

		return VolumeInfo{Name: vol.Name(), Path: vol.Path()}, nil
	}

	return VolumeInfo{}, errNotFound(KindVolume, name)
}

func (s *StorageManager) VolumeCreate(ctx context.Context, name string, size uint64) (VolumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size == 0 {
		return VolumeInfo{}, fmt.Errorf("%w: volume size cannot be 0", ErrInvalidSize)
	}
	if !validName(name) {
		return VolumeInfo{}, fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}

	existing, err := s.volumeLookup(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return VolumeInfo{}, err
	}

	up, err := s.allocate(ctx, size)
	if err != nil {
		return VolumeInfo{}, err
	}

	vol, err := up.VolumeCreate(ctx, name)
	if err != nil {
		return VolumeInfo{}, err
	}

	if err := vol.Limit(ctx, size); err != nil {
		return VolumeInfo{}, err
	}

	return VolumeInfo{Name: vol.Name(), Path: vol.Path()}, nil
}

func (s *StorageManager) VolumeUpdate(ctx context.Context, name string, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if size == 0 {
		return fmt.Errorf("%w: volume size cannot be 0", ErrInvalidSize)
	}

	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vol, err := up.Volume(ctx, name)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		return vol.Limit(ctx, size)
	}

	return errNotFound(KindVolume, name)
}

func (s *StorageManager) VolumeDelete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		err := up.VolumeDelete(ctx, name)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		// TODO: bring the pool down when its last volume is gone
	}

	return nil
}

func (s *StorageManager) Disks(ctx context.Context) ([]DiskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var disks []DiskInfo
	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vol, err := up.Volume(ctx, vdisksVolume)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("pool", up.Name()).Msg("failed to list volumes from pool")
			continue
		}

		entries, err := os.ReadDir(vol.Path())
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := filepath.Join(vol.Path(), entry.Name())
			info, err := entry.Info()
			if err != nil {
				s.logger.Error().Err(err).Str("disk", path).Msg("failed to get disk information")
				continue
			}
			if !info.Mode().IsRegular() {
				continue
			}

			disks = append(disks, DiskInfo{Path: path, Size: uint64(info.Size())})
		}
	}

	return disks, nil
}

func (s *StorageManager) DiskLookup(ctx context.Context, name string) (DiskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.diskLookup(ctx, name)
}

func (s *StorageManager) diskLookup(ctx context.Context, name string) (DiskInfo, error) {
	if !validName(name) {
		return DiskInfo{}, fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}

	for _, p := range s.ssds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vol, err := up.Volume(ctx, vdisksVolume)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("pool", up.Name()).Msg("failed to list volumes from pool")
			continue
		}

		path := filepath.Join(vol.Path(), name)
		if info, err := os.Stat(path); err == nil {
			return DiskInfo{Path: path, Size: uint64(info.Size())}, nil
		}
	}

	return DiskInfo{}, errNotFound(KindDisk, name)
}

func (s *StorageManager) DiskCreate(ctx context.Context, name string, size uint64) (DiskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.diskLookup(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return DiskInfo{}, err
	}

	up, err := s.allocate(ctx, size)
	if err != nil {
		return DiskInfo{}, err
	}

	vol, err := up.Volume(ctx, vdisksVolume)
	if errors.Is(err, pool.ErrVolumeNotFound) {
		vol, err = up.VolumeCreate(ctx, vdisksVolume)
	}
	if err != nil {
		return DiskInfo{}, err
	}

	path := filepath.Join(vol.Path(), name)
	if err := mkdisk(path, size); err != nil {
		return DiskInfo{}, err
	}

	return DiskInfo{Path: path, Size: size}, nil
}

func (s *StorageManager) DiskDelete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	disk, err := s.diskLookup(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return os.Remove(disk.Path)
}

func (s *StorageManager) DiskExpand(ctx context.Context, name string, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	disk, err := s.diskLookup(ctx, name)
	if err != nil {
		return err
	}

	if size < disk.Size {
		return fmt.Errorf("%w: cannot shrink disk from %d to %d", ErrInvalidSize, disk.Size, size)
	}
	if size == disk.Size {
		return nil
	}

	return mkdisk(disk.Path, size)
}

func (s *StorageManager) DeviceAllocate(ctx context.Context, min uint64) (DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.hdds {
		if p.State() == pool.StateUp || p.Size() < min {
			continue
		}

		up, err := p.IntoUp(ctx)
		if err != nil {
			return DeviceInfo{}, err
		}

		// a zdb volume means the device is already taken, even though the
		// pool was down
		_, err = up.Volume(ctx, zdbVolume)
		if err == nil {
			continue
		}
		if !errors.Is(err, pool.ErrVolumeNotFound) {
			return DeviceInfo{}, err
		}

		vol, err := up.VolumeCreate(ctx, zdbVolume)
		if err != nil {
			return DeviceInfo{}, err
		}

		return DeviceInfo{ID: up.Name(), Path: vol.Path(), Size: up.Size()}, nil
	}

	return DeviceInfo{}, ErrNoDeviceLeft
}

func (s *StorageManager) Devices(ctx context.Context) ([]DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []DeviceInfo
	for _, p := range s.hdds {
		up := p.AsUp()
		if up == nil {
			continue
		}

		vol, err := up.Volume(ctx, zdbVolume)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error().Err(err).Str("pool", up.Name()).Msg("failed to get volume")
			continue
		}

		devices = append(devices, DeviceInfo{ID: up.Name(), Path: vol.Path(), Size: p.Size()})
	}

	return devices, nil
}

func (s *StorageManager) DeviceLookup(ctx context.Context, name string) (DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.hdds {
		up := p.AsUp()
		if up == nil || up.Name() != name {
			continue
		}

		vol, err := up.Volume(ctx, zdbVolume)
		if errors.Is(err, pool.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			return DeviceInfo{}, err
		}

		return DeviceInfo{ID: up.Name(), Path: vol.Path(), Size: p.Size()}, nil
	}

	return DeviceInfo{}, errNotFound(KindDevice, name)
}

// Pools snapshots every known pool for the metrics collector. Usage read
// failures are logged and reported as zero, never fatal.
func (s *StorageManager) Pools(ctx context.Context) []PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats []PoolStats
	for typ, pools := range map[string][]*pool.Pool{
		device.SSD.String(): s.ssds,
		device.HDD.String(): s.hdds,
	} {
		for _, p := range pools {
			stat := PoolStats{
				Name:  p.Name(),
				Type:  typ,
				State: string(p.State()),
				Size:  p.Size(),
			}

			if up := p.AsUp(); up != nil {
				usage, err := up.Usage(ctx)
				if err != nil {
					s.logger.Error().Err(err).Str("pool", p.Name()).Msg("failed to read pool usage")
				} else {
					stat.Used = usage.Used
				}
			}

			stats = append(stats, stat)
		}
	}

	return stats
}
