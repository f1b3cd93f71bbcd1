package pool

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/system"
)

// Mnt is the root under which pools are mounted, one directory per label.
const Mnt = "/mnt"

// DirSize walks root and returns the total size of all regular files,
// including files in subdirectories.
func DirSize(root string) (uint64, error) {
	paths := []string{root}
	var size uint64

	for i := 0; i < len(paths); i++ {
		entries, err := os.ReadDir(paths[i])
		if err != nil {
			return 0, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				paths = append(paths, filepath.Join(paths[i], entry.Name()))
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return 0, err
			}
			size += uint64(info.Size())
		}
	}

	return size, nil
}

type qgroupInfo struct {
	id   string
	rfer uint64
	excl uint64

	// maxRfer/maxExcl are only meaningful when the matching has flag is
	// set; btrfs prints "none" for unlimited groups.
	maxRfer    uint64
	hasMaxRfer bool
	maxExcl    uint64
	hasMaxExcl bool
}

type volumeInfo struct {
	id   uint64
	name string
}

// btrfsUtils shells out to the btrfs tooling. All state changing commands
// are idempotent at the tool level or guarded by callers.
type btrfsUtils struct {
	exec system.Executor
}

func newBtrfsUtils(exec system.Executor) *btrfsUtils {
	return &btrfsUtils{exec: exec}
}

func (u *btrfsUtils) volumeCreate(ctx context.Context, root, name string) (string, error) {
	path := filepath.Join(root, name)
	cmd := system.NewCommand("btrfs", "subvolume", "create", path)
	if _, err := u.exec.Run(ctx, cmd); err != nil {
		return "", err
	}
	return path, nil
}

func (u *btrfsUtils) volumeDelete(ctx context.Context, root, name string) error {
	cmd := system.NewCommand("btrfs", "subvolume", "delete", filepath.Join(root, name))
	_, err := u.exec.Run(ctx, cmd)
	return err
}

func (u *btrfsUtils) volumeID(ctx context.Context, root, name string) (uint64, error) {
	cmd := system.NewCommand("btrfs", "subvolume", "show", filepath.Join(root, name))
	output, err := u.exec.Run(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return parseVolumeID(output)
}

func (u *btrfsUtils) volumeList(ctx context.Context, root string) ([]volumeInfo, error) {
	cmd := system.NewCommand("btrfs", "subvolume", "list", "-o", root)
	output, err := u.exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parseVolumes(output)
}

func (u *btrfsUtils) quotaEnable(ctx context.Context, root string) error {
	cmd := system.NewCommand("btrfs", "quota", "enable", root)
	_, err := u.exec.Run(ctx, cmd)
	return err
}

// qgroupLimit sets the referenced bytes limit on the volume. A zero size
// removes the limit.
func (u *btrfsUtils) qgroupLimit(ctx context.Context, volume string, size uint64) error {
	limit := "none"
	if size > 0 {
		limit = strconv.FormatUint(size, 10)
	}

	cmd := system.NewCommand("btrfs", "qgroup", "limit", limit, volume)
	_, err := u.exec.Run(ctx, cmd)
	return err
}

func (u *btrfsUtils) qgroupDestroy(ctx context.Context, root string, volumeID uint64) error {
	cmd := system.NewCommand("btrfs", "qgroup", "destroy", fmt.Sprintf("0/%d", volumeID), root)
	_, err := u.exec.Run(ctx, cmd)
	return err
}

func (u *btrfsUtils) qgroupList(ctx context.Context, root string) ([]qgroupInfo, error) {
	cmd := system.NewCommand("btrfs", "qgroup", "show", "-re", "--raw", root)
	output, err := u.exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return parseQGroups(output)
}

// parseVolumeID extracts the subvolume id from `btrfs subvolume show`.
func parseVolumeID(data []byte) (uint64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == "Subvolume ID" {
			return strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	return 0, fmt.Errorf("failed to extract subvolume id")
}

// parseQGroups parses `btrfs qgroup show -re --raw` output. The first two
// lines are the header.
func parseQGroups(data []byte) ([]qgroupInfo, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var groups []qgroupInfo
	line := 0
	for scanner.Scan() {
		line++
		if line <= 2 {
			continue
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) != 5 {
			continue
		}

		group := qgroupInfo{id: parts[0]}
		var err error
		if group.rfer, err = strconv.ParseUint(parts[1], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid qgroup rfer '%s': %w", parts[1], err)
		}
		if group.excl, err = strconv.ParseUint(parts[2], 10, 64); err != nil {
			return nil, fmt.Errorf("invalid qgroup excl '%s': %w", parts[2], err)
		}
		if parts[3] != "none" {
			if group.maxRfer, err = strconv.ParseUint(parts[3], 10, 64); err != nil {
				return nil, fmt.Errorf("invalid qgroup max_rfer '%s': %w", parts[3], err)
			}
			group.hasMaxRfer = true
		}
		if parts[4] != "none" {
			if group.maxExcl, err = strconv.ParseUint(parts[4], 10, 64); err != nil {
				return nil, fmt.Errorf("invalid qgroup max_excl '%s': %w", parts[4], err)
			}
			group.hasMaxExcl = true
		}

		groups = append(groups, group)
	}

	return groups, scanner.Err()
}

// parseVolumes parses `btrfs subvolume list -o` output, lines of the form
// `ID 256 gen 33152047 top level 5 path zos-cache`.
func parseVolumes(data []byte) ([]volumeInfo, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var volumes []volumeInfo
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) != 9 {
			continue
		}

		id, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid subvolume id '%s': %w", parts[1], err)
		}

		volumes = append(volumes, volumeInfo{id: id, name: parts[8]})
	}

	return volumes, scanner.Err()
}

// btrfsVolume is a btrfs subvolume with an attached quota group.
type btrfsVolume struct {
	utils *btrfsUtils
	id    uint64
	path  string
}

var _ Volume = (*btrfsVolume)(nil)

func (v *btrfsVolume) ID() uint64 {
	return v.id
}

func (v *btrfsVolume) Path() string {
	return v.path
}

func (v *btrfsVolume) Name() string {
	return filepath.Base(v.path)
}

func (v *btrfsVolume) Limit(ctx context.Context, size uint64) error {
	return v.utils.qgroupLimit(ctx, v.path, size)
}

func (v *btrfsVolume) Usage(ctx context.Context) (Usage, error) {
	groups, err := v.utils.qgroupList(ctx, v.path)
	if err != nil {
		return Usage{}, err
	}

	id := fmt.Sprintf("0/%d", v.id)
	for _, group := range groups {
		if group.id != id {
			continue
		}

		if group.hasMaxRfer {
			return Usage{Size: group.maxRfer, Used: group.maxRfer}, nil
		}

		// no limit set, fall back to the actual on-disk size
		used, err := DirSize(v.path)
		if err != nil {
			return Usage{}, fmt.Errorf("failed to calculate size of '%s': %w", v.path, err)
		}
		return Usage{Size: 0, Used: used}, nil
	}

	return Usage{}, fmt.Errorf("%w: volume '%s'", ErrQGroupNotFound, v.path)
}

// btrfsUpPool is a mounted btrfs pool.
type btrfsUpPool struct {
	utils  *btrfsUtils
	sys    system.Syscalls
	device device.Device
	path   string
}

var _ UpPool = (*btrfsUpPool)(nil)

func (p *btrfsUpPool) Path() string {
	return p.path
}

func (p *btrfsUpPool) Name() string {
	// device label is validated before the pool is constructed
	return p.device.Label
}

func (p *btrfsUpPool) Size() uint64 {
	return p.device.Size
}

func (p *btrfsUpPool) Usage(ctx context.Context) (Usage, error) {
	// TODO: list volumes and qgroups once each and join them here, instead
	// of one qgroup listing per volume.
	volumes, err := p.Volumes(ctx)
	if err != nil {
		return Usage{}, err
	}

	var used uint64
	for _, volume := range volumes {
		usage, err := volume.Usage(ctx)
		if err != nil {
			return Usage{}, err
		}
		used += usage.Used
	}

	return Usage{Size: p.device.Size, Used: used}, nil
}

func (p *btrfsUpPool) Volumes(ctx context.Context) ([]Volume, error) {
	infos, err := p.utils.volumeList(ctx, p.path)
	if err != nil {
		return nil, err
	}

	volumes := make([]Volume, 0, len(infos))
	for _, info := range infos {
		volumes = append(volumes, &btrfsVolume{
			utils: p.utils,
			id:    info.id,
			path:  filepath.Join(p.path, info.name),
		})
	}

	return volumes, nil
}

func (p *btrfsUpPool) Volume(ctx context.Context, name string) (Volume, error) {
	infos, err := p.utils.volumeList(ctx, p.path)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if info.name != name {
			continue
		}
		return &btrfsVolume{
			utils: p.utils,
			id:    info.id,
			path:  filepath.Join(p.path, info.name),
		}, nil
	}

	return nil, fmt.Errorf("%w: '%s'", ErrVolumeNotFound, name)
}

func (p *btrfsUpPool) VolumeCreate(ctx context.Context, name string) (Volume, error) {
	path, err := p.utils.volumeCreate(ctx, p.path, name)
	if err != nil {
		return nil, err
	}

	id, err := p.utils.volumeID(ctx, p.path, name)
	if err != nil {
		return nil, err
	}

	logger := log.WithPool(p.Name())
	logger.Debug().Str("volume", name).Msg("volume created")
	return &btrfsVolume{utils: p.utils, id: id, path: path}, nil
}

func (p *btrfsUpPool) VolumeDelete(ctx context.Context, name string) error {
	volume, err := p.Volume(ctx, name)
	if err != nil {
		return err
	}

	if err := p.utils.volumeDelete(ctx, p.path, name); err != nil {
		return err
	}

	logger := log.WithPool(p.Name())
	logger.Debug().Str("volume", name).Msg("volume deleted")
	return p.utils.qgroupDestroy(ctx, p.path, volume.ID())
}

func (p *btrfsUpPool) Down(ctx context.Context) (DownPool, error) {
	if err := p.sys.Unmount(p.path, 0); err != nil {
		return nil, err
	}

	logger := log.WithPool(p.Name())
	logger.Debug().Msg("pool unmounted")
	return &btrfsDownPool{utils: p.utils, sys: p.sys, device: p.device}, nil
}

// btrfsDownPool is an unmounted btrfs pool.
type btrfsDownPool struct {
	utils  *btrfsUtils
	sys    system.Syscalls
	device device.Device
}

var _ DownPool = (*btrfsDownPool)(nil)

func (p *btrfsDownPool) Name() string {
	return p.device.Label
}

func (p *btrfsDownPool) Size() uint64 {
	return p.device.Size
}

func (p *btrfsDownPool) Up(ctx context.Context) (UpPool, error) {
	path := filepath.Join(Mnt, p.device.Label)

	if err := p.sys.Mount(p.device.Path, path, string(device.Btrfs), 0, ""); err != nil {
		return nil, err
	}

	// quota tracking is required for volume limits and usage accounting
	if err := p.utils.quotaEnable(ctx, path); err != nil {
		return nil, err
	}

	logger := log.WithPool(p.device.Label)
	logger.Debug().Str("path", path).Msg("pool mounted")
	return &btrfsUpPool{utils: p.utils, sys: p.sys, device: p.device, path: path}, nil
}
