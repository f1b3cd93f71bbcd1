package pool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nodeos/storaged/pkg/mountinfo"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/system"
)

const gigabyte = 1024 * 1024 * 1024

const volumeShowOutput = `b623b3b159fa02652bb21c695a157b4d
        Name:                   b623b3b159fa02652bb21c695a157b4d
        UUID:                   abf4240e-6402-9947-963e-63db1a7f5582
        Parent UUID:            -
        Received UUID:          -
        Creation time:          2022-02-03 12:58:32 +0000
        Subvolume ID:           1740
        Generation:             33008608
        Gen at creation:        199304
        Parent ID:              5
        Top level ID:           5
        Flags:                  -
        Snapshot(s):
`

const qgroupShowOutput = `qgroupid         rfer         excl     max_rfer     max_excl
--------         ----         ----     --------     --------
0/256      1732771840   1732771840 107374182400         none
0/262     60463501312  60463501312         none         none
0/1596          16384        16384     10485760         none
0/1737          16384        16384     10485760         none
0/1740          16384        16384     10485760         none
0/4301      524271616    524271616    524288000         none
0/4303      524271616    524271616    524288000         none
0/4849      106655744    106655744   2147483648         none
0/7437        6471680      6471680  10737418240         none
0/7438     1525182464   1525182464   2147483648         none
`

const volumeListOutput = `ID 256 gen 33152047 top level 5 path zos-cache
ID 262 gen 33152049 top level 5 path vdisks
ID 1596 gen 117776 top level 5 path bfb95cf4f1b6245f56a7fb7a86bd1e0d
ID 1737 gen 156823 top level 5 path 794e0004fd49a7300d612dcbba10279f
ID 1740 gen 33008608 top level 5 path b623b3b159fa02652bb21c695a157b4d
ID 4301 gen 5392957 top level 5 path rootfs:433-3764-mr
ID 4303 gen 32919873 top level 5 path rootfs:433-3764-w1
ID 4849 gen 33152049 top level 5 path rootfs:288-5475-owncloud_samehabouelsaad
ID 7437 gen 33152049 top level 5 path 647-10988-qsfs
ID 7438 gen 33152049 top level 5 path rootfs:647-10988-vm
`

// textTable serves a literal mount table.
type textTable string

func (t textTable) Mounts() ([]mountinfo.Mount, error) {
	return mountinfo.ParseReader(strings.NewReader(string(t)))
}

func TestDirSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top"), make([]byte, 100), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "mid"), make([]byte, 200), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "leaf"), make([]byte, 300), 0644))

	size, err := DirSize(root)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), size)
}

func TestParseVolumeID(t *testing.T) {
	id, err := parseVolumeID([]byte(volumeShowOutput))
	require.NoError(t, err)
	assert.Equal(t, uint64(1740), id)

	_, err = parseVolumeID([]byte("no id in here"))
	assert.Error(t, err)
}

func TestParseQGroups(t *testing.T) {
	groups, err := parseQGroups([]byte(qgroupShowOutput))
	require.NoError(t, err)
	require.Len(t, groups, 10)

	assert.Equal(t, "0/256", groups[0].id)
	assert.Equal(t, uint64(1732771840), groups[0].rfer)
	assert.Equal(t, uint64(1732771840), groups[0].excl)
	assert.True(t, groups[0].hasMaxRfer)
	assert.Equal(t, uint64(107374182400), groups[0].maxRfer)
	assert.False(t, groups[0].hasMaxExcl)

	assert.Equal(t, "0/262", groups[1].id)
	assert.Equal(t, uint64(60463501312), groups[1].rfer)
	assert.False(t, groups[1].hasMaxRfer)
	assert.False(t, groups[1].hasMaxExcl)
}

func TestParseVolumes(t *testing.T) {
	volumes, err := parseVolumes([]byte(volumeListOutput))
	require.NoError(t, err)
	require.Len(t, volumes, 10)

	assert.Equal(t, uint64(256), volumes[0].id)
	assert.Equal(t, "zos-cache", volumes[0].name)
	assert.Equal(t, uint64(262), volumes[1].id)
	assert.Equal(t, "vdisks", volumes[1].name)
}

func TestUtilsCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("volume create", func(t *testing.T) {
		exec := &system.MockExecutor{}
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "subvolume", "create", "/mnt/pool/test")).
			Return([]byte{}, nil)

		path, err := newBtrfsUtils(exec).volumeCreate(ctx, "/mnt/pool", "test")
		require.NoError(t, err)
		assert.Equal(t, "/mnt/pool/test", path)
		exec.AssertExpectations(t)
	})

	t.Run("volume delete", func(t *testing.T) {
		exec := &system.MockExecutor{}
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "subvolume", "delete", "/mnt/pool/test")).
			Return([]byte{}, nil)

		require.NoError(t, newBtrfsUtils(exec).volumeDelete(ctx, "/mnt/pool", "test"))
		exec.AssertExpectations(t)
	})

	t.Run("quota enable", func(t *testing.T) {
		exec := &system.MockExecutor{}
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "quota", "enable", "/mnt/pool")).
			Return([]byte{}, nil)

		require.NoError(t, newBtrfsUtils(exec).quotaEnable(ctx, "/mnt/pool"))
		exec.AssertExpectations(t)
	})

	t.Run("qgroup limit", func(t *testing.T) {
		exec := &system.MockExecutor{}
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "qgroup", "limit", "1024", "/mnt/pool/test")).
			Return([]byte{}, nil)
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "qgroup", "limit", "none", "/mnt/pool/test")).
			Return([]byte{}, nil)

		utils := newBtrfsUtils(exec)
		require.NoError(t, utils.qgroupLimit(ctx, "/mnt/pool/test", 1024))
		require.NoError(t, utils.qgroupLimit(ctx, "/mnt/pool/test", 0))
		exec.AssertExpectations(t)
	})

	t.Run("qgroup destroy", func(t *testing.T) {
		exec := &system.MockExecutor{}
		exec.On("Run", mock.Anything, system.NewCommand("btrfs", "qgroup", "destroy", "0/250", "/mnt/pool")).
			Return([]byte{}, nil)

		require.NoError(t, newBtrfsUtils(exec).qgroupDestroy(ctx, "/mnt/pool", 250))
		exec.AssertExpectations(t)
	})
}

func TestPoolUpDown(t *testing.T) {
	ctx := context.Background()

	dev := device.Device{
		Path:       "/dev/mock",
		Size:       100 * gigabyte,
		Filesystem: "btrfs",
		Label:      "test-device",
	}

	exec := &system.MockExecutor{}
	exec.On("Run", mock.Anything, system.NewCommand("btrfs", "quota", "enable", "/mnt/test-device")).
		Return([]byte{}, nil)
	exec.On("Run", mock.Anything, system.NewCommand("btrfs", "subvolume", "list", "-o", "/mnt/test-device")).
		Return([]byte("ID 256 gen 33152047 top level 5 path zos-cache"), nil)
	exec.On("Run", mock.Anything, system.NewCommand("btrfs", "qgroup", "show", "-re", "--raw", "/mnt/test-device/zos-cache")).
		Return([]byte(qgroupShowOutput[:strings.Index(qgroupShowOutput, "0/262")]), nil)

	sys := &system.MockSyscalls{}
	manager := NewBtrfsManager(exec, sys, textTable(""))

	pool, err := manager.Get(ctx, nil, dev)
	require.NoError(t, err)
	// the mock device is not in the mount table, pool must start down
	require.Equal(t, StateDown, pool.State())
	assert.Equal(t, "test-device", pool.Name())
	assert.Equal(t, uint64(100*gigabyte), pool.Size())
	assert.Nil(t, pool.AsUp())

	up, err := pool.IntoUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUp, pool.State())
	assert.Equal(t, "test-device", up.Name())
	assert.Equal(t, "/mnt/test-device", up.Path())

	require.Len(t, sys.Mounts, 1)
	assert.Equal(t, system.MountCall{
		Source: "/dev/mock",
		Target: "/mnt/test-device",
		Fstype: "btrfs",
	}, sys.Mounts[0])

	volumes, err := up.Volumes(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)

	cache := volumes[0]
	assert.Equal(t, uint64(256), cache.ID())
	assert.Equal(t, "/mnt/test-device/zos-cache", cache.Path())
	assert.Equal(t, "zos-cache", cache.Name())

	usage, err := cache.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100*gigabyte), usage.Size)
	assert.Equal(t, uint64(100*gigabyte), usage.Used)

	_, err = pool.IntoDown(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDown, pool.State())
	assert.Equal(t, []string{"/mnt/test-device"}, sys.Unmounts)
}

func TestPoolFailedTransitionKeepsState(t *testing.T) {
	ctx := context.Background()

	dev := device.Device{
		Path:       "/dev/mock",
		Size:       gigabyte,
		Filesystem: "btrfs",
		Label:      "broken",
	}

	sys := &system.MockSyscalls{MountErr: errors.New("mount failed")}
	pool := NewDown(&btrfsDownPool{utils: newBtrfsUtils(&system.MockExecutor{}), sys: sys, device: dev})

	_, err := pool.IntoUp(ctx)
	require.Error(t, err)
	assert.Equal(t, StateDown, pool.State())
	assert.Equal(t, "broken", pool.Name())
	assert.Equal(t, uint64(gigabyte), pool.Size())
}

func TestManagerGetRejects(t *testing.T) {
	ctx := context.Background()
	manager := NewBtrfsManager(&system.MockExecutor{}, &system.MockSyscalls{}, textTable(""))

	_, err := manager.Get(ctx, nil, device.Device{Path: "/dev/sda", Filesystem: "ext4", Label: "data"})
	assert.ErrorIs(t, err, ErrInvalidFilesystem)

	_, err = manager.Get(ctx, nil, device.Device{Path: "/dev/sdb", Filesystem: "btrfs"})
	assert.ErrorIs(t, err, ErrInvalidLabel)
}

func TestManagerGetMounted(t *testing.T) {
	ctx := context.Background()

	table := textTable(`/dev/sdc /mnt/f81c9ac6 btrfs rw,relatime,space_cache,subvolid=5,subvol=/ 0 0
/dev/sdc /var/lib/other btrfs rw,relatime,subvolid=256,subvol=/cache 0 0
`)

	manager := NewBtrfsManager(&system.MockExecutor{}, &system.MockSyscalls{}, table)
	pool, err := manager.Get(ctx, nil, device.Device{
		Path:       "/dev/sdc",
		Size:       gigabyte,
		Filesystem: "btrfs",
		Label:      "f81c9ac6",
	})
	require.NoError(t, err)

	require.Equal(t, StateUp, pool.State())
	assert.Equal(t, "/mnt/f81c9ac6", pool.AsUp().Path())
}

type formatOnly struct {
	device.Manager
	formatted device.Device
}

func (f *formatOnly) Format(ctx context.Context, dev device.Device, fs device.Filesystem, force bool) (device.Device, error) {
	return f.formatted, nil
}

func TestManagerGetFormatsBare(t *testing.T) {
	ctx := context.Background()

	devices := &formatOnly{formatted: device.Device{
		Path:       "/dev/sdd",
		Size:       gigabyte,
		Filesystem: "btrfs",
		Label:      "fresh-label",
	}}

	manager := NewBtrfsManager(&system.MockExecutor{}, &system.MockSyscalls{}, textTable(""))
	pool, err := manager.Get(ctx, devices, device.Device{Path: "/dev/sdd", Size: gigabyte})
	require.NoError(t, err)

	assert.Equal(t, StateDown, pool.State())
	assert.Equal(t, "fresh-label", pool.Name())
}
