package flist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/mountinfo"
	"github.com/nodeos/storaged/pkg/system"
)

// mountWait bounds how long a g8ufs daemon gets to show up in the mount
// table after launch.
const (
	mountWaitTries    = 3
	mountWaitInterval = time.Second
)

// MountManager owns the flist directory layout and the individual mount
// primitives. The Engine composes them into the public operations.
type MountManager struct {
	root string

	flist      string
	cache      string
	mountpoint string
	ro         string
	logdir     string

	sys        system.Syscalls
	exec       system.Executor
	storage    VolumeAllocator
	table      mountinfo.Table
	downloader *Downloader

	// wait knob, shortened by tests
	waitInterval time.Duration

	logger zerolog.Logger
}

// NewMountManager prepares the directory layout under root.
func NewMountManager(root string, sys system.Syscalls, storage VolumeAllocator, exec system.Executor, table mountinfo.Table) (*MountManager, error) {
	m := &MountManager{
		root:         root,
		flist:        filepath.Join(root, "flist"),
		cache:        filepath.Join(root, "cache"),
		mountpoint:   filepath.Join(root, "mountpoint"),
		ro:           filepath.Join(root, "ro"),
		logdir:       filepath.Join(root, "log"),
		sys:          sys,
		exec:         exec,
		storage:      storage,
		table:        table,
		waitInterval: mountWaitInterval,
		logger:       log.WithComponent("flist"),
	}
	m.downloader = NewDownloader(m.flist)

	for _, dir := range []string{m.flist, m.cache, m.mountpoint, m.ro, m.logdir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
	}

	return m, nil
}

// MountPath returns the mountpoint of a named mount. Only direct children
// of the mountpoint directory are valid names.
func (m *MountManager) MountPath(name string) (string, error) {
	path := filepath.Join(m.mountpoint, name)
	if filepath.Dir(path) != m.mountpoint || path == m.mountpoint {
		return "", fmt.Errorf("invalid mount name: '%s'", name)
	}
	return path, nil
}

// roMountPath returns the shared read-only mountpoint of an flist hash.
func (m *MountManager) roMountPath(hash string) (string, error) {
	path := filepath.Join(m.ro, hash)
	if filepath.Dir(path) != m.ro || path == m.ro {
		return "", fmt.Errorf("invalid flist hash: '%s'", hash)
	}
	return path, nil
}

// isMounted consults the mount table, never in-memory state.
func (m *MountManager) isMounted(path string) bool {
	mnt, err := mountinfo.Mountpoint(m.table, path)
	return err == nil && mnt != nil
}

// valid reports whether path can be used as a new mountpoint: it does not
// exist yet, or is a plain directory with nothing mounted on it. A stale
// fuse mount whose daemon died (ENOTCONN on stat) is force-unmounted.
func (m *MountManager) valid(path string) bool {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return info.IsDir() && !m.isMounted(path)
	case errors.Is(err, fs.ErrNotExist):
		return true
	case errors.Is(err, syscall.ENOTCONN):
		return m.sys.Unmount(path, 0) == nil
	default:
		return false
	}
}

func (m *MountManager) waitMountpoint(ctx context.Context, path string, tries int) error {
	for ; tries > 0; tries-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.waitInterval):
		}
		if m.isMounted(path) {
			return nil
		}
	}

	return fmt.Errorf("'%s' was not mounted in time", path)
}

// mountRO ensures the shared read-only mount of the flist at url and
// returns its path. The mount is keyed by content hash so concurrent named
// mounts of the same flist share one g8ufs daemon.
func (m *MountManager) mountRO(ctx context.Context, url, storageURL string) (string, error) {
	flistPath, err := m.downloader.Get(ctx, url)
	if err != nil {
		return "", err
	}
	hash := filepath.Base(flistPath)

	target, err := m.roMountPath(hash)
	if err != nil {
		return "", err
	}

	if m.isMounted(target) {
		return target, nil
	}
	if !m.valid(target) {
		return "", fmt.Errorf("invalid mountpoint '%s'", target)
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}

	logPath := filepath.Join(m.logdir, hash+".log")
	cmd := system.NewCommand("g8ufs",
		"--cache", m.cache,
		"--meta", flistPath,
		"--storage-url", storageURL,
		"--daemon",
		"--log", logPath,
		"--ro", target,
	)

	if _, err := m.exec.Run(ctx, cmd); err != nil {
		return "", err
	}
	system.Sync()

	if err := m.waitMountpoint(ctx, target, mountWaitTries); err != nil {
		return "", err
	}

	m.logger.Debug().Str("hash", hash).Str("target", target).Msg("read-only flist mounted")
	return target, nil
}

// mountBind binds the shared read-only mount on a named mountpoint.
func (m *MountManager) mountBind(ctx context.Context, ro, mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return err
	}

	if err := m.sys.Mount(ro, mountpoint, "bind", system.MsBind, ""); err != nil {
		if uerr := m.sys.Unmount(mountpoint, 0); uerr != nil {
			m.logger.Debug().Err(uerr).Str("target", mountpoint).Msg("failed to unmount after failed bind")
		}
		return err
	}

	return nil
}

// mountOverlay composes a writable named mount: the read-only base as
// lowerdir, rw/ and wd/ inside the write layer as upperdir and workdir.
func (m *MountManager) mountOverlay(ctx context.Context, ro, rw, mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		return err
	}

	upper := filepath.Join(rw, "rw")
	work := filepath.Join(rw, "wd")
	for _, dir := range []string{upper, work} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", ro, upper, work)
	return m.sys.Mount("overlay", mountpoint, "overlay", system.MsNoatime, data)
}

// volumePath returns the write-layer volume of a named mount, creating it
// with the given quota when it does not exist yet.
func (m *MountManager) volumePath(ctx context.Context, name string, size uint64) (string, error) {
	volume, err := m.storage.VolumeLookup(ctx, name)
	if err == nil {
		return volume.Path, nil
	}

	if size == 0 {
		return "", fmt.Errorf("invalid mount option, missing write layer size")
	}

	volume, err = m.storage.VolumeCreate(ctx, name, size)
	if err != nil {
		if derr := m.storage.VolumeDelete(ctx, name); derr != nil {
			m.logger.Debug().Err(derr).Str("volume", name).Msg("failed to clean up after failed volume create")
		}
		return "", err
	}

	return volume.Path, nil
}

// cleanUnusedMounts unmounts read-only bases no named mount depends on.
// Mark: every g8ufs mount under ro/, keyed by daemon pid. Sweep: drop the
// pids referenced by mounts under mountpoint/, directly or through overlay
// lowerdir; whatever remains is unused.
func (m *MountManager) cleanUnusedMounts(ctx context.Context) error {
	all, err := m.table.Mounts()
	if err != nil {
		return err
	}

	unused := make(map[int64]mountinfo.Mount)
	for _, mnt := range all {
		if filepath.Dir(mnt.Target) != m.ro || mnt.Filesystem != fsG8ufs {
			continue
		}

		pid, err := g8ufsPid(mnt)
		if err != nil {
			return err
		}
		unused[pid] = mnt
	}

	for _, mnt := range all {
		if filepath.Dir(mnt.Target) != m.mountpoint {
			continue
		}

		var pid int64
		switch mnt.Filesystem {
		case fsG8ufs:
			if pid, err = g8ufsPid(mnt); err != nil {
				return err
			}
		case fsOverlay:
			overlay, err := parseOverlay(mnt)
			if err != nil {
				return err
			}
			base := lookupTarget(all, overlay.lowerDir)
			if base == nil {
				continue
			}
			if pid, err = g8ufsPid(*base); err != nil {
				return err
			}
		default:
			continue
		}

		delete(unused, pid)
	}

	for _, mnt := range unused {
		m.logger.Debug().Str("target", mnt.Target).Msg("cleaning up unused flist mount")
		if err := m.sys.Unmount(mnt.Target, 0); err != nil {
			m.logger.Debug().Err(err).Str("target", mnt.Target).Msg("failed to unmount")
			continue
		}
		if err := os.RemoveAll(mnt.Target); err != nil {
			m.logger.Debug().Err(err).Str("target", mnt.Target).Msg("failed to remove mount directory")
		}
	}

	return nil
}

func lookupTarget(mounts []mountinfo.Mount, target string) *mountinfo.Mount {
	for i := range mounts {
		if mounts[i].Target == target {
			return &mounts[i]
		}
	}
	return nil
}
