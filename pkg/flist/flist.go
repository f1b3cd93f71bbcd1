package flist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MountMode selects how a named mount exposes the flist content.
type MountMode int

const (
	// ReadOnly binds the shared base directly, no write layer.
	ReadOnly MountMode = iota
	// ReadWrite composes an overlay with a writable upper layer.
	ReadWrite
)

func (m MountMode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	default:
		return "unknown"
	}
}

// MountOptions control a single Mount call.
type MountOptions struct {
	// Mode of the mount, ReadOnly by default.
	Mode MountMode

	// Storage overrides the content-store URL passed to g8ufs. Empty means
	// the engine default.
	Storage string

	// Limit is the quota of the write layer volume in bytes. Required for
	// ReadWrite mounts unless PersistedPath is set or the volume already
	// exists.
	Limit uint64

	// PersistedPath uses a caller-owned directory as the write layer
	// instead of allocating a volume.
	PersistedPath string
}

// Engine is the public flist mount API.
type Engine struct {
	*MountManager

	storageURL string

	// proc overrides /proc in tests
	proc string
}

// NewEngine creates an engine using storageURL as the default content
// store.
func NewEngine(mgr *MountManager, storageURL string) *Engine {
	return &Engine{
		MountManager: mgr,
		storageURL:   storageURL,
		proc:         "/proc",
	}
}

// Mount mounts the flist at url under the given name and returns the
// mountpoint. Mounting an already mounted name is a no-op.
func (e *Engine) Mount(ctx context.Context, name, url string, opts MountOptions) (string, error) {
	mountpoint, err := e.MountPath(name)
	if err != nil {
		return "", err
	}

	if e.isMounted(mountpoint) {
		return mountpoint, nil
	}
	if !e.valid(mountpoint) {
		return "", fmt.Errorf("invalid mountpoint '%s'", mountpoint)
	}

	defer func() {
		if err := e.cleanUnusedMounts(ctx); err != nil {
			e.logger.Error().Err(err).Msg("failed to clean unused flist mounts")
		}
	}()

	storageURL := opts.Storage
	if storageURL == "" {
		storageURL = e.storageURL
	}

	ro, err := e.mountRO(ctx, url, storageURL)
	if err != nil {
		return "", err
	}

	switch opts.Mode {
	case ReadOnly:
		err = e.mountBind(ctx, ro, mountpoint)
	case ReadWrite:
		rw := opts.PersistedPath
		if rw == "" {
			if rw, err = e.volumePath(ctx, name, opts.Limit); err != nil {
				return "", err
			}
		}
		err = e.mountOverlay(ctx, ro, rw, mountpoint)
	default:
		err = fmt.Errorf("invalid mount mode '%d'", opts.Mode)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info().Str("name", name).Str("url", url).Stringer("mode", opts.Mode).Msg("flist mounted")
	return mountpoint, nil
}

// Unmount removes a named mount, its directory and its backing volume.
// Unmounting a name that is not mounted is a no-op.
func (e *Engine) Unmount(ctx context.Context, name string) error {
	mountpoint, err := e.MountPath(name)
	if err != nil {
		return err
	}

	if e.isMounted(mountpoint) {
		if err := e.sys.Unmount(mountpoint, 0); err != nil {
			return fmt.Errorf("failed to unmount '%s': %w", mountpoint, err)
		}
	}

	if err := os.RemoveAll(mountpoint); err != nil {
		e.logger.Debug().Err(err).Str("target", mountpoint).Msg("failed to remove mount directory")
	}

	if err := e.storage.VolumeDelete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete write layer of '%s': %w", name, err)
	}

	return e.cleanUnusedMounts(ctx)
}

// Update resizes the quota of the write layer of a mounted name.
func (e *Engine) Update(ctx context.Context, name string, size uint64) error {
	mountpoint, err := e.MountPath(name)
	if err != nil {
		return err
	}

	if !e.isMounted(mountpoint) {
		return fmt.Errorf("'%s' is not mounted", name)
	}

	return e.storage.VolumeUpdate(ctx, name, size)
}

// Exists reports whether a named mount is currently mounted.
func (e *Engine) Exists(name string) (bool, error) {
	mountpoint, err := e.MountPath(name)
	if err != nil {
		return false, err
	}
	return e.isMounted(mountpoint), nil
}

// List returns the names of all current named mounts, sorted.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	all, err := e.table.Mounts()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, mnt := range all {
		if filepath.Dir(mnt.Target) == e.mountpoint {
			names = append(names, filepath.Base(mnt.Target))
		}
	}
	sort.Strings(names)

	return names, nil
}

// HashOfMount returns the hash of the flist backing a named mount. The
// backing g8ufs daemon holds the flist path in its command line; the hash
// is its basename.
func (e *Engine) HashOfMount(ctx context.Context, name string) (string, error) {
	mountpoint, err := e.MountPath(name)
	if err != nil {
		return "", err
	}

	pid, err := resolvePid(e.table, mountpoint)
	if err != nil {
		return "", err
	}

	cmdline, err := os.ReadFile(filepath.Join(e.proc, fmt.Sprint(pid), "cmdline"))
	if err != nil {
		return "", fmt.Errorf("failed to read command line of pid %d: %w", pid, err)
	}

	prefix := e.flist + string(filepath.Separator)
	for _, arg := range bytes.Split(cmdline, []byte{0}) {
		if strings.HasPrefix(string(arg), prefix) {
			return filepath.Base(string(arg)), nil
		}
	}

	return "", fmt.Errorf("no flist found for mount '%s'", name)
}
