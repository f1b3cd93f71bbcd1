package flist

import (
	"fmt"
	"strconv"

	"github.com/nodeos/storaged/pkg/mountinfo"
)

// Filesystem types the engine recognizes in the mount table.
const (
	fsG8ufs   = "fuse.g8ufs"
	fsOverlay = "overlay"
)

// g8ufsPid extracts the daemon pid from a g8ufs mount; g8ufs reports its
// own pid as the mount source.
func g8ufsPid(mnt mountinfo.Mount) (int64, error) {
	pid, err := strconv.ParseInt(mnt.Source, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid g8ufs mount source '%s': %w", mnt.Source, err)
	}
	return pid, nil
}

type overlayInfo struct {
	lowerDir string
	upperDir string
	workDir  string
}

func parseOverlay(mnt mountinfo.Mount) (overlayInfo, error) {
	var info overlayInfo
	if v, has, ok := mnt.Option("lowerdir"); ok && has {
		info.lowerDir = v
	}
	if v, has, ok := mnt.Option("upperdir"); ok && has {
		info.upperDir = v
	}
	if v, has, ok := mnt.Option("workdir"); ok && has {
		info.workDir = v
	}

	if info.lowerDir == "" || info.upperDir == "" || info.workDir == "" {
		return overlayInfo{}, fmt.Errorf("bad overlay options '%s'", mnt.Options)
	}

	return info, nil
}

// resolvePid walks a mountpoint down to the pid of the g8ufs daemon backing
// it, following overlay lowerdir indirection.
func resolvePid(table mountinfo.Table, path string) (int64, error) {
	for {
		mnt, err := mountinfo.Mountpoint(table, path)
		if err != nil {
			return 0, err
		}
		if mnt == nil {
			return 0, fmt.Errorf("no mount found on '%s'", path)
		}

		switch mnt.Filesystem {
		case fsG8ufs:
			return g8ufsPid(*mnt)
		case fsOverlay:
			overlay, err := parseOverlay(*mnt)
			if err != nil {
				return 0, err
			}
			path = overlay.lowerDir
		default:
			return 0, fmt.Errorf("invalid mount filesystem type '%s' on '%s'", mnt.Filesystem, path)
		}
	}
}
