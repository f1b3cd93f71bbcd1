package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nodeos/storaged/pkg/system"
)

// usb attached disks must not be used for pool storage
const usbSubsystem = "usb"

// lsblk columns used by the catalog
const lsblkColumns = "PATH,NAME,SIZE,SUBSYSTEMS,FSTYPE,LABEL,ROTA"

// major numbers excluded from enumeration: ram, floppy, scsi cdrom
const lsblkExclude = "1,2,11"

// LsBlk is the Manager implementation backed by the lsblk, seektime,
// mkfs.btrfs and hdparm tools.
type LsBlk struct {
	exec system.Executor
}

// NewLsBlk creates a device catalog running commands through exec.
func NewLsBlk(exec system.Executor) *LsBlk {
	return &LsBlk{exec: exec}
}

type blockDevices struct {
	Devices []Device `json:"blockdevices"`
}

func (l *LsBlk) list(ctx context.Context, path string) ([]Device, error) {
	cmd := system.NewCommand(
		"lsblk",
		"--json",
		"-o", lsblkColumns,
		"--bytes",
		"--exclude", lsblkExclude,
	)
	if path != "" {
		cmd.Arg(path)
	}

	output, err := l.exec.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to list block devices: %w", err)
	}

	var parsed blockDevices
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode lsblk output: %w", err)
	}

	return parsed.Devices, nil
}

// Devices lists all block devices, excluding usb attached ones.
func (l *LsBlk) Devices(ctx context.Context) ([]Device, error) {
	devices, err := l.list(ctx, "")
	if err != nil {
		return nil, err
	}

	filtered := devices[:0]
	for _, dev := range devices {
		if strings.Contains(dev.Subsystems, usbSubsystem) {
			continue
		}
		filtered = append(filtered, dev)
	}

	return filtered, nil
}

// Device returns the single device at path.
func (l *LsBlk) Device(ctx context.Context, path string) (Device, error) {
	devices, err := l.list(ctx, path)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, ErrNotFound
	}

	return devices[len(devices)-1], nil
}

// Labeled returns the device with the given label.
func (l *LsBlk) Labeled(ctx context.Context, label string) (Device, error) {
	devices, err := l.Devices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, dev := range devices {
		if dev.Label == label {
			return dev, nil
		}
	}

	return Device{}, ErrNotFound
}

// Shutdown puts the device in standby.
func (l *LsBlk) Shutdown(ctx context.Context, device *Device) error {
	cmd := system.NewCommand("hdparm", "-y", device.Path)
	if _, err := l.exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to shutdown device '%s': %w", device.Path, err)
	}
	return nil
}

type seektimeResult struct {
	Type    string `json:"type"`
	Elapsed uint64 `json:"elapsed"`
}

// Seektime runs the physical seek probe. Slow, seconds per device.
func (l *LsBlk) Seektime(ctx context.Context, device *Device) (Type, error) {
	cmd := system.NewCommand("seektime", "-j", device.Path)
	output, err := l.exec.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to probe device '%s': %w", device.Path, err)
	}

	var result seektimeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return "", fmt.Errorf("failed to decode seektime output: %w", err)
	}

	return ParseType(result.Type)
}

// Format creates the filesystem on the device under a fresh uuid label and
// returns the re-queried device. A device that already has a filesystem is
// refused unless force is set.
func (l *LsBlk) Format(ctx context.Context, device Device, fs Filesystem, force bool) (Device, error) {
	if device.Filesystem != "" && !force {
		return Device{}, fmt.Errorf("device '%s' already has filesystem '%s'", device.Path, device.Filesystem)
	}

	if fs != Btrfs {
		return Device{}, fmt.Errorf("unsupported filesystem '%s'", fs)
	}

	label := uuid.New().String()
	cmd := system.NewCommand("mkfs.btrfs", "-L", label)
	if force {
		cmd.Arg("-f")
	}
	cmd.Arg(device.Path)

	if _, err := l.exec.Run(ctx, cmd); err != nil {
		return Device{}, fmt.Errorf("failed to format device '%s': %w", device.Path, err)
	}

	return l.Device(ctx, device.Path)
}
