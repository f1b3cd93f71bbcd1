package device

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Type is the physical class of a block device.
type Type string

const (
	SSD Type = "ssd"
	HDD Type = "hdd"
)

// ParseType parses a device type string, case insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "ssd":
		return SSD, nil
	case "hdd":
		return HDD, nil
	default:
		return "", fmt.Errorf("invalid device type '%s'", s)
	}
}

func (t Type) String() string {
	return string(t)
}

// Filesystem is a filesystem a device can be formatted with.
type Filesystem string

const (
	Btrfs Filesystem = "btrfs"
)

// Device is one block device snapshot as reported by the catalog.
// Filesystem and Label are empty when the device carries none.
type Device struct {
	Path       string `json:"path"`
	Size       uint64 `json:"size"`
	Subsystems string `json:"subsystems"`
	Filesystem string `json:"fstype"`
	Label      string `json:"label"`
	Rota       bool   `json:"rota"`
}

// Name returns the base name of the device path (sda for /dev/sda).
func (d *Device) Name() string {
	return filepath.Base(d.Path)
}

// Manager is the device catalog contract.
type Manager interface {
	// Devices lists all pool-eligible block devices.
	Devices(ctx context.Context) ([]Device, error)

	// Device returns the device at path.
	Device(ctx context.Context, path string) (Device, error)

	// Labeled returns the device carrying the given filesystem label.
	Labeled(ctx context.Context, label string) (Device, error)

	// Shutdown spins the device down.
	Shutdown(ctx context.Context, device *Device) error

	// Seektime probes the device seek characteristics to classify it
	// as SSD or HDD. The probe takes seconds; callers must cache the
	// result.
	Seektime(ctx context.Context, device *Device) (Type, error)

	// Format creates the given filesystem on the device and returns the
	// re-queried device. Destructive; refused when the device already
	// has a filesystem unless force is set.
	Format(ctx context.Context, device Device, fs Filesystem, force bool) (Device, error)
}

// ErrNotFound is returned by lookups when no device matches.
var ErrNotFound = fmt.Errorf("device not found")
