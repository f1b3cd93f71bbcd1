package pool

import (
	"context"
	"errors"

	"github.com/nodeos/storaged/pkg/storage/device"
)

// Pool layer errors. Callers branch on these with errors.Is; they are
// wrapped with device/volume context at the point of failure.
var (
	ErrVolumeNotFound    = errors.New("volume not found")
	ErrInvalidDevice     = errors.New("invalid device")
	ErrInvalidLabel      = errors.New("device has no label")
	ErrInvalidFilesystem = errors.New("invalid filesystem on device")
	ErrQGroupNotFound    = errors.New("volume does not have an associated qgroup")
)

// Usage describes capacity versus consumption of a pool or volume.
type Usage struct {
	Size uint64 `json:"size"`
	Used uint64 `json:"used"`
}

// EnoughFor reports whether the requested size fits. The comparison is
// deliberately strict (used + size < total), leaving headroom.
func (u Usage) EnoughFor(size uint64) bool {
	return u.Used+size < u.Size
}

// Volume is a named, quota-limited subtree inside an Up pool.
type Volume interface {
	// ID is the pool-scoped numeric id of the volume (the qgroup id).
	ID() uint64

	// Path is the full path to the volume.
	Path() string

	// Name is the volume directory name.
	Name() string

	// Limit sets the volume byte ceiling. A zero size removes the limit.
	Limit(ctx context.Context, size uint64) error

	// Usage returns the space reserved by the volume: the limit when one
	// is set, otherwise the actual on-disk size.
	Usage(ctx context.Context) (Usage, error)
}

// UpPool is a mounted pool.
type UpPool interface {
	// Path is the pool mountpoint.
	Path() string

	// Name of the pool (the device label).
	Name() string

	// Size is the device capacity in bytes.
	Size() uint64

	// Usage aggregates the usage of all volumes against the capacity.
	Usage(ctx context.Context) (Usage, error)

	// Volumes lists the pool volumes.
	Volumes(ctx context.Context) ([]Volume, error)

	// Volume looks a volume up by name, ErrVolumeNotFound when absent.
	Volume(ctx context.Context, name string) (Volume, error)

	// VolumeCreate creates a volume.
	VolumeCreate(ctx context.Context, name string) (Volume, error)

	// VolumeDelete removes a volume and its quota group.
	VolumeDelete(ctx context.Context, name string) error

	// Down unmounts the pool. Only the Pool wrapper may call this.
	Down(ctx context.Context) (DownPool, error)
}

// DownPool is an unmounted pool. Name and size remain available since they
// are device properties, known without mounting.
type DownPool interface {
	Name() string
	Size() uint64

	// Up mounts the pool and enables quota tracking. Only the Pool
	// wrapper may call this.
	Up(ctx context.Context) (UpPool, error)
}

// Manager constructs a Pool for a device, inspecting existing mount state
// rather than mounting blindly.
type Manager interface {
	Get(ctx context.Context, devices device.Manager, dev device.Device) (*Pool, error)
}

// State of a pool.
type State string

const (
	StateUp   State = "up"
	StateDown State = "down"
)

// Pool holds exactly one of an UpPool or a DownPool and owns all state
// transitions. Fields are replaced only after a transition succeeded, so a
// failed (or panicking) transition never leaves the pool dangling.
type Pool struct {
	up   UpPool
	down DownPool
}

// NewUp wraps an already mounted pool.
func NewUp(up UpPool) *Pool {
	return &Pool{up: up}
}

// NewDown wraps an unmounted pool.
func NewDown(down DownPool) *Pool {
	return &Pool{down: down}
}

// State returns the current pool state.
func (p *Pool) State() State {
	if p.up != nil {
		return StateUp
	}
	return StateDown
}

// Name of the pool, defined in both states.
func (p *Pool) Name() string {
	if p.up != nil {
		return p.up.Name()
	}
	return p.down.Name()
}

// Size of the pool in bytes, defined in both states.
func (p *Pool) Size() uint64 {
	if p.up != nil {
		return p.up.Size()
	}
	return p.down.Size()
}

// AsUp returns the mounted pool, or nil when the pool is down.
func (p *Pool) AsUp() UpPool {
	return p.up
}

// IntoUp brings the pool up if needed and returns the mounted pool. On
// failure the pool stays down.
func (p *Pool) IntoUp(ctx context.Context) (UpPool, error) {
	if p.up != nil {
		return p.up, nil
	}

	up, err := p.down.Up(ctx)
	if err != nil {
		return nil, err
	}

	p.up = up
	p.down = nil
	return up, nil
}

// IntoDown brings the pool down if needed and returns the unmounted pool.
// On failure the pool stays up.
func (p *Pool) IntoDown(ctx context.Context) (DownPool, error) {
	if p.down != nil {
		return p.down, nil
	}

	down, err := p.up.Down(ctx)
	if err != nil {
		return nil, err
	}

	p.down = down
	p.up = nil
	return down, nil
}
