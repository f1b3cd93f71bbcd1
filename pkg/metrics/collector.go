package metrics

import (
	"context"
	"time"

	"github.com/nodeos/storaged/pkg/storage"
)

// collectTimeout bounds one collection round; pool usage reads hit btrfs.
const collectTimeout = 30 * time.Second

// PoolSource exposes pool snapshots for collection. Implemented by the
// storage manager.
type PoolSource interface {
	Pools(ctx context.Context) []storage.PoolStats
}

// MountSource exposes the current named flist mounts.
type MountSource interface {
	List(ctx context.Context) ([]string, error)
}

// Collector periodically pulls gauges from the storage manager and the
// flist engine.
type Collector struct {
	pools   PoolSource
	storage storage.Manager
	mounts  MountSource
	stopCh  chan struct{}
}

// NewCollector creates a collector over the given sources.
func NewCollector(pools PoolSource, store storage.Manager, mounts MountSource) *Collector {
	return &Collector{
		pools:   pools,
		storage: store,
		mounts:  mounts,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	c.collectPoolMetrics(ctx)
	c.collectStorageMetrics(ctx)
	c.collectMountMetrics(ctx)
}

func (c *Collector) collectPoolMetrics(ctx context.Context) {
	stats := c.pools.Pools(ctx)

	counts := make(map[string]map[string]int)
	for _, stat := range stats {
		if counts[stat.Type] == nil {
			counts[stat.Type] = make(map[string]int)
		}
		counts[stat.Type][stat.State]++

		PoolSizeBytes.WithLabelValues(stat.Name).Set(float64(stat.Size))
		PoolUsedBytes.WithLabelValues(stat.Name).Set(float64(stat.Used))
	}

	// set every combination so stale counts drop back to zero
	for _, typ := range []string{"ssd", "hdd"} {
		for _, state := range []string{"up", "down"} {
			PoolsTotal.WithLabelValues(typ, state).Set(float64(counts[typ][state]))
		}
	}
}

func (c *Collector) collectStorageMetrics(ctx context.Context) {
	if volumes, err := c.storage.Volumes(ctx); err == nil {
		VolumesTotal.Set(float64(len(volumes)))
	}

	if disks, err := c.storage.Disks(ctx); err == nil {
		DisksTotal.Set(float64(len(disks)))
	}

	if devices, err := c.storage.Devices(ctx); err == nil {
		DevicesAllocated.Set(float64(len(devices)))
	}
}

func (c *Collector) collectMountMetrics(ctx context.Context) {
	mounts, err := c.mounts.List(ctx)
	if err != nil {
		return
	}

	FlistMountsTotal.Set(float64(len(mounts)))
}
