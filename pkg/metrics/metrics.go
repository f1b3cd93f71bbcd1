package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pool metrics
	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storaged_pools_total",
			Help: "Number of storage pools by device type and state",
		},
		[]string{"type", "state"},
	)

	PoolSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storaged_pool_size_bytes",
			Help: "Raw capacity of a pool in bytes",
		},
		[]string{"pool"},
	)

	PoolUsedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storaged_pool_used_bytes",
			Help: "Bytes used on a pool, zero while the pool is down",
		},
		[]string{"pool"},
	)

	VolumesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storaged_volumes_total",
			Help: "Total number of volumes on mounted SSD pools",
		},
	)

	DisksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storaged_disks_total",
			Help: "Total number of virtual disk images",
		},
	)

	DevicesAllocated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storaged_devices_allocated",
			Help: "Number of HDD devices allocated to consumers",
		},
	)

	// Flist metrics
	FlistMountsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storaged_flist_mounts_total",
			Help: "Number of named flist mounts",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storaged_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storaged_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(PoolsTotal)
	prometheus.MustRegister(PoolSizeBytes)
	prometheus.MustRegister(PoolUsedBytes)
	prometheus.MustRegister(VolumesTotal)
	prometheus.MustRegister(DisksTotal)
	prometheus.MustRegister(DevicesAllocated)
	prometheus.MustRegister(FlistMountsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
