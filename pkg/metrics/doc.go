/*
Package metrics provides Prometheus metrics collection and exposition.

All metrics live on the default registry and are registered at package
init. The Collector polls the storage manager and the flist engine every
15 seconds for gauge values (pool counts and usage, volume/disk/device
counts, named flist mounts); API counters and duration histograms are fed
by the HTTP middleware as requests happen.

The package also carries the process health checker backing the /health,
/ready and /live endpoints. Readiness requires the storage, flist and api
components to have reported healthy at least once.
*/
package metrics
