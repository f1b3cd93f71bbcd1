/*
Package storage is the node storage manager.

On construction it scans all eligible block devices, classifies each as SSD
or HDD, wraps each in a pool and groups the pools by class. SSD pools host
named volumes and virtual disk images, HDD pools are handed out whole to
consumers that want raw spinning capacity.

Space allocation is lazy: volumes land on the first mounted SSD pool with
room, and pools are only brought up (mounted) when no mounted pool can take
the request. Pools holding no volumes are kept unmounted so idle disks can
spin down.
*/
package storage
