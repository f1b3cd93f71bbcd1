/*
Package devtype persists the SSD/HDD classification of block devices.

The seek-time probe classifying a device takes seconds, so its result is
cached in a small BoltDB store keyed by device base name and survives daemon
restarts. Entries are never invalidated: a cache entry lives until the
backing store itself is wiped. If the store cannot be opened the detector
degrades to probing on every lookup instead of failing.
*/
package devtype
