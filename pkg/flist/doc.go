/*
Package flist mounts content-addressed filesystem images (flists).

An flist is a small metadata file describing a filesystem tree; the actual
file contents live in a remote content store and are fetched lazily by the
g8ufs fuse daemon. The engine keeps one read-only g8ufs mount per flist
hash and composes named mounts on top of it, either as a plain bind mount
or as a writable overlay backed by a storage-manager volume.

The live mount table is the only source of truth about what is mounted;
nothing is tracked in memory. Unused read-only bases are garbage collected
by mark and sweep over that table after every mutating operation.

Layout under the engine root:

	flist/<hash>       downloaded flist metadata files
	cache/             shared g8ufs content cache
	mountpoint/<name>  named mounts handed to consumers
	ro/<hash>          shared read-only g8ufs mounts
	log/<hash>.log     per-base g8ufs log files
*/
package flist
