/*
Package system provides the low-level capabilities the storage daemon depends
on: running short-lived external commands and issuing mount/unmount syscalls.

Both capabilities are defined as interfaces so that every consumer (pools,
device catalog, flist engine) can be exercised in tests without touching the
host. MockExecutor and MockSyscalls are the test doubles used across the
repository.
*/
package system
