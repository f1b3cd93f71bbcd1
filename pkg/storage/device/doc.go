/*
Package device enumerates the block devices of the node.

Devices are discovered through lsblk and returned as immutable snapshots;
attributes are re-queried, never mutated in place. USB attached devices and
virtual/loop devices are excluded since they are unsuitable for pool storage.

The package also hosts the SSD/HDD classification probe (seektime) and the
destructive Format operation used to prepare blank devices as btrfs pools.
*/
package device
