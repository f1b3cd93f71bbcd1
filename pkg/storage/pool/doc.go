/*
Package pool wraps one formatted disk device as a storage pool.

A pool is either Up (mounted, volumes usable) or Down (unmounted, only name
and size known). Transitions happen exclusively through the Pool wrapper and
are fallible: a failed transition leaves the pool in its previous state, so
a valid state is observable at all times.

Volumes are named, quota-limited subtrees inside an Up pool. The btrfs
implementation maps volumes onto subvolumes and enforces limits through
quota groups, shelling out to the btrfs tooling for every operation.

The backend is expressed as interfaces (Volume, UpPool, DownPool, Manager)
so another filesystem can be added as a new implementation rather than a
modification of the state machine.
*/
package pool
