/*
Package mountinfo reads the live kernel mount table.

The mount table is the single source of truth for mount state across the
daemon: pool managers use it to detect already-mounted pools after a restart,
and the flist engine garbage-collects against it. No component caches mount
state beyond the duration of one operation.

The Table interface lets tests substitute literal mount-table text for
/proc/mounts.
*/
package mountinfo
