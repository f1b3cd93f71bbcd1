/*
Package api exposes the storage manager and the flist engine over HTTP.

Routes live under /api/v1: volumes, disks and devices map straight onto
the storage manager operations, flist onto the mount engine. The server
carries two listeners: the TCP one with the full surface and a read-only
unix socket for host tooling. Health (/health, /ready, /live) and
Prometheus (/metrics) endpoints are shared by both.

Errors cross the boundary as {"error": ...} JSON with the status derived
from the storage sentinel: not-found 404, invalid input 400, out of
space 507.
*/
package api
