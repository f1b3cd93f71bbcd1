/*
Package config resolves the daemon configuration.

Resolution order is defaults, then an optional YAML file, then environment
variables (STORAGED_RUNMODE, STORAGED_STORAGE_URL, STORAGED_LISTEN). The
resolved Config is built once in main and passed down; no package reads
the environment on its own.
*/
package config
