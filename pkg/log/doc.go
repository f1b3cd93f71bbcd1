/*
Package log provides structured logging for storaged using zerolog.

The package wraps zerolog with a global logger initialized once via Init,
plus helpers creating child loggers carrying the fields used across the
daemon (component, pool, device, mount). Production output is JSON; the
console writer is available for interactive runs.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("storage")
	logger.Info().Str("pool", name).Msg("pool brought up")
*/
package log
