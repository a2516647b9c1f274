// Package database provides a process-wide, lazily established database
// connection cache built on top of Bun: single-flight establishment,
// fail-fast validation, health checks, automatic reconnection, metrics,
// configuration loading, and logging.
package database
