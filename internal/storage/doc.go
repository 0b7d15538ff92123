// Package storage persists tasks and the notification audit trail.
//
// Drivers:
//   - "sqlite": SQLite file via modernc.org/sqlite (pure Go, no cgo)
//   - "memory": process-local maps, for tests and dry runs
//
// Timestamps are stored as unix milliseconds and returned in UTC.
package storage
