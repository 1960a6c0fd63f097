// Package storage keeps the optional notification audit log.
//
// It records what was sent (or failed to send), never watcher state: the
// roster snapshot and dedup cache stay in memory by design of the service.
//
// Drivers:
//   - "file":   append-only JSON Lines (<path>.audit.jsonl)
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go)
package storage
