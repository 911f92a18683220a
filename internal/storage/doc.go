// Package storage persists the audit trail of task runs.
//
// Two drivers are available:
//   - "file": append-only JSON Lines, one object per terminal outcome
//   - "sqlite": a single table in a SQLite database (pure Go driver)
package storage
