// Package sqlite provides a SQLite-backed record backend for the provider
// layer.
//
// Each record is one row keyed by (resource, id). The record body is stored
// as canonical JSON (see package canon), next to a content revision hash and
// a per-database sequence number:
//
//   - List returns rows ORDER BY seq ASC, id ASC COLLATE BINARY
//   - Overwriting a record keeps its seq, so list order is first-insert order
//   - A write whose revision matches the stored one is a no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Numbers read back from storage are int64 when integral and float64
// otherwise.
package sqlite
