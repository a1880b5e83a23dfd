// Package storage persists tasks and the sent-notification ledger.
//
// Drivers:
//   - "sqlite": single-file database (default)
//   - "postgres": shared PostgreSQL database via pgxpool
//   - "memory": non-durable, for tests and dry runs
//
// The ledger can optionally live in Redis (see OpenLedger).
package storage
