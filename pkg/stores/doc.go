// Package stores provides the persistence layer for confmod.
// It includes SQLite-based storage with WAL mode, connection pooling,
// versioned config object rows, transactional read-modify-write updates,
// and cycle history for status reporting.
package stores
