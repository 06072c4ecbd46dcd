// Package jobcache persists a snapshot of known jobs between invocations.
//
// The cache is a SQLite database under the state directory. It is never the
// source of truth: rows seed jobs.Store on startup and are overwritten by
// the next successful fetch. Upserts follow the same rule as the store, so a
// terminal row is never replaced by a non-terminal one, and writers in
// different processes are serialized with a file lock next to the database.
//
// When the schema changes, bump schemaVersion; an older cache is reported
// with ErrSchemaMismatch and can simply be deleted.
package jobcache
