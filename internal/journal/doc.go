// Package journal persists daemon stop events in SQLite so operators can see
// why earlier daemon instances expired.
//
// The database lives at <state_dir>/daemon.db and is shared by successive
// daemon instances and the CLI history command. Schema changes bump
// schemaVersion in schema.go; older databases are rejected with
// ErrSchemaMismatch and must be deleted.
package journal
