// Package scenestore persists video aggregates and their scenes in SQLite.
//
// The Store owns database connections, schema initialization, and every write
// to the videos and scenes tables. Writes always replace the whole aggregate
// in one transaction so scene ordering stays dense. Structural edits go
// through ApplyOperation, which enforces the ordering and invalidation rules
// shared by every operation variant.
//
// The same database also carries the workflow journal (see journal.go) so a
// restarted process can resume a run from its last completed step.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package scenestore
