// Package store persists finished pipeline runs in SQLite.
//
// A run row records the session, timing, and summary counts. Its fused
// samples, lap features, and safety intervals are written in the same
// transaction, so a run is either stored completely or not at all. Failed
// runs are recorded without artifacts so the history shows why a session
// produced nothing.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package store
