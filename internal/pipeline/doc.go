// Package pipeline runs one race session from raw provider records to a
// fused telemetry stream, safety intervals, and the per-lap feature table.
//
// Run is the pure in-memory core: it never touches disk and either returns a
// complete Result or an error. Processor wraps Run with the session loader,
// the locked output workspace, and the result store so that a session's
// outputs are published all at once or not at all.
package pipeline
