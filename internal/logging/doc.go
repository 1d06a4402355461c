// Package logging builds the slog loggers lapfusion runs with.
//
// The console handler prints one line per record, prefixed with the session
// key and a shortened run id when the logger carries them; the JSON handler
// writes the same records for the per-run log files, with durations in
// seconds. TeeLogger joins the two so a run is visible on the terminal and
// on disk at their own levels.
package logging
