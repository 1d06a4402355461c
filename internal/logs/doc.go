// Package logs reads the per-run JSON logs written under each session output
// directory.
//
// Entries are decoded one line at a time with bounded memory. A Filter keeps
// entries at or above a level and, optionally, of one event type; Limit keeps
// only the newest matches so `lapfusion runs log` behaves like tail.
package logs
