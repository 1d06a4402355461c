// Package preflight provides readiness checks for the filesystem paths and
// result database that lapfusion depends on.
//
// These checks run in two contexts:
//   - The session processor calls RunAll before fusing a session. If any
//     check fails, the run stops before any output is written.
//   - The CLI "lapfusion doctor" command prints every result as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
