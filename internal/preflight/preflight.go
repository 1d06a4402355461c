package preflight

import (
	"context"
	"path/filepath"

	"lapfusion/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Output directory (always checked)
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	if cfg.Paths.MinFreeMiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, cfg.Paths.MinFreeMiB))
	}

	// Log directory (when configured)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	// Result database
	if cfg.Store.Enabled {
		results = append(results, CheckDirectoryAccess("Database directory", filepath.Dir(cfg.Paths.DatabasePath)))
		results = append(results, CheckDatabase(ctx, cfg))
	}

	return results
}
