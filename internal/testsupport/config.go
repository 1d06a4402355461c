package testsupport

import (
	"path/filepath"
	"testing"

	"lapfusion/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "sessions")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "lapfusion.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MinFreeMiB = 0
	cfgVal.Store.BusyBackoffMilli = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithoutStore disables result database persistence.
func WithoutStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Enabled = false
	}
}

// WithGapThreshold overrides the close-racing gap threshold.
func WithGapThreshold(seconds float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Features.GapThreshold = seconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DatabasePath)
}
