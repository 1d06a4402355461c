package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFusion()
	c.normalizeFeatures()
	c.normalizeRaceControl()
	c.normalizeStore()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("LAPFUSION_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("LAPFUSION_DATABASE_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Paths.DatabasePath = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		c.Paths.DatabasePath = defaultDatabasePath
	}

	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MinFreeMiB < 0 {
		c.Paths.MinFreeMiB = 0
	}
	return nil
}

func (c *Config) normalizeFusion() {
	c.Fusion.Primary = strings.ToLower(strings.TrimSpace(c.Fusion.Primary))
	if c.Fusion.Primary == "" {
		c.Fusion.Primary = defaultPrimarySeries
	}
	c.Fusion.Secondary = strings.ToLower(strings.TrimSpace(c.Fusion.Secondary))
	if c.Fusion.Secondary == "" {
		c.Fusion.Secondary = defaultSecondarySeries
	}
	c.Fusion.PrimaryColumns = normalizeColumns(c.Fusion.PrimaryColumns)
	c.Fusion.SecondaryColumns = normalizeColumns(c.Fusion.SecondaryColumns)
	c.Fusion.SecondaryPrefix = strings.TrimSpace(c.Fusion.SecondaryPrefix)
}

// normalizeColumns trims entries and drops blanks and duplicates.
func normalizeColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		if _, exists := seen[col]; exists {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	return out
}

func (c *Config) normalizeFeatures() {
	if c.Features.GapThreshold == 0 {
		c.Features.GapThreshold = defaultGapThreshold
	}
}

func (c *Config) normalizeRaceControl() {
	rules := c.RaceControl.Rules[:0]
	for _, rule := range c.RaceControl.Rules {
		rule.Kind = strings.ToLower(strings.TrimSpace(rule.Kind))
		rule.Keywords = normalizeColumns(rule.Keywords)
		if len(rule.Keywords) == 0 && rule.Kind == "" {
			continue
		}
		rules = append(rules, rule)
	}
	c.RaceControl.Rules = rules
}

func (c *Config) normalizeStore() {
	if c.Store.BusyRetries <= 0 {
		c.Store.BusyRetries = defaultBusyRetries
	}
	if c.Store.BusyBackoffMilli <= 0 {
		c.Store.BusyBackoffMilli = defaultBusyBackoffMilli
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
