package config

import (
	"errors"
	"fmt"
	"strings"

	"lapfusion/internal/racecontrol"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFusion(); err != nil {
		return err
	}
	if err := c.validateFeatures(); err != nil {
		return err
	}
	if err := c.validateRaceControl(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set (or set LAPFUSION_OUTPUT_DIR)")
	}
	if c.Store.Enabled && strings.TrimSpace(c.Paths.DatabasePath) == "" {
		return errors.New("paths.database_path must be set when store.enabled is true")
	}
	return nil
}

func (c *Config) validateFusion() error {
	for key, value := range map[string]string{
		"fusion.primary":   c.Fusion.Primary,
		"fusion.secondary": c.Fusion.Secondary,
	} {
		if value != SeriesCarData && value != SeriesLocation {
			return fmt.Errorf("%s: unsupported series %q (want %s or %s)", key, value, SeriesCarData, SeriesLocation)
		}
	}
	if c.Fusion.Primary == c.Fusion.Secondary {
		return errors.New("fusion.primary and fusion.secondary must differ")
	}
	if len(c.Fusion.PrimaryColumns) == 0 {
		return errors.New("fusion.primary_columns must include at least one column")
	}
	return nil
}

func (c *Config) validateFeatures() error {
	if c.Features.GapThreshold <= 0 {
		return errors.New("features.gap_threshold must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateRaceControl() error {
	for i, rule := range c.RaceControl.Rules {
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("race_control.rules[%d].keywords must include at least one keyword", i)
		}
		if _, ok := racecontrol.ParseKind(rule.Kind); !ok {
			return fmt.Errorf("race_control.rules[%d].kind: unsupported value %q", i, rule.Kind)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
