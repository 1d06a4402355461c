package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lapfusion/internal/features"
	"lapfusion/internal/racecontrol"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output, database, and log locations.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	DatabasePath string `toml:"database_path"`
	LogDir       string `toml:"log_dir"`
	MinFreeMiB   int    `toml:"min_free_mib"`
}

// Fusion selects the series that drive row cadence and the payload columns
// written for each. Columns accept aliases separated by "|".
type Fusion struct {
	Primary          string   `toml:"primary"`
	Secondary        string   `toml:"secondary"`
	PrimaryColumns   []string `toml:"primary_columns"`
	SecondaryColumns []string `toml:"secondary_columns"`
	SecondaryPrefix  string   `toml:"secondary_prefix"`
}

// Features tunes the per-lap aggregator.
type Features struct {
	GapThreshold float64 `toml:"gap_threshold"`
	ForwardFill  bool    `toml:"forward_fill"`
}

// RaceControlRule is an extra keyword rule evaluated before the built-in
// safety car rules.
type RaceControlRule struct {
	Keywords []string `toml:"keywords"`
	Kind     string   `toml:"kind"`
}

// RaceControl holds site-specific classifier rules.
type RaceControl struct {
	Rules []RaceControlRule `toml:"rules"`
}

// Store controls result persistence.
type Store struct {
	Enabled          bool `toml:"enabled"`
	BusyRetries      int  `toml:"busy_retries"`
	BusyBackoffMilli int  `toml:"busy_backoff_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lapfusion.
//
// Configuration sections by subsystem:
//   - Paths: output workspace, result database, and logs
//   - Fusion: primary/secondary series and exported columns
//   - Features: gap threshold and forward fill policy
//   - RaceControl: extra safety car classification rules
//   - Store: result database persistence
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Fusion      Fusion      `toml:"fusion"`
	Features    Features    `toml:"features"`
	RaceControl RaceControl `toml:"race_control"`
	Store       Store       `toml:"store"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lapfusion/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lapfusion.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, log, and database directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.LogDir}
	if c.Store.Enabled {
		dirs = append(dirs, filepath.Dir(c.Paths.DatabasePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FeatureOptions returns the aggregator settings.
func (c *Config) FeatureOptions() features.Options {
	return features.Options{
		GapThreshold: c.Features.GapThreshold,
		ForwardFill:  c.Features.ForwardFill,
	}
}

// Classifier builds the race control classifier with any configured rules
// ahead of the defaults. Rules are assumed validated.
func (c *Config) Classifier() *racecontrol.RuleClassifier {
	extra := make([]racecontrol.KeywordRule, 0, len(c.RaceControl.Rules))
	for _, rule := range c.RaceControl.Rules {
		kind, ok := racecontrol.ParseKind(rule.Kind)
		if !ok {
			continue
		}
		extra = append(extra, racecontrol.KeywordRule{Keywords: rule.Keywords, Kind: kind})
	}
	return racecontrol.NewRuleClassifier(extra...)
}

// BusyBackoff returns the base delay between busy retries.
func (c *Config) BusyBackoff() time.Duration {
	return time.Duration(c.Store.BusyBackoffMilli) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
