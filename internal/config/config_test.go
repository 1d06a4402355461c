package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lapfusion/internal/config"
	"lapfusion/internal/racecontrol"
	"lapfusion/internal/telemetry"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	chdir(t, t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "lapfusion", "sessions")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.DatabasePath != filepath.Join(tempHome, ".local", "share", "lapfusion", "lapfusion.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.DatabasePath)
	}
	if cfg.Fusion.Primary != config.SeriesCarData || cfg.Fusion.Secondary != config.SeriesLocation {
		t.Fatalf("unexpected fusion series %q/%q", cfg.Fusion.Primary, cfg.Fusion.Secondary)
	}
	if cfg.Features.GapThreshold != 1.0 || !cfg.Features.ForwardFill {
		t.Fatalf("unexpected feature defaults %+v", cfg.Features)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir, filepath.Dir(cfg.Paths.DatabasePath)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lapfusion.toml")

	type rule struct {
		Keywords []string `toml:"keywords"`
		Kind     string   `toml:"kind"`
	}
	type payload struct {
		Fusion struct {
			Primary          string   `toml:"primary"`
			Secondary        string   `toml:"secondary"`
			PrimaryColumns   []string `toml:"primary_columns"`
			SecondaryColumns []string `toml:"secondary_columns"`
		} `toml:"fusion"`
		Features struct {
			GapThreshold float64 `toml:"gap_threshold"`
			ForwardFill  bool    `toml:"forward_fill"`
		} `toml:"features"`
		RaceControl struct {
			Rules []rule `toml:"rules"`
		} `toml:"race_control"`
	}
	custom := payload{}
	custom.Fusion.Primary = "Location"
	custom.Fusion.Secondary = "car_data"
	custom.Fusion.PrimaryColumns = []string{" x ", "y", "x", ""}
	custom.Fusion.SecondaryColumns = []string{"speed"}
	custom.Features.GapThreshold = 0.5
	custom.Features.ForwardFill = false
	custom.RaceControl.Rules = []rule{{Keywords: []string{"safety car", "will use pit lane"}, Kind: " NONE "}}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Fusion.Primary != config.SeriesLocation || cfg.Fusion.Secondary != config.SeriesCarData {
		t.Fatalf("expected swapped series, got %q/%q", cfg.Fusion.Primary, cfg.Fusion.Secondary)
	}
	if strings.Join(cfg.Fusion.PrimaryColumns, ",") != "x,y" {
		t.Fatalf("expected trimmed and deduplicated columns, got %v", cfg.Fusion.PrimaryColumns)
	}
	opts := cfg.FeatureOptions()
	if opts.GapThreshold != 0.5 || opts.ForwardFill {
		t.Fatalf("unexpected feature options %+v", opts)
	}

	classifier := cfg.Classifier()
	got := classifier.Classify(telemetry.RaceControlEvent{Message: "SAFETY CAR WILL USE PIT LANE"})
	if got != racecontrol.KindNone {
		t.Fatalf("expected configured rule to silence message, got %s", got)
	}
}

func TestEnvVarOverridesOutputPaths(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "lapfusion.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\noutput_dir = \"/from/file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	outDir := filepath.Join(tempDir, "env-out")
	dbPath := filepath.Join(tempDir, "env.db")
	t.Setenv("LAPFUSION_OUTPUT_DIR", outDir)
	t.Setenv("LAPFUSION_DATABASE_PATH", dbPath)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.OutputDir != outDir {
		t.Errorf("expected output dir from env, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.DatabasePath != dbPath {
		t.Errorf("expected database path from env, got %q", cfg.Paths.DatabasePath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "lapfusion.toml")
	if err := os.WriteFile(configPath, []byte("[fusion]\nprimery = \"car_data\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.OutputDir, "lapfusion") {
		t.Fatalf("expected output dir to contain lapfusion, got %q", cfg.Paths.OutputDir)
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if loaded.Fusion.SecondaryPrefix != "pos_" {
		t.Fatalf("unexpected secondary prefix %q", loaded.Fusion.SecondaryPrefix)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"same series", func(c *config.Config) { c.Fusion.Secondary = c.Fusion.Primary }},
		{"unknown series", func(c *config.Config) { c.Fusion.Primary = "weather" }},
		{"no primary columns", func(c *config.Config) { c.Fusion.PrimaryColumns = nil }},
		{"negative gap", func(c *config.Config) { c.Features.GapThreshold = -1 }},
		{"bad rule kind", func(c *config.Config) {
			c.RaceControl.Rules = []config.RaceControlRule{{Keywords: []string{"X"}, Kind: "unmatched"}}
		}},
		{"empty rule", func(c *config.Config) {
			c.RaceControl.Rules = []config.RaceControlRule{{Kind: "sc_start"}}
		}},
		{"bad level", func(c *config.Config) { c.Logging.Level = "verbose" }},
		{"no output dir", func(c *config.Config) { c.Paths.OutputDir = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
