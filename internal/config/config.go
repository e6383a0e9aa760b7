package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const appDir = "billgrid"

type Config struct {
	// Database settings
	Database DatabaseConfig `yaml:"database"`

	// Grid behavior
	Grid GridConfig `yaml:"grid"`

	// Built-in validation rule thresholds
	Rules RulesConfig `yaml:"rules"`

	// Spreadsheet export
	Export ExportConfig `yaml:"export"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // Path to SQLite database
}

type GridConfig struct {
	DescriptionCacheSize  int           `yaml:"description_cache_size"`
	SearchDebounce        time.Duration `yaml:"search_debounce"`
	SearchMinChars        int           `yaml:"search_min_chars"`
	SearchLimit           int           `yaml:"search_limit"`
	FollowingMax          int           `yaml:"following_max"`
	DuplicateMax          int           `yaml:"duplicate_max"`
	DuplicateConfirm      int           `yaml:"duplicate_confirm"`       // Copies above this need confirmation
	DefaultPaymentPercent float64       `yaml:"default_payment_percent"` // Pre-filled percentage in the payment dialog
	EnrichmentWorkers     int           `yaml:"enrichment_workers"`
	BillPrefix            string        `yaml:"bill_prefix"` // Bill number prefix (e.g., "BILL")
	Accounts              []string      `yaml:"accounts"`    // Allowed account values; empty allows any
}

type RulesConfig struct {
	HighValueThreshold  float64 `yaml:"high_value_threshold"`
	LargeTotalThreshold float64 `yaml:"large_total_threshold"`
}

type ExportConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory for generated workbooks
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // Log file used while the TUI owns the terminal
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address for /metrics; empty disables it
}

// DefaultConfigPath returns ~/.config/billgrid/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		homeDir = "."
	}
	return filepath.Join(homeDir, ".config", appDir)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := baseDir()

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(dir, "billgrid.db"),
		},
		Grid: GridConfig{
			DescriptionCacheSize:  512,
			SearchDebounce:        300 * time.Millisecond,
			SearchMinChars:        2,
			SearchLimit:           10,
			FollowingMax:          100,
			DuplicateMax:          100,
			DuplicateConfirm:      5,
			DefaultPaymentPercent: 80,
			EnrichmentWorkers:     4,
			BillPrefix:            "BILL",
		},
		Rules: RulesConfig{
			HighValueThreshold:  5000,
			LargeTotalThreshold: 10000,
		},
		Export: ExportConfig{
			OutputDir: filepath.Join(dir, "exports"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "billgrid.log"),
		},
	}
}

// Load loads config from the given path, or returns defaults if file doesn't exist
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates all necessary directories (database, exports, logs)
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Database.Path), c.Export.OutputDir}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
