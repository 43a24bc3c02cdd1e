package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-pattern-miner/internal/log"
)

// Config holds all configuration for go-pattern-miner
type Config struct {
	// Logging
	LogLevel string `yaml:"log_level" env:"GPM_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"GPM_LOG_JSON"`

	// Pattern storage
	PatternsDir  string `yaml:"patterns_dir" env:"GPM_PATTERNS_DIR"`
	SnapshotPath string `yaml:"snapshot_path" env:"GPM_SNAPSHOT_PATH"`

	// Detection result cache
	CachePath string `yaml:"cache_path" env:"GPM_CACHE_PATH"`
	CacheSize int    `yaml:"cache_size" env:"GPM_CACHE_SIZE"`

	// Mining
	MinOccurrences int `yaml:"min_occurrences" env:"GPM_MIN_OCCURRENCES"`
	MaxMappings    int `yaml:"max_mappings" env:"GPM_MAX_MAPPINGS"`

	// Detection concurrency
	Workers int `yaml:"workers" env:"GPM_WORKERS"`

	// Reference builder used by `gpm check`
	OracleCommand []string `yaml:"oracle_command" env:"GPM_ORACLE_COMMAND"`
	OracleTimeout string   `yaml:"oracle_timeout" env:"GPM_ORACLE_TIMEOUT"`

	IgnoreFile  string `yaml:"ignore_file" env:"GPM_IGNORE_FILE"`
	SkipClosure bool   `yaml:"skip_closure" env:"GPM_SKIP_CLOSURE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "info",
		LogJSON:        false,
		PatternsDir:    "patterns",
		SnapshotPath:   ".gpm/patterns.snapshot",
		CachePath:      ".gpm/detections.cache",
		CacheSize:      4096,
		MinOccurrences: 2,
		MaxMappings:    64,
		Workers:        4,
		OracleTimeout:  "30s",
		IgnoreFile:     ".gpmignore",
		SkipClosure:    false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.gpm/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gpm/config.yaml"
	}
	return filepath.Join(home, ".gpm", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.gpm/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".gpm", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.gpm/config.yaml)
// 2. Environment variables
// 3. Global config (~/.gpm/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return load(GlobalConfigFilePath(), ProjectConfigFilePath())
}

func load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(cfg, globalPath); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := mergeFile(cfg, projectPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GPM_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("GPM_PATTERNS_DIR"); v != "" {
		cfg.PatternsDir = v
	}
	if v := os.Getenv("GPM_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("GPM_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("GPM_CACHE_SIZE"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.CacheSize = i
		}
	}
	if v := os.Getenv("GPM_MIN_OCCURRENCES"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MinOccurrences = i
		}
	}
	if v := os.Getenv("GPM_MAX_MAPPINGS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxMappings = i
		}
	}
	if v := os.Getenv("GPM_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("GPM_ORACLE_COMMAND"); v != "" {
		cfg.OracleCommand = strings.Fields(v)
	}
	if v := os.Getenv("GPM_ORACLE_TIMEOUT"); v != "" {
		cfg.OracleTimeout = v
	}
	if v := os.Getenv("GPM_IGNORE_FILE"); v != "" {
		cfg.IgnoreFile = v
	}
	if v := os.Getenv("GPM_SKIP_CLOSURE"); v != "" {
		cfg.SkipClosure = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.PatternsDir == "" {
		return fmt.Errorf("patterns_dir is required")
	}
	if c.MinOccurrences <= 0 {
		return fmt.Errorf("min_occurrences must be positive")
	}
	if c.MaxMappings <= 0 {
		return fmt.Errorf("max_mappings must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative")
	}
	if _, err := c.OracleTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// OracleTimeoutDuration parses oracle_timeout. An empty value means no bound.
func (c *Config) OracleTimeoutDuration() (time.Duration, error) {
	if c.OracleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.OracleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid oracle_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("oracle_timeout must be non-negative")
	}
	return d, nil
}

// Logger builds the logger described by the logging settings. verbose forces
// debug output.
func (c *Config) Logger(verbose bool) log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: c.LogJSON, Output: os.Stderr})
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
