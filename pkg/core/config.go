package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"frp-clean/pkg/constants"
)

// Config is the user configuration file. It only feeds ScanConfig and
// CleanConfig; the scanner and cleaner never read it directly.
type Config struct {
	DefaultExclude     []string `yaml:"default_exclude"`
	FlutterCleanArgs   []string `yaml:"flutter_clean_args"`
	CargoCleanArgs     []string `yaml:"cargo_clean_args"`
	CleanMode          string   `yaml:"clean_mode"`
	MaxParallelJobs    int      `yaml:"max_parallel_jobs"` // 0 = auto
	ScanJobs           int      `yaml:"scan_jobs"`         // 0 = auto
	NestedProjects     string   `yaml:"nested_projects"`
	FollowSymlinks     bool     `yaml:"follow_symlinks"`
	ConfirmBeforeClean bool     `yaml:"confirm_before_clean"`
	ShowProgress       bool     `yaml:"show_progress"`
	LogLevel           string   `yaml:"log_level"`
	LogFile            string   `yaml:"log_file"`
	LogMaxSize         int      `yaml:"log_max_size"` // megabytes
	LogMaxAge          int      `yaml:"log_max_age"`  // days
}

// DefaultConfig mirrors what a fresh `config init` writes.
func DefaultConfig() *Config {
	return &Config{
		DefaultExclude:     []string{"node_modules", ".git"},
		FlutterCleanArgs:   []string{"clean"},
		CargoCleanArgs:     []string{"clean"},
		CleanMode:          "remove",
		NestedProjects:     "descend",
		ConfirmBeforeClean: true,
		ShowProgress:       true,
		LogLevel:           "info",
		LogMaxSize:         10,
		LogMaxAge:          7,
	}
}

// DefaultConfigPath is <user config dir>/frp-clean/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, constants.AppName, constants.ConfigFileName), nil
}

// DefaultLogPath sits next to the default config file.
func DefaultLogPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, constants.AppName, constants.LogFileName), nil
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Field: "config file " + path, Reason: "malformed YAML", Err: err}
	}

	// Keys present but empty fall back to defaults, as the old line format did.
	defaults := DefaultConfig()
	if cfg.CleanMode == "" {
		cfg.CleanMode = defaults.CleanMode
	}
	if cfg.NestedProjects == "" {
		cfg.NestedProjects = defaults.NestedProjects
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.LogMaxSize <= 0 {
		cfg.LogMaxSize = defaults.LogMaxSize
	}
	if cfg.LogMaxAge <= 0 {
		cfg.LogMaxAge = defaults.LogMaxAge
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the enumerated and numeric fields.
func (c *Config) Validate() error {
	if _, err := ParseActionKind(c.CleanMode); err != nil {
		return &ConfigError{Field: "clean_mode", Reason: err.Error()}
	}
	if _, err := ParseNestedPolicy(c.NestedProjects); err != nil {
		return &ConfigError{Field: "nested_projects", Reason: err.Error()}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if c.MaxParallelJobs < 0 {
		return &ConfigError{Field: "max_parallel_jobs", Reason: "must not be negative"}
	}
	if c.ScanJobs < 0 {
		return &ConfigError{Field: "scan_jobs", Reason: "must not be negative"}
	}
	return nil
}

func jobsToParallelism(jobs int) Parallelism {
	if jobs == 0 {
		return ParallelismAuto
	}
	return Parallelism(jobs)
}

// ScanConfig builds the scanner input for roots. Extra exclude patterns
// are appended after the configured defaults.
func (c *Config) ScanConfig(roots []string, extraExclude []string) ScanConfig {
	nested, _ := ParseNestedPolicy(c.NestedProjects)
	exclude := make([]string, 0, len(c.DefaultExclude)+len(extraExclude))
	exclude = append(exclude, c.DefaultExclude...)
	exclude = append(exclude, extraExclude...)
	return ScanConfig{
		Roots:           roots,
		MaxDepth:        NoDepthLimit,
		ExcludePatterns: exclude,
		FollowSymlinks:  c.FollowSymlinks,
		Parallelism:     jobsToParallelism(c.ScanJobs),
		Nested:          nested,
	}
}

// CleanConfig builds the cleaner input.
func (c *Config) CleanConfig(dryRun bool) CleanConfig {
	cfg := CleanConfig{
		DryRun:      dryRun,
		Parallelism: jobsToParallelism(c.MaxParallelJobs),
	}
	if mode, _ := ParseActionKind(c.CleanMode); mode == ActionCommand {
		cfg.Actions = CommandActions(c.FlutterCleanArgs, c.CargoCleanArgs)
	}
	return cfg
}

// LogConfig resolves the log file path, defaulting next to the config.
func (c *Config) LogConfig() (LogConfig, error) {
	level, _ := ParseLevel(c.LogLevel)
	file := c.LogFile
	if file == "" {
		var err error
		if file, err = DefaultLogPath(); err != nil {
			return LogConfig{}, err
		}
	}
	return LogConfig{
		File:    file,
		Level:   level,
		MaxSize: c.LogMaxSize,
		MaxAge:  c.LogMaxAge,
	}, nil
}
