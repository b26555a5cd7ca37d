// Package config handles configuration loading and management for OpsPilot.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for OpsPilot.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// AnthropicConfig holds reasoning-oracle API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty selects the per-project or
	// global default path.
	Path string `mapstructure:"path"`
}

// AgentsConfig holds agent registration settings.
type AgentsConfig struct {
	// DefaultsFile optionally overrides the built-in per-domain agent
	// configuration defaults.
	DefaultsFile string `mapstructure:"defaults_file"`
}

// SupervisorConfig holds autonomous-management settings.
type SupervisorConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	ControlDir string        `mapstructure:"control_dir"`
}

// TasksConfig holds task queue settings.
type TasksConfig struct {
	LaneSize      int           `mapstructure:"lane_size"`
	LivenessLimit time.Duration `mapstructure:"liveness_limit"`
}

// DecisionConfig holds decision engine settings.
type DecisionConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPSPILOT_*)
// 2. Project config (.opspilot.yaml in current directory or parent)
// 3. User config (~/.config/opspilot/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("OPSPILOT")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "OPSPILOT_MODEL")
	v.BindEnv("database.path", "OPSPILOT_DB_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("database.path", cfg.Database.Path)
	v.Set("agents.defaults_file", cfg.Agents.DefaultsFile)
	v.Set("supervisor.interval", cfg.Supervisor.Interval.String())
	v.Set("supervisor.control_dir", cfg.Supervisor.ControlDir)
	v.Set("tasks.lane_size", cfg.Tasks.LaneSize)
	v.Set("tasks.liveness_limit", cfg.Tasks.LivenessLimit.String())
	v.Set("decision.timeout", cfg.Decision.Timeout.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("database.path", "")
	v.SetDefault("agents.defaults_file", "")

	v.SetDefault("supervisor.interval", "2m")
	v.SetDefault("supervisor.control_dir", "")

	v.SetDefault("tasks.lane_size", 64)
	v.SetDefault("tasks.liveness_limit", "10m")

	v.SetDefault("decision.timeout", "30s")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for OpsPilot.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "opspilot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "opspilot")
	}
	return filepath.Join(home, ".config", "opspilot")
}

// findProjectConfig searches for .opspilot.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".opspilot.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Supervisor: SupervisorConfig{
			Interval: 2 * time.Minute,
		},
		Tasks: TasksConfig{
			LaneSize:      64,
			LivenessLimit: 10 * time.Minute,
		},
		Decision: DecisionConfig{
			Timeout: 30 * time.Second,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
