package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify OpsPilot configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/opspilot/config.yaml
Project-specific overrides can be placed in .opspilot.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s (source: %s)\n",
		config.MaskAPIKey(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", cfg.Anthropic.AWSRegion)
	fmt.Printf("database.path: %s\n", cfg.Database.Path)
	fmt.Printf("agents.defaults_file: %s\n", cfg.Agents.DefaultsFile)
	fmt.Printf("supervisor.interval: %s\n", cfg.Supervisor.Interval)
	fmt.Printf("supervisor.control_dir: %s\n", cfg.Supervisor.ControlDir)
	fmt.Printf("tasks.lane_size: %d\n", cfg.Tasks.LaneSize)
	fmt.Printf("tasks.liveness_limit: %s\n", cfg.Tasks.LivenessLimit)
	fmt.Printf("decision.timeout: %s\n", cfg.Decision.Timeout)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "database.path":
		return cfg.Database.Path, nil
	case "agents.defaults_file":
		return cfg.Agents.DefaultsFile, nil
	case "supervisor.interval":
		return cfg.Supervisor.Interval.String(), nil
	case "supervisor.control_dir":
		return cfg.Supervisor.ControlDir, nil
	case "tasks.lane_size":
		return strconv.Itoa(cfg.Tasks.LaneSize), nil
	case "tasks.liveness_limit":
		return cfg.Tasks.LivenessLimit.String(), nil
	case "decision.timeout":
		return cfg.Decision.Timeout.String(), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "database.path":
		cfg.Database.Path = value
	case "agents.defaults_file":
		cfg.Agents.DefaultsFile = value
	case "supervisor.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for supervisor.interval: %w", err)
		}
		cfg.Supervisor.Interval = d
	case "supervisor.control_dir":
		cfg.Supervisor.ControlDir = value
	case "tasks.lane_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for lane_size: %w", err)
		}
		cfg.Tasks.LaneSize = n
	case "tasks.liveness_limit":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for liveness_limit: %w", err)
		}
		cfg.Tasks.LivenessLimit = d
	case "decision.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for decision.timeout: %w", err)
		}
		cfg.Decision.Timeout = d
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
