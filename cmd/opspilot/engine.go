package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/internal/decision"
	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/oracle"
	"github.com/opspilot/opspilot/internal/orchestrator"
	"github.com/opspilot/opspilot/internal/registry"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// currentProject resolves the project ID from the --project flag or the
// working directory name.
func currentProject() (string, error) {
	if projectFlag != "" {
		return projectFlag, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return filepath.Base(cwd), nil
}

// resolveDBPath picks the database location: explicit config value, then the
// project database, then the global one if the project database does not
// exist yet.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if _, err := os.Stat(state.GlobalDBPath()); err == nil {
			return state.GlobalDBPath(), nil
		}
	}
	return dbPath, nil
}

// openDB opens the resolved database and brings its schema up to date.
func openDB(cfg *config.Config) (*state.DB, error) {
	path, err := resolveDBPath(cfg)
	if err != nil {
		return nil, err
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// loadAgentDefaults returns the per-domain config overrides from the
// configured defaults file, or nil when none is set.
func loadAgentDefaults(cfg *config.Config) (map[models.DomainType]map[string]any, error) {
	if cfg.Agents.DefaultsFile == "" {
		return nil, nil
	}
	defaults, err := registry.LoadDefaultsFile(cfg.Agents.DefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("load agent defaults: %w", err)
	}
	return defaults, nil
}

// buildOrchestrator wires the full engine: oracle client, decision engine,
// deployment executor, and orchestrator. Requires API access (or Bedrock).
// The caller owns both the returned orchestrator and the database.
func buildOrchestrator(cfg *config.Config, db *state.DB) (*orchestrator.Orchestrator, error) {
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	client, err := oracle.NewClient(oracle.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create oracle client: %w", err)
	}

	defaults, err := loadAgentDefaults(cfg)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		Store:              db,
		Decider:            decision.NewEngine(client, cfg.Decision.Timeout),
		Executor:           deploy.NewLocalExecutor(),
		Defaults:           defaults,
		SupervisorInterval: cfg.Supervisor.Interval,
		ControlDir:         cfg.Supervisor.ControlDir,
		LaneSize:           cfg.Tasks.LaneSize,
		LivenessLimit:      cfg.Tasks.LivenessLimit,
		DebugLogPath:       debugLogPath,
	}), nil
}

// parsePairs converts repeated key=value flags into a map, coercing values
// to bool or float64 when they parse as such.
func parsePairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair: %q", p)
		}
		switch {
		case value == "true" || value == "false":
			out[key] = value == "true"
		default:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				out[key] = f
			} else {
				out[key] = value
			}
		}
	}
	return out, nil
}
