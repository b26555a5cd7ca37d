package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/internal/registry"
	"github.com/opspilot/opspilot/pkg/models"
)

var agentSetFlags []string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage operational agents",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create <domain> <name>",
	Short: "Register a new agent",
	Long: `Register a new agent for the project.

The domain must be one of: reliability, security, performance, deployment.
The agent starts with the built-in defaults for its domain, overlaid with
any defaults file from configuration and any --set overrides.

Examples:
  opspilot agent create reliability api-watchdog
  opspilot agent create security scanner --set auto_patch=true
  opspilot agent create performance tuner --set cpu_threshold=70`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentCreate,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's agents",
	Args:  cobra.NoArgs,
	RunE:  runAgentList,
}

var agentHealthCmd = &cobra.Command{
	Use:   "health <agent-id>",
	Short: "Show one agent's heartbeat health",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentHealth,
}

func init() {
	agentCreateCmd.Flags().StringArrayVar(&agentSetFlags, "set", nil, "Config override as key=value (repeatable)")

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentHealthCmd)
}

// openRegistry builds a registry over the project database. Agent commands
// go through the registry directly so they work without API credentials.
func openRegistry(cfg *config.Config) (*registry.Registry, func(), error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	defaults, err := loadAgentDefaults(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var opts []registry.Option
	if defaults != nil {
		opts = append(opts, registry.WithDefaults(defaults))
	}

	reg := registry.New(db, opts...)
	cleanup := func() {
		reg.Close()
		db.Close()
	}
	return reg, cleanup, nil
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	project, err := currentProject()
	if err != nil {
		return err
	}
	overrides, err := parsePairs(agentSetFlags)
	if err != nil {
		return err
	}

	reg, cleanup, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	agent, err := reg.Register(models.DomainType(args[0]), project, args[1], overrides)
	if err != nil {
		return err
	}

	fmt.Printf("%s Created agent %s\n", color.GreenString("✓"), agent.ID)
	fmt.Printf("  Domain:  %s\n", agent.Domain)
	fmt.Printf("  Name:    %s\n", agent.Name)
	fmt.Printf("  Project: %s\n", agent.ProjectID)
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	project, err := currentProject()
	if err != nil {
		return err
	}

	reg, cleanup, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	agents, err := reg.ListByProject(project)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Printf("No agents registered for project %s.\n", project)
		return nil
	}

	fmt.Printf("%-38s %-14s %-24s %-9s %s\n", "ID", "DOMAIN", "NAME", "STATUS", "LAST HEARTBEAT")
	for i := range agents {
		a := &agents[i]
		seen := "never"
		if a.LastHeartbeat != nil {
			seen = formatDuration(time.Since(*a.LastHeartbeat)) + " ago"
		}
		fmt.Printf("%-38s %-14s %-24s %-9s %s\n", a.ID, a.Domain, a.Name, a.Status, seen)
	}
	return nil
}

func runAgentHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, cleanup, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	agent, err := reg.Get(args[0])
	if err != nil {
		return err
	}

	h := reg.Health(agent.ID)
	fmt.Printf("Agent %s (%s/%s)\n", agent.ID, agent.Domain, agent.Name)
	fmt.Printf("  Status: %s\n", agent.Status)
	fmt.Printf("  Health: %s\n", healthString(h.Status))
	if h.LastSeen != nil {
		fmt.Printf("  Last seen: %s ago\n", formatDuration(time.Since(*h.LastSeen)))
	} else if agent.LastHeartbeat != nil {
		fmt.Printf("  Last recorded heartbeat: %s ago\n", formatDuration(time.Since(*agent.LastHeartbeat)))
	}
	return nil
}

func healthString(h models.HealthStatus) string {
	switch h {
	case models.HealthHealthy:
		return color.GreenString(string(h))
	case models.HealthUnhealthy:
		return color.RedString(string(h))
	default:
		return string(h)
	}
}
