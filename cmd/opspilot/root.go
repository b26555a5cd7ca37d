package main

import (
	"os"

	"github.com/spf13/cobra"
)

var projectFlag string

var rootCmd = &cobra.Command{
	Use:   "opspilot",
	Short: "Agent Orchestration & Autonomous Remediation Engine",
	Long: `OpsPilot manages a fleet of operational agents for a project.

Each agent owns one domain (reliability, security, performance, or
deployment), executes queued tasks, and is continuously inspected by a
supervisory loop that detects problems and remediates them on its own.
Remediation choices are made by an intelligent decision engine backed
by Claude.

Core capabilities:
- Registers agents per project with per-domain default configuration
- Queues and executes tasks serially per agent, concurrently across agents
- Consults Claude for structured remediation decisions
- Sweeps the project every 2 minutes: restarts or rolls back unhealthy
  deployments, schedules stale security scans, auto-patches findings,
  scales ahead of predicted CPU pressure, and recovers failed deployments

Run 'opspilot run' to start the engine, or use the agent, task, and
decide subcommands to drive it manually.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project ID (defaults to the current directory name)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
