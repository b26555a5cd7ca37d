package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/internal/tui"
	"github.com/opspilot/opspilot/pkg/models"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project's agents, tasks, and incidents",
	Long: `Display a snapshot of the project's operational state.

Shows registered agents, recent tasks, and open incidents. With --watch,
opens a live dashboard that refreshes continuously; the dashboard reads
the same database a running 'opspilot run' process writes to.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Open the live dashboard")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	project, err := currentProject()
	if err != nil {
		return err
	}

	path, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No engine state yet. Run 'opspilot run' or register an agent first.")
		return nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if statusWatch {
		return watchStatus(cfg, db, project)
	}

	agents, err := db.ListAgentsByProject(project)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	tasks, err := db.ListRecentTasks(project, 10)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	incidents, err := db.ListIncidentsByProject(project, 5)
	if err != nil {
		return fmt.Errorf("list incidents: %w", err)
	}

	fmt.Printf("Project: %s\n\n", project)
	displayStatusAgents(agents)
	displayStatusTasks(tasks)
	displayStatusIncidents(incidents)
	return nil
}

// watchStatus runs the live dashboard over the full engine so the event
// stream and health tracking are available.
func watchStatus(cfg *config.Config, db *state.DB, project string) error {
	orch, err := buildOrchestrator(cfg, db)
	if err != nil {
		return err
	}
	defer orch.Close()

	app := tui.New(orch, project, cfg.TUI.RefreshRate)
	_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
	return err
}

func displayStatusAgents(agents []models.Agent) {
	if len(agents) == 0 {
		fmt.Println("Agents: none")
		return
	}
	fmt.Printf("Agents: %d\n", len(agents))
	for i := range agents {
		a := &agents[i]
		seen := "no heartbeat"
		if a.LastHeartbeat != nil {
			seen = fmt.Sprintf("seen %s ago", formatDuration(time.Since(*a.LastHeartbeat)))
		}
		fmt.Printf("  %-14s %-24s %-9s %s\n", a.Domain, a.Name, a.Status, seen)
	}
}

func displayStatusTasks(tasks []models.Task) {
	fmt.Println()
	if len(tasks) == 0 {
		fmt.Println("Recent tasks: none")
		return
	}
	fmt.Println("Recent tasks:")
	for i := range tasks {
		t := &tasks[i]
		line := fmt.Sprintf("  %-20s %-8s %-10s %s ago", t.Type, t.Priority, t.Status,
			formatDuration(time.Since(t.CreatedAt)))
		if t.Status == models.TaskStatusFailed && t.Error != "" {
			line += "  (" + t.Error + ")"
		}
		fmt.Println(line)
	}
}

func displayStatusIncidents(incidents []models.Incident) {
	fmt.Println()
	if len(incidents) == 0 {
		fmt.Println("Incidents: none")
		return
	}
	fmt.Println("Incidents:")
	for i := range incidents {
		inc := &incidents[i]
		line := fmt.Sprintf("  [%s] %-8s %s", inc.Severity, inc.Status, inc.Title)
		if inc.Decision != nil {
			line += " -> " + inc.Decision.Action
		}
		fmt.Println(line)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
