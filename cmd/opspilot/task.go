package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/pkg/models"
)

var (
	taskPriority string
	taskInputs   []string
	taskWait     time.Duration
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Assign and inspect tasks",
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <agent-id> <type>",
	Short: "Assign a task to an agent and wait for the result",
	Long: `Assign a task to an agent.

The type must be one the agent's domain supports:
  reliability:  incident-response, monitoring
  security:     vulnerability-scan
  performance:  optimization, predictive-scaling
  deployment:   deployment

The command waits for the task to finish and prints its output. Pass
--wait 0 to enqueue and return immediately.

Examples:
  opspilot task assign <id> monitoring
  opspilot task assign <id> deployment --input version=2.4.1
  opspilot task assign <id> incident-response --priority urgent \
      --input description="checkout latency spike"`,
	Args: cobra.ExactArgs(2),
	RunE: runTaskAssign,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task's state and result",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

func init() {
	taskAssignCmd.Flags().StringVar(&taskPriority, "priority", "medium", "Task priority: low, medium, high, urgent")
	taskAssignCmd.Flags().StringArrayVar(&taskInputs, "input", nil, "Task input as key=value (repeatable)")
	taskAssignCmd.Flags().DurationVar(&taskWait, "wait", 2*time.Minute, "How long to wait for completion (0 to detach)")

	taskCmd.AddCommand(taskAssignCmd)
	taskCmd.AddCommand(taskShowCmd)
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	input, err := parsePairs(taskInputs)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	orch, err := buildOrchestrator(cfg, db)
	if err != nil {
		return err
	}
	defer orch.Close()

	t, err := orch.AssignTask(args[0], args[1], models.TaskPriority(taskPriority), input)
	if err != nil {
		return err
	}
	fmt.Printf("Queued task %s (%s, %s)\n", t.ID, t.Type, t.Priority)

	if taskWait <= 0 {
		return nil
	}

	deadline := time.Now().Add(taskWait)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		t, err = orch.GetTask(t.ID)
		if err != nil {
			return fmt.Errorf("poll task: %w", err)
		}
		if t.Status.Terminal() {
			printTask(t)
			return nil
		}
	}

	fmt.Printf("%s Task still %s after %s; check later with 'opspilot task show %s'\n",
		color.YellowString("⚠"), t.Status, taskWait, t.ID)
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.GetTask(args[0])
	if err != nil {
		return err
	}
	printTask(t)
	return nil
}

func printTask(t *models.Task) {
	status := string(t.Status)
	switch t.Status {
	case models.TaskStatusCompleted:
		status = color.GreenString(status)
	case models.TaskStatusFailed:
		status = color.RedString(status)
	}

	fmt.Printf("Task %s\n", t.ID)
	fmt.Printf("  Type:     %s\n", t.Type)
	fmt.Printf("  Priority: %s\n", t.Priority)
	fmt.Printf("  Status:   %s\n", status)
	if t.StartedAt != nil && t.CompletedAt != nil {
		fmt.Printf("  Took:     %s\n", t.CompletedAt.Sub(*t.StartedAt).Round(time.Millisecond))
	}
	if t.Error != "" {
		fmt.Printf("  Error:    %s\n", t.Error)
	}
	if len(t.Output) > 0 {
		out, err := json.MarshalIndent(t.Output, "  ", "  ")
		if err == nil {
			fmt.Printf("  Output:   %s\n", out)
		}
	}
}
