package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/pkg/models"
)

var (
	decideContext []string
	decideOptions []string
)

var decideCmd = &cobra.Command{
	Use:   "decide <agent-id>",
	Short: "Ask the decision engine for an ad-hoc recommendation",
	Long: `Consult the intelligent decision engine on behalf of an agent.

Context key=value pairs describe the situation. Options enumerate the
choices the engine may pick from; without any, it chooses between
no-action, investigate, and escalate.

Examples:
  opspilot decide <id> --context error_rate=7.2 --context service=checkout
  opspilot decide <id> --context disk_usage=91 \
      --option "expand-volume=Grow the data volume" \
      --option "purge-logs=Delete logs older than 7 days"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().StringArrayVar(&decideContext, "context", nil, "Situation context as key=value (repeatable)")
	decideCmd.Flags().StringArrayVar(&decideOptions, "option", nil, "Choice as action=description (repeatable)")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	decCtx, err := parsePairs(decideContext)
	if err != nil {
		return err
	}
	options, err := parseOptions(decideOptions)
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

	decision, err := orch.MakeIntelligentDecision(cmd.Context(), args[0], decCtx, options)
	if err != nil {
		return err
	}

	if decision.Fallback() {
		fmt.Printf("%s The oracle was unreachable; this is a fallback decision.\n",
			color.YellowString("⚠"))
	}
	fmt.Printf("Action:     %s\n", color.GreenString(decision.Action))
	fmt.Printf("Confidence: %.2f\n", decision.Confidence)
	fmt.Printf("Reasoning:  %s\n", decision.Reasoning)
	return nil
}

func parseOptions(pairs []string) ([]models.DecisionOption, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make([]models.DecisionOption, 0, len(pairs))
	for _, p := range pairs {
		action, desc, ok := strings.Cut(p, "=")
		if !ok || action == "" || desc == "" {
			return nil, fmt.Errorf("invalid option %q, want action=description", p)
		}
		options = append(options, models.DecisionOption{Action: action, Description: desc})
	}
	return options, nil
}
