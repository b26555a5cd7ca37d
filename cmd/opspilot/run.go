package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opspilot/opspilot/internal/config"
	"github.com/opspilot/opspilot/internal/orchestrator"
)

var (
	runInterval   time.Duration
	runControlDir string
	runVerbose    bool
	debugLogPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the autonomous management engine",
	Long: `Start the OpsPilot engine in the foreground.

The engine executes queued tasks and sweeps the project's agents on the
supervisory interval, remediating what it finds. Events stream to stdout
until interrupted with Ctrl+C.

Drop a file named 'pause' or 'stop' into the control directory to pause
or stop the supervisory loop without killing the process.`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Override the supervisory sweep interval")
	runCmd.Flags().StringVar(&runControlDir, "control-dir", "", "Directory watched for pause/stop signal files")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print supervisory tick events")
	runCmd.Flags().StringVar(&debugLogPath, "debug-log", "", "Append a debug trace to this file")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runInterval > 0 {
		cfg.Supervisor.Interval = runInterval
	}
	if runControlDir != "" {
		cfg.Supervisor.ControlDir = runControlDir
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

	if err := orch.StartAutonomousManagement(); err != nil {
		return fmt.Errorf("start autonomous management: %w", err)
	}

	fmt.Printf("%s OpsPilot engine running (sweep every %s, db %s)\n",
		color.GreenString("✓"), cfg.Supervisor.Interval, db.Path())
	fmt.Println("Press Ctrl+C to stop.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			orch.StopAutonomousManagement()
			if dropped := orch.DroppedEventCount(); dropped > 0 {
				fmt.Printf("%s %d events were dropped from the stream\n",
					color.YellowString("⚠"), dropped)
			}
			return nil
		case ev, ok := <-orch.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev orchestrator.Event) {
	if ev.Type == orchestrator.EventTickCompleted && !runVerbose {
		return
	}

	ts := ev.Timestamp.Format("15:04:05")
	label := string(ev.Type)
	switch ev.Type {
	case orchestrator.EventTaskFailed, orchestrator.EventIncidentCreated:
		label = color.RedString(label)
	case orchestrator.EventTaskCompleted, orchestrator.EventDeploymentFinished,
		orchestrator.EventRemediationExecuted:
		label = color.GreenString(label)
	case orchestrator.EventTickCompleted:
		label = color.New(color.Faint).Sprint(label)
	default:
		label = color.YellowString(label)
	}
	fmt.Printf("%s  %-24s %s\n", ts, label, ev.Message)
}
