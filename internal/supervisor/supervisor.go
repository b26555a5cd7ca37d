// Package supervisor implements the autonomous management loop: a fixed
// interval sweep over every active agent that inspects its domain, raises
// incidents, consults the decision engine, and executes or enqueues
// remediation.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/internal/task"
	"github.com/opspilot/opspilot/pkg/models"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = 2 * time.Minute

// stuckDeploymentLimit is how long a deployment may sit in deploying
// before the deployment inspection treats it as stuck.
const stuckDeploymentLimit = 10 * time.Minute

// Config contains configuration options for the Supervisor.
type Config struct {
	// Store reads agents and operational records.
	Store state.Store
	// Queue receives the tasks the supervisor schedules.
	Queue *task.Queue
	// Decider supplies remediation decisions.
	Decider handler.Decider
	// Executor performs deployment remediation.
	Executor deploy.Executor
	// Interval overrides DefaultInterval when positive.
	Interval time.Duration
	// ControlDir, when set, is watched for pause/stop signal files.
	ControlDir string
	// OnIncident, if set, is invoked for every incident the sweep creates.
	OnIncident func(inc *models.Incident)
	// OnRemediation, if set, is invoked after a remediation is executed.
	OnRemediation func(agentID, action, target string)
	// OnTaskQueued, if set, is invoked for every task the sweep enqueues.
	OnTaskQueued func(t *models.Task)
	// OnTick, if set, is invoked after each completed sweep.
	OnTick func(agents int, took time.Duration)
}

// Supervisor runs the autonomous management sweep.
type Supervisor struct {
	cfg Config

	// tickMu enforces non-overlapping sweeps. A sweep that is still
	// running when the next interval fires causes that interval to be
	// skipped rather than stacking work.
	tickMu sync.Mutex

	signals *Signals

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// New creates a supervisor. Call Start to begin sweeping.
func New(cfg Config) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Start begins the sweep loop and, when a control directory is configured,
// the signal watcher.
func (s *Supervisor) Start() error {
	if s.cfg.ControlDir != "" {
		sig, err := WatchSignals(s.cfg.ControlDir)
		if err != nil {
			return fmt.Errorf("watch control signals: %w", err)
		}
		s.signals = sig
	}

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
	if s.signals != nil {
		s.signals.Close()
	}
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.signals != nil {
				if s.signals.ShouldStop() {
					log.Printf("[supervisor] stop signal received; halting autonomous management")
					return
				}
				if s.signals.ShouldPause() {
					log.Printf("[supervisor] paused by signal file; skipping sweep")
					continue
				}
			}
			s.Tick()
		case <-s.ctx.Done():
			return
		}
	}
}

// Tick runs one sweep over all active agents. If the previous sweep is
// still running the call returns immediately. Each agent is inspected in
// isolation: a panic or error in one agent's inspection is logged and the
// sweep moves on to the next agent.
func (s *Supervisor) Tick() {
	if !s.tickMu.TryLock() {
		log.Printf("[supervisor] previous sweep still running; skipping")
		return
	}
	defer s.tickMu.Unlock()

	start := s.now()
	agents, err := s.cfg.Store.ListAgentsByStatus(models.AgentStatusActive)
	if err != nil {
		log.Printf("[supervisor] warning: failed to list active agents: %v", err)
		return
	}

	for i := range agents {
		agent := &agents[i]
		if err := s.inspect(agent); err != nil {
			log.Printf("[supervisor] agent %s (%s/%s) inspection failed: %v",
				agent.ID, agent.ProjectID, agent.Domain, err)
		}
	}

	if s.cfg.OnTick != nil {
		s.cfg.OnTick(len(agents), s.now().Sub(start))
	}
}

// inspect dispatches one agent to its domain inspection, converting panics
// into errors so one agent cannot take down the sweep.
func (s *Supervisor) inspect(agent *models.Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inspection panic: %v", r)
		}
	}()

	switch agent.Domain {
	case models.DomainReliability:
		return s.inspectReliability(agent)
	case models.DomainSecurity:
		return s.inspectSecurity(agent)
	case models.DomainPerformance:
		return s.inspectPerformance(agent)
	case models.DomainDeployment:
		return s.inspectDeployment(agent)
	default:
		return fmt.Errorf("unknown domain %q", agent.Domain)
	}
}

// enqueue schedules a task and reports it through the hook.
func (s *Supervisor) enqueue(agentID, taskType string, priority models.TaskPriority, input map[string]any) error {
	t, err := s.cfg.Queue.Enqueue(agentID, taskType, priority, input)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	if s.cfg.OnTaskQueued != nil {
		s.cfg.OnTaskQueued(t)
	}
	return nil
}

// raiseIncident persists an incident and reports it through the hook.
func (s *Supervisor) raiseIncident(inc *models.Incident) error {
	if err := s.cfg.Store.CreateIncident(inc); err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	log.Printf("[supervisor] incident %s (%s): %s", inc.ID, inc.Severity, inc.Title)
	if s.cfg.OnIncident != nil {
		s.cfg.OnIncident(inc)
	}
	return nil
}

// remediated reports an executed remediation through the hook.
func (s *Supervisor) remediated(agentID, action, target string) {
	log.Printf("[supervisor] executed remediation %q on %s", action, target)
	if s.cfg.OnRemediation != nil {
		s.cfg.OnRemediation(agentID, action, target)
	}
}
