package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/internal/registry"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/internal/supervisor"
	"github.com/opspilot/opspilot/internal/task"
	"github.com/opspilot/opspilot/pkg/models"
)

// DefaultEventBuffer is the event channel capacity.
const DefaultEventBuffer = 100

// Config contains configuration options for the Orchestrator.
type Config struct {
	// Store is the persistence backend.
	Store state.Store
	// Decider supplies remediation decisions.
	Decider handler.Decider
	// Executor performs deployment operations.
	Executor deploy.Executor
	// Defaults overrides the built-in per-domain agent configuration.
	Defaults map[models.DomainType]map[string]any
	// SupervisorInterval overrides the autonomous sweep cadence.
	SupervisorInterval time.Duration
	// ControlDir, when set, is watched for supervisor pause/stop signals.
	ControlDir string
	// LaneSize overrides the per-agent task lane buffer.
	LaneSize int
	// LivenessLimit overrides how long a task may run before being reaped.
	LivenessLimit time.Duration
	// HeartbeatCadence overrides the automatic heartbeat interval.
	HeartbeatCadence time.Duration
	// HeartbeatLifetime overrides how long automatic heartbeats run.
	HeartbeatLifetime time.Duration
	// EventBuffer overrides DefaultEventBuffer when positive.
	EventBuffer int
	// DebugLogPath, when set, appends a debug trace of orchestrator activity
	// to the given file.
	DebugLogPath string
}

// Orchestrator is the facade over agent registration, task assignment,
// intelligent decisions, and autonomous management.
type Orchestrator struct {
	store    state.Store
	registry *registry.Registry
	queue    *task.Queue
	decider  handler.Decider
	sup      *supervisor.Supervisor
	emitter  *EventEmitter
	debug    *DebugLogger
}

// New wires the orchestration core together. Call Close when done.
func New(cfg Config) *Orchestrator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	debug, err := NewDebugLogger(cfg.DebugLogPath)
	if err != nil {
		log.Printf("[orchestrator] debug log unavailable: %v", err)
		debug = NopLogger()
	}

	o := &Orchestrator{
		store:   cfg.Store,
		decider: cfg.Decider,
		emitter: NewEventEmitter(cfg.EventBuffer),
		debug:   debug,
	}

	var regOpts []registry.Option
	if cfg.Defaults != nil {
		regOpts = append(regOpts, registry.WithDefaults(cfg.Defaults))
	}
	if cfg.HeartbeatCadence > 0 {
		regOpts = append(regOpts, registry.WithHeartbeatCadence(cfg.HeartbeatCadence))
	}
	if cfg.HeartbeatLifetime > 0 {
		regOpts = append(regOpts, registry.WithHeartbeatLifetime(cfg.HeartbeatLifetime))
	}
	o.registry = registry.New(cfg.Store, regOpts...)

	o.queue = task.NewQueue(task.QueueConfig{
		Store:         cfg.Store,
		LaneSize:      cfg.LaneSize,
		LivenessLimit: cfg.LivenessLimit,
		OnTerminal:    o.taskFinished,
	})

	handler.RegisterAll(o.queue, handler.Deps{
		Store:               cfg.Store,
		Decider:             cfg.Decider,
		Executor:            cfg.Executor,
		DeploymentCompleted: o.deploymentFinished,
	})

	o.sup = supervisor.New(supervisor.Config{
		Store:      cfg.Store,
		Queue:      o.queue,
		Decider:    cfg.Decider,
		Executor:   cfg.Executor,
		Interval:   cfg.SupervisorInterval,
		ControlDir: cfg.ControlDir,
		OnIncident: func(inc *models.Incident) {
			o.emit(Event{
				Type:         EventIncidentCreated,
				AgentID:      inc.AgentID,
				IncidentID:   inc.ID,
				DeploymentID: inc.DeploymentID,
				Severity:     inc.Severity,
				Message:      inc.Title,
				Timestamp:    time.Now(),
			})
		},
		OnRemediation: func(agentID, action, target string) {
			o.emit(Event{
				Type:      EventRemediationExecuted,
				AgentID:   agentID,
				Action:    action,
				Message:   fmt.Sprintf("executed %s on %s", action, target),
				Timestamp: time.Now(),
			})
		},
		OnTaskQueued: func(t *models.Task) { o.taskQueued(t) },
		OnTick: func(agents int, took time.Duration) {
			o.emit(Event{
				Type:      EventTickCompleted,
				Message:   fmt.Sprintf("swept %d agents in %s", agents, took.Round(time.Millisecond)),
				Timestamp: time.Now(),
			})
		},
	})

	return o
}

// CreateAgent registers a new agent for a project and domain.
func (o *Orchestrator) CreateAgent(domain models.DomainType, projectID, name string, overrides map[string]any) (*models.Agent, error) {
	agent, err := o.registry.Register(domain, projectID, name, overrides)
	if err != nil {
		return nil, err
	}
	o.emit(Event{
		Type:      EventAgentCreated,
		AgentID:   agent.ID,
		Message:   fmt.Sprintf("%s agent %q for project %s", agent.Domain, agent.Name, agent.ProjectID),
		Timestamp: time.Now(),
	})
	return agent, nil
}

// GetAgent retrieves an agent by ID.
func (o *Orchestrator) GetAgent(agentID string) (*models.Agent, error) {
	return o.registry.Get(agentID)
}

// ListAgents returns all agents for a project.
func (o *Orchestrator) ListAgents(projectID string) ([]models.Agent, error) {
	return o.registry.ListByProject(projectID)
}

// AgentHealth returns the agent's derived heartbeat liveness.
func (o *Orchestrator) AgentHealth(agentID string) registry.Health {
	return o.registry.Health(agentID)
}

// Heartbeat records a manual heartbeat for an agent.
func (o *Orchestrator) Heartbeat(agentID string) error {
	return o.registry.RecordHeartbeat(agentID)
}

// SetAgentStatus transitions an agent's lifecycle status.
func (o *Orchestrator) SetAgentStatus(agentID string, status models.AgentStatus) error {
	return o.registry.SetStatus(agentID, status)
}

// AssignTask queues a task for an agent and returns it in pending state.
func (o *Orchestrator) AssignTask(agentID, taskType string, priority models.TaskPriority, input map[string]any) (*models.Task, error) {
	t, err := o.queue.Enqueue(agentID, taskType, priority, input)
	if err != nil {
		return nil, err
	}
	o.taskQueued(t)
	return t, nil
}

// GetTask retrieves a task by ID.
func (o *Orchestrator) GetTask(taskID string) (*models.Task, error) {
	return o.store.GetTask(taskID)
}

// RecentTasks returns a project's most recent tasks, newest first.
func (o *Orchestrator) RecentTasks(projectID string, limit int) ([]models.Task, error) {
	return o.store.ListRecentTasks(projectID, limit)
}

// Incidents returns a project's most recent incidents, newest first.
func (o *Orchestrator) Incidents(projectID string, limit int) ([]models.Incident, error) {
	return o.store.ListIncidentsByProject(projectID, limit)
}

// defaultDecisionOptions is offered when a caller asks for an ad-hoc
// decision without an explicit option set.
func defaultDecisionOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "no-action", Description: "The situation does not warrant intervention"},
		{Action: "investigate", Description: "Gather more data before acting"},
		{Action: "escalate", Description: "Page a human operator"},
	}
}

// MakeIntelligentDecision consults the decision engine on behalf of an
// agent. The decision itself never fails; the only errors here are an
// unknown agent.
func (o *Orchestrator) MakeIntelligentDecision(ctx context.Context, agentID string, decCtx map[string]any, options []models.DecisionOption) (models.Decision, error) {
	agent, err := o.registry.Get(agentID)
	if err != nil {
		return models.Decision{}, err
	}
	if len(options) == 0 {
		options = defaultDecisionOptions()
	}
	return o.decider.Decide(ctx, agent, decCtx, options), nil
}

// StartAutonomousManagement begins the supervisory sweep loop.
func (o *Orchestrator) StartAutonomousManagement() error {
	return o.sup.Start()
}

// StopAutonomousManagement halts the supervisory sweep loop.
func (o *Orchestrator) StopAutonomousManagement() {
	o.sup.Stop()
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEventCount returns how many events were dropped on a full buffer.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.emitter.DroppedCount()
}

// Close stops the supervisor, task lanes, and heartbeat tracking, then
// closes the event stream. The store is owned by the caller and stays open.
func (o *Orchestrator) Close() {
	o.sup.Stop()
	o.queue.Stop()
	o.registry.Close()
	o.emitter.Close()
	o.debug.Close()
}

// emit writes the event to the debug trace and publishes it on the stream.
func (o *Orchestrator) emit(ev Event) {
	o.debug.Log("%s %s", ev.Type, ev.Message)
	o.emitter.Emit(ev)
}

func (o *Orchestrator) taskQueued(t *models.Task) {
	o.emit(Event{
		Type:      EventTaskQueued,
		AgentID:   t.AgentID,
		TaskID:    t.ID,
		Action:    t.Type,
		Message:   fmt.Sprintf("%s task queued (%s priority)", t.Type, t.Priority),
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) taskFinished(t *models.Task) {
	event := Event{
		Type:      EventTaskCompleted,
		AgentID:   t.AgentID,
		TaskID:    t.ID,
		Action:    t.Type,
		Message:   fmt.Sprintf("%s task completed", t.Type),
		Timestamp: time.Now(),
	}
	if t.Status == models.TaskStatusFailed {
		event.Type = EventTaskFailed
		event.Message = fmt.Sprintf("%s task failed: %s", t.Type, t.Error)
	}
	o.emit(event)
}

func (o *Orchestrator) deploymentFinished(d *models.Deployment) {
	o.emit(Event{
		Type:         EventDeploymentFinished,
		DeploymentID: d.ID,
		Message:      fmt.Sprintf("deployment of %s finished with status %s", d.Version, d.Status),
		Timestamp:    time.Now(),
	})
}
