// Package orchestrator is the caller-facing core: it wires the registry,
// task queue, decision engine, and supervisor together behind one facade.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventAgentCreated indicates an agent was registered.
	EventAgentCreated EventType = "agent_created"
	// EventTaskQueued indicates a task was accepted for execution.
	EventTaskQueued EventType = "task_queued"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventIncidentCreated indicates the supervisor raised an incident.
	EventIncidentCreated EventType = "incident_created"
	// EventRemediationExecuted indicates the supervisor executed a remediation.
	EventRemediationExecuted EventType = "remediation_executed"
	// EventDeploymentFinished indicates a deployment's async second phase ended.
	EventDeploymentFinished EventType = "deployment_finished"
	// EventTickCompleted indicates one supervisory sweep finished.
	EventTickCompleted EventType = "tick_completed"
)

// Event represents an event emitted by the orchestrator. The TUI and any
// other subscriber consume these to track autonomous activity.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// IncidentID is the ID of the related incident, if applicable.
	IncidentID string
	// DeploymentID is the ID of the related deployment, if applicable.
	DeploymentID string
	// Action is the remediation or task action involved, if applicable.
	Action string
	// Severity is the incident severity, if applicable.
	Severity models.IncidentSeverity
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter provides a thread-safe, bounded event stream. When the
// buffer is full and the subscriber does not drain in time, events are
// dropped rather than blocking the orchestration core.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, giving a slow subscriber a short grace period
// before the event is dropped.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] warning: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
func (e *EventEmitter) Close() {
	close(e.events)
}
