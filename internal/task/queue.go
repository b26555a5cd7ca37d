// Package task provides the asynchronous task queue and executor. Tasks are
// persisted immediately on enqueue and executed on per-agent lanes, so work
// for one agent is serialized while different agents run concurrently.
package task

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

const (
	// DefaultLaneSize is the per-agent lane buffer. A full lane applies
	// backpressure to Enqueue instead of dropping work.
	DefaultLaneSize = 64
	// DefaultLivenessLimit is how long a task may stay running before the
	// reaper fails it.
	DefaultLivenessLimit = 10 * time.Minute
	// reaperInterval is how often the reaper scans for overdue tasks.
	reaperInterval = time.Minute
)

// Store is the persistence surface the queue needs.
type Store interface {
	state.AgentStore
	state.TaskStore
}

// QueueConfig contains configuration options for the Queue.
type QueueConfig struct {
	// Store persists tasks and resolves agents.
	Store Store
	// LaneSize overrides DefaultLaneSize when positive.
	LaneSize int
	// LivenessLimit overrides DefaultLivenessLimit when positive.
	LivenessLimit time.Duration
	// OnTerminal, if set, is invoked after a task reaches a terminal state.
	OnTerminal func(t *models.Task)
}

// Queue persists tasks and runs them through registered handlers.
type Queue struct {
	store         Store
	laneSize      int
	livenessLimit time.Duration
	onTerminal    func(t *models.Task)

	// handlers is the dispatch table, keyed by (domain, task type).
	handlers map[handlerKey]Handler

	// lanes tracks the per-agent execution lanes.
	lanes map[string]chan *models.Task
	mu    sync.Mutex

	// ctx and cancel for queue lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks lane goroutines and the reaper
	wg sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// NewQueue creates a queue and starts its liveness reaper.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.LaneSize <= 0 {
		cfg.LaneSize = DefaultLaneSize
	}
	if cfg.LivenessLimit <= 0 {
		cfg.LivenessLimit = DefaultLivenessLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:         cfg.Store,
		laneSize:      cfg.LaneSize,
		livenessLimit: cfg.LivenessLimit,
		onTerminal:    cfg.OnTerminal,
		handlers:      make(map[handlerKey]Handler),
		lanes:         make(map[string]chan *models.Task),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}

	q.wg.Add(1)
	go q.reapLoop()

	return q
}

// Enqueue validates, persists, and schedules a task for an agent. The task
// is returned in pending state; execution happens asynchronously on the
// agent's lane. A full lane blocks until space frees up.
func (q *Queue) Enqueue(agentID, taskType string, priority models.TaskPriority, input map[string]any) (*models.Task, error) {
	if taskType == "" {
		return nil, &models.ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, &models.ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
	}

	agent, err := q.store.GetAgent(agentID)
	if err != nil {
		return nil, fmt.Errorf("resolve agent: %w", err)
	}

	t := &models.Task{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		ProjectID: agent.ProjectID,
		Type:      taskType,
		Priority:  priority,
		Status:    models.TaskStatusPending,
		Input:     input,
		CreatedAt: q.now().UTC(),
	}
	if err := q.store.CreateTask(t); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	select {
	case q.laneFor(agent.ID) <- t:
	case <-q.ctx.Done():
		return nil, fmt.Errorf("queue stopped")
	}

	return t, nil
}

// laneFor returns the agent's lane, starting its worker on first use.
func (q *Queue) laneFor(agentID string) chan *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane, ok := q.lanes[agentID]
	if !ok {
		lane = make(chan *models.Task, q.laneSize)
		q.lanes[agentID] = lane
		q.wg.Add(1)
		go q.runLane(agentID, lane)
	}
	return lane
}

// runLane executes tasks for one agent, one at a time, in arrival order.
func (q *Queue) runLane(agentID string, lane chan *models.Task) {
	defer q.wg.Done()
	for {
		select {
		case t := <-lane:
			q.execute(t)
		case <-q.ctx.Done():
			return
		}
	}
}

// execute drives one task from pending to a terminal state. Handler errors
// and panics fail the task; they are never allowed to kill the lane.
func (q *Queue) execute(t *models.Task) {
	started := q.now().UTC()
	t.Status = models.TaskStatusRunning
	t.StartedAt = &started
	if err := q.store.UpdateTask(t); err != nil {
		log.Printf("[task] warning: failed to mark task %s running: %v", t.ID, err)
	}

	agent, err := q.store.GetAgent(t.AgentID)
	if err != nil {
		q.finish(t, nil, fmt.Errorf("resolve agent: %w", err))
		return
	}

	handler, ok := q.handlerFor(agent.Domain, t.Type)
	if !ok {
		q.finish(t, nil, &UnsupportedTaskError{Domain: agent.Domain, Type: t.Type})
		return
	}

	output, err := q.runHandler(handler, agent, t)
	q.finish(t, output, err)
}

// runHandler invokes the handler with panic recovery.
func (q *Queue) runHandler(h Handler, agent *models.Agent, t *models.Task) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Execute(q.ctx, agent, t)
}

// finish writes the terminal state through the store's guarded write, so a
// task already terminal (e.g. reaped while the handler was still running) is
// left untouched even when the reaper races this call.
func (q *Queue) finish(t *models.Task, output map[string]any, execErr error) {
	completed := q.now().UTC()
	t.CompletedAt = &completed
	if execErr != nil {
		t.Status = models.TaskStatusFailed
		t.Error = execErr.Error()
		log.Printf("[task] task %s (%s) failed: %v", t.ID, t.Type, execErr)
	} else {
		t.Status = models.TaskStatusCompleted
		t.Output = output
	}

	updated, err := q.store.FinishTask(t)
	if err != nil {
		log.Printf("[task] warning: failed to finalize task %s: %v", t.ID, err)
		return
	}
	if !updated {
		return
	}
	if q.onTerminal != nil {
		q.onTerminal(t)
	}
}

// reapLoop periodically fails tasks that have been running past the
// liveness limit, so a hung handler cannot occupy its lane's slot forever.
func (q *Queue) reapLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.reapOverdue()
		case <-q.ctx.Done():
			return
		}
	}
}

// reapOverdue fails every running task that started before the cutoff.
func (q *Queue) reapOverdue() {
	cutoff := q.now().UTC().Add(-q.livenessLimit)
	overdue, err := q.store.ListRunningTasksStartedBefore(cutoff)
	if err != nil {
		log.Printf("[task] warning: reaper scan failed: %v", err)
		return
	}

	for i := range overdue {
		t := &overdue[i]
		completed := q.now().UTC()
		t.Status = models.TaskStatusFailed
		t.Error = fmt.Sprintf("task exceeded liveness limit of %s", q.livenessLimit)
		t.CompletedAt = &completed
		updated, err := q.store.FinishTask(t)
		if err != nil {
			log.Printf("[task] warning: failed to reap task %s: %v", t.ID, err)
			continue
		}
		if !updated {
			// Reached a terminal state between the scan and this write.
			continue
		}
		log.Printf("[task] reaped overdue task %s (%s)", t.ID, t.Type)
		if q.onTerminal != nil {
			q.onTerminal(t)
		}
	}
}

// Stop halts lane workers and the reaper. Pending tasks stay persisted and
// remain visible as pending; they are not drained.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}
