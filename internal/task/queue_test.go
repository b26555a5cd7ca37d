package task

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

func testStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createAgent(t *testing.T, db *state.DB, domain models.DomainType) *models.Agent {
	t.Helper()
	a := &models.Agent{
		ID:        uuid.New().String(),
		ProjectID: "proj-1",
		Name:      string(domain) + "-agent",
		Domain:    domain,
		Status:    models.AgentStatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.CreateAgent(a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}

// testQueue wires a queue to a channel that receives terminal tasks.
func testQueue(t *testing.T, db *state.DB) (*Queue, chan *models.Task) {
	t.Helper()
	done := make(chan *models.Task, 16)
	q := NewQueue(QueueConfig{
		Store:      db,
		OnTerminal: func(task *models.Task) { done <- task },
	})
	t.Cleanup(q.Stop)
	return q, done
}

func waitTerminal(t *testing.T, done chan *models.Task, id string) *models.Task {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case task := <-done:
			if task.ID == id {
				return task
			}
		case <-deadline:
			t.Fatalf("task %s never reached a terminal state", id)
		}
	}
}

func TestEnqueueRunsHandlerToCompletion(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, done := testQueue(t, db)

	q.Register(models.DomainReliability, "monitoring", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			return map[string]any{"checked": true}, nil
		}))

	enq, err := q.Enqueue(agent.ID, "monitoring", models.PriorityMedium, map[string]any{"target": "api"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enq.Status != models.TaskStatusPending {
		t.Errorf("enqueue status = %q, want pending", enq.Status)
	}

	waitTerminal(t, done, enq.ID)

	got, err := db.GetTask(enq.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, want completed (error: %s)", got.Status, got.Error)
	}
	if got.Output["checked"] != true {
		t.Errorf("output = %v, want checked=true", got.Output)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("terminal task must have started_at and completed_at")
	}
	if got.CompletedAt.Before(*got.StartedAt) {
		t.Error("completed_at precedes started_at")
	}
}

func TestEnqueueUnsupportedTypeFailsTaskNotCaller(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainSecurity)
	q, done := testQueue(t, db)

	// No handler registered for (security, "monitoring").
	enq, err := q.Enqueue(agent.ID, "monitoring", models.PriorityMedium, nil)
	if err != nil {
		t.Fatalf("enqueue should not surface dispatch errors, got: %v", err)
	}

	got := waitTerminal(t, done, enq.ID)
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "unsupported task type") {
		t.Errorf("error = %q, want unsupported task type message", got.Error)
	}
}

func TestHandlerErrorFailsTask(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainPerformance)
	q, done := testQueue(t, db)

	q.Register(models.DomainPerformance, "optimization", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			return nil, errors.New("no metrics available")
		}))

	enq, err := q.Enqueue(agent.ID, "optimization", models.PriorityLow, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got := waitTerminal(t, done, enq.ID)
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.Error != "no metrics available" {
		t.Errorf("error = %q, want handler error message", got.Error)
	}
}

func TestHandlerPanicFailsTaskWithoutKillingLane(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainDeployment)
	q, done := testQueue(t, db)

	calls := 0
	q.Register(models.DomainDeployment, "deploy", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			calls++
			if calls == 1 {
				panic("boom")
			}
			return map[string]any{"ok": true}, nil
		}))

	first, err := q.Enqueue(agent.ID, "deploy", models.PriorityHigh, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got := waitTerminal(t, done, first.ID)
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("panicked task status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "handler panic") {
		t.Errorf("error = %q, want panic message", got.Error)
	}

	// The lane must survive and run the next task.
	second, err := q.Enqueue(agent.ID, "deploy", models.PriorityHigh, nil)
	if err != nil {
		t.Fatalf("enqueue after panic: %v", err)
	}
	got = waitTerminal(t, done, second.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("follow-up task status = %q, want completed", got.Status)
	}
}

func TestTasksForSameAgentAreSerialized(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, done := testQueue(t, db)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	q.Register(models.DomainReliability, "monitoring", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil, nil
		}))

	var ids []string
	for i := 0; i < 5; i++ {
		enq, err := q.Enqueue(agent.ID, "monitoring", models.PriorityMedium, nil)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		ids = append(ids, enq.ID)
	}
	for _, id := range ids {
		waitTerminal(t, done, id)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max concurrent tasks for one agent = %d, want 1", maxInFlight)
	}
}

func TestDifferentAgentsRunConcurrently(t *testing.T) {
	db := testStore(t)
	slow := createAgent(t, db, models.DomainReliability)
	fast := createAgent(t, db, models.DomainSecurity)
	q, done := testQueue(t, db)

	release := make(chan struct{})
	q.Register(models.DomainReliability, "monitoring", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			select {
			case <-release:
			case <-time.After(5 * time.Second):
				return nil, errors.New("never released")
			}
			return nil, nil
		}))
	q.Register(models.DomainSecurity, "vulnerability-scan", HandlerFunc(
		func(ctx context.Context, a *models.Agent, tk *models.Task) (map[string]any, error) {
			close(release)
			return nil, nil
		}))

	blocked, err := q.Enqueue(slow.ID, "monitoring", models.PriorityMedium, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	unblocker, err := q.Enqueue(fast.ID, "vulnerability-scan", models.PriorityMedium, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// If the second agent's lane were blocked behind the first agent's
	// task, release would never close and both would time out.
	waitTerminal(t, done, unblocker.ID)
	got := waitTerminal(t, done, blocked.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("blocked task status = %q, want completed", got.Status)
	}
}

func TestEnqueueValidation(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, _ := testQueue(t, db)

	if _, err := q.Enqueue(agent.ID, "", models.PriorityMedium, nil); err == nil {
		t.Error("expected error for empty task type")
	} else {
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("empty type error = %T, want *models.ValidationError", err)
		}
	}

	if _, err := q.Enqueue(agent.ID, "monitoring", "extreme", nil); err == nil {
		t.Error("expected error for unknown priority")
	}

	if _, err := q.Enqueue("no-such-agent", "monitoring", models.PriorityMedium, nil); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestEnqueueDefaultsPriorityToMedium(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, _ := testQueue(t, db)

	enq, err := q.Enqueue(agent.ID, "monitoring", "", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enq.Priority != models.PriorityMedium {
		t.Errorf("priority = %q, want medium", enq.Priority)
	}
}

func TestReaperFailsOverdueRunningTasks(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, _ := testQueue(t, db)

	started := time.Now().UTC().Add(-time.Hour)
	overdue := &models.Task{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		ProjectID: agent.ProjectID,
		Type:      "monitoring",
		Priority:  models.PriorityMedium,
		Status:    models.TaskStatusRunning,
		CreatedAt: started,
		StartedAt: &started,
	}
	if err := db.CreateTask(overdue); err != nil {
		t.Fatalf("create task: %v", err)
	}

	q.reapOverdue()

	got, err := db.GetTask(overdue.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "liveness limit") {
		t.Errorf("error = %q, want liveness limit message", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("reaped task must have completed_at")
	}
}

func TestReaperLeavesFreshTasksAlone(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)
	q, _ := testQueue(t, db)

	started := time.Now().UTC()
	fresh := &models.Task{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		ProjectID: agent.ProjectID,
		Type:      "monitoring",
		Priority:  models.PriorityMedium,
		Status:    models.TaskStatusRunning,
		CreatedAt: started,
		StartedAt: &started,
	}
	if err := db.CreateTask(fresh); err != nil {
		t.Fatalf("create task: %v", err)
	}

	q.reapOverdue()

	got, err := db.GetTask(fresh.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
}

// staleScanStore serves a reaper scan from a fixed snapshot, standing in for
// a task that reaches a terminal state between the scan and the write.
type staleScanStore struct {
	*state.DB
	snapshot []models.Task
}

func (s *staleScanStore) ListRunningTasksStartedBefore(cutoff time.Time) ([]models.Task, error) {
	return s.snapshot, nil
}

func TestReaperCannotOverwriteTaskCompletedAfterScan(t *testing.T) {
	db := testStore(t)
	agent := createAgent(t, db, models.DomainReliability)

	started := time.Now().UTC().Add(-time.Hour)
	completed := time.Now().UTC()
	finished := &models.Task{
		ID:          uuid.New().String(),
		AgentID:     agent.ID,
		ProjectID:   agent.ProjectID,
		Type:        "monitoring",
		Priority:    models.PriorityMedium,
		Status:      models.TaskStatusCompleted,
		Output:      map[string]any{"checked": true},
		CreatedAt:   started,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if err := db.CreateTask(finished); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// The scan snapshot still shows the task running and overdue.
	stale := *finished
	stale.Status = models.TaskStatusRunning
	stale.Output = nil
	stale.CompletedAt = nil

	done := make(chan *models.Task, 1)
	q := NewQueue(QueueConfig{
		Store:      &staleScanStore{DB: db, snapshot: []models.Task{stale}},
		OnTerminal: func(task *models.Task) { done <- task },
	})
	t.Cleanup(q.Stop)

	q.reapOverdue()

	got, err := db.GetTask(finished.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Fatalf("status = %q, want completed to stick", got.Status)
	}
	if got.Error != "" {
		t.Errorf("error = %q, want empty", got.Error)
	}
	if got.Output["checked"] != true {
		t.Errorf("output = %v, want original output kept", got.Output)
	}
	select {
	case tk := <-done:
		t.Errorf("terminal hook fired for already-finished task %s", tk.ID)
	default:
	}
}
