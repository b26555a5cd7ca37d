package state

import (
	"testing"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

func TestTaskRoundTrip(t *testing.T) {
	db := testDB(t)

	task := &models.Task{
		ID:        "task-1",
		AgentID:   "agent-1",
		ProjectID: "proj-1",
		Type:      "incident-response",
		Priority:  models.PriorityUrgent,
		Status:    models.TaskStatusPending,
		Input:     map[string]any{"incident_id": "inc-1"},
		CreatedAt: time.Now(),
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Type != "incident-response" {
		t.Errorf("Type = %q, want incident-response", got.Type)
	}
	if got.Priority != models.PriorityUrgent {
		t.Errorf("Priority = %q, want urgent", got.Priority)
	}
	if got.Input["incident_id"] != "inc-1" {
		t.Errorf("Input incident_id = %v, want inc-1", got.Input["incident_id"])
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("timestamps should be nil for a pending task")
	}
}

func TestTaskLifecycleUpdate(t *testing.T) {
	db := testDB(t)

	task := &models.Task{
		ID:        "task-1",
		AgentID:   "agent-1",
		ProjectID: "proj-1",
		Type:      "monitoring",
		Priority:  models.PriorityMedium,
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	started := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &started
	if err := db.UpdateTask(task); err != nil {
		t.Fatalf("update to running: %v", err)
	}

	completed := time.Now()
	task.Status = models.TaskStatusCompleted
	task.Output = map[string]any{"cpu_usage": 42.0}
	task.CompletedAt = &completed
	if err := db.UpdateTask(task); err != nil {
		t.Fatalf("update to completed: %v", err)
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Output["cpu_usage"] != 42.0 {
		t.Errorf("Output cpu_usage = %v, want 42.0", got.Output["cpu_usage"])
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("StartedAt and CompletedAt should both be set")
	}
}

func TestListRunningTasksStartedBefore(t *testing.T) {
	db := testDB(t)

	old := time.Now().Add(-20 * time.Minute)
	recent := time.Now()

	for _, tc := range []struct {
		id      string
		started time.Time
	}{
		{"task-old", old},
		{"task-recent", recent},
	} {
		started := tc.started
		task := &models.Task{
			ID:        tc.id,
			AgentID:   "agent-1",
			ProjectID: "proj-1",
			Type:      "monitoring",
			Priority:  models.PriorityLow,
			Status:    models.TaskStatusRunning,
			CreatedAt: tc.started,
			StartedAt: &started,
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	stuck, err := db.ListRunningTasksStartedBefore(time.Now().Add(-10 * time.Minute))
	if err != nil {
		t.Fatalf("list running tasks: %v", err)
	}
	if len(stuck) != 1 {
		t.Fatalf("stuck tasks = %d, want 1", len(stuck))
	}
	if stuck[0].ID != "task-old" {
		t.Errorf("stuck task = %q, want task-old", stuck[0].ID)
	}
}

func TestListRecentTasksOrder(t *testing.T) {
	db := testDB(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		task := &models.Task{
			ID:        []string{"task-a", "task-b", "task-c"}[i],
			AgentID:   "agent-1",
			ProjectID: "proj-1",
			Type:      "monitoring",
			Priority:  models.PriorityLow,
			Status:    models.TaskStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}

	tasks, err := db.ListRecentTasks("proj-1", 2)
	if err != nil {
		t.Fatalf("list recent tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "task-c" {
		t.Errorf("newest task = %q, want task-c", tasks[0].ID)
	}
}

func TestFinishTaskWritesTerminalState(t *testing.T) {
	db := testDB(t)

	started := time.Now()
	task := &models.Task{
		ID:        "task-1",
		AgentID:   "agent-1",
		ProjectID: "proj-1",
		Type:      "monitoring",
		Priority:  models.PriorityMedium,
		Status:    models.TaskStatusRunning,
		CreatedAt: started,
		StartedAt: &started,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	completed := time.Now()
	task.Status = models.TaskStatusCompleted
	task.Output = map[string]any{"checked": true}
	task.CompletedAt = &completed

	updated, err := db.FinishTask(task)
	if err != nil {
		t.Fatalf("finish task: %v", err)
	}
	if !updated {
		t.Fatal("finish of a running task should report an update")
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Output["checked"] != true {
		t.Errorf("output = %v, want checked=true", got.Output)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestFinishTaskNeverOverwritesTerminalStatus(t *testing.T) {
	db := testDB(t)

	started := time.Now()
	completed := time.Now()
	task := &models.Task{
		ID:          "task-1",
		AgentID:     "agent-1",
		ProjectID:   "proj-1",
		Type:        "monitoring",
		Priority:    models.PriorityMedium,
		Status:      models.TaskStatusCompleted,
		Output:      map[string]any{"checked": true},
		CreatedAt:   started,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	late := *task
	late.Status = models.TaskStatusFailed
	late.Error = "task exceeded liveness limit of 10m0s"
	late.Output = nil

	updated, err := db.FinishTask(&late)
	if err != nil {
		t.Fatalf("finish task: %v", err)
	}
	if updated {
		t.Error("finish of a completed task should not report an update")
	}

	got, err := db.GetTask("task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, want completed to stick", got.Status)
	}
	if got.Error != "" {
		t.Errorf("error = %q, want empty", got.Error)
	}
	if got.Output["checked"] != true {
		t.Errorf("output = %v, want original output kept", got.Output)
	}
}
