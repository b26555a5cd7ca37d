package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// stubDecider returns a fixed decision.
type stubDecider struct {
	decision models.Decision
}

func (s *stubDecider) Decide(ctx context.Context, agent *models.Agent, decCtx map[string]any, options []models.DecisionOption) models.Decision {
	return s.decision
}

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	o := New(Config{
		Store:    db,
		Decider:  &stubDecider{decision: models.Decision{Action: "no-action", Confidence: 0.7}},
		Executor: deploy.NewLocalExecutor(),
		// Long cadence so automatic heartbeats do not interfere.
		HeartbeatCadence: time.Hour,
	})
	t.Cleanup(o.Close)
	return o
}

// waitEvent drains the event stream until the wanted type shows up.
func waitEvent(t *testing.T, o *Orchestrator, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-o.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %q never arrived", want)
		}
	}
}

func TestCreateAgentEmitsEvent(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainReliability, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if agent.Name != "reliability-agent" {
		t.Errorf("name = %q, want domain default", agent.Name)
	}

	ev := waitEvent(t, o, EventAgentCreated)
	if ev.AgentID != agent.ID {
		t.Errorf("event agent = %s, want %s", ev.AgentID, agent.ID)
	}
}

func TestCreateAgentRejectsUnknownDomain(t *testing.T) {
	o := testOrchestrator(t)

	_, err := o.CreateAgent("networking", "proj-1", "", nil)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T (%v), want *models.ValidationError", err, err)
	}
}

func TestAssignTaskRunsToCompletion(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainReliability, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	tk, err := o.AssignTask(agent.ID, "monitoring", models.PriorityMedium, nil)
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}
	if tk.Status != models.TaskStatusPending {
		t.Errorf("assigned status = %q, want pending", tk.Status)
	}

	waitEvent(t, o, EventTaskQueued)
	waitEvent(t, o, EventTaskCompleted)

	got, err := o.GetTask(tk.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, want completed (error: %s)", got.Status, got.Error)
	}
}

func TestDeploymentTaskFinishesAsynchronously(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainDeployment, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	_, err = o.AssignTask(agent.ID, "deployment", models.PriorityHigh, map[string]any{"version": "v2.0.0"})
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}

	waitEvent(t, o, EventTaskCompleted)
	ev := waitEvent(t, o, EventDeploymentFinished)
	if ev.DeploymentID == "" {
		t.Error("deployment event missing deployment ID")
	}
}

func TestUnsupportedTaskEmitsFailureEvent(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainSecurity, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	// Security agents do not handle monitoring tasks.
	if _, err := o.AssignTask(agent.ID, "monitoring", models.PriorityMedium, nil); err != nil {
		t.Fatalf("assign should accept the task, got: %v", err)
	}

	ev := waitEvent(t, o, EventTaskFailed)
	if ev.Message == "" {
		t.Error("failure event should carry the error message")
	}
}

func TestMakeIntelligentDecision(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainPerformance, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	d, err := o.MakeIntelligentDecision(context.Background(), agent.ID, map[string]any{"question": "scale?"}, nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != "no-action" {
		t.Errorf("action = %q, want no-action", d.Action)
	}

	if _, err := o.MakeIntelligentDecision(context.Background(), "no-such-agent", nil, nil); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("unknown agent error = %v, want ErrNotFound", err)
	}
}

func TestAgentHealthAfterRegistration(t *testing.T) {
	o := testOrchestrator(t)

	agent, err := o.CreateAgent(models.DomainReliability, "proj-1", "", nil)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	// Registration starts heartbeat tracking with an immediate beat.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if h := o.AgentHealth(agent.ID); h.Status == models.HealthHealthy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("agent never became healthy after registration")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
