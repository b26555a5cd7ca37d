package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/internal/task"
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

// stubDecider returns a fixed decision.
type stubDecider struct {
	decision models.Decision
	calls    int
}

func (s *stubDecider) Decide(ctx context.Context, agent *models.Agent, decCtx map[string]any, options []models.DecisionOption) models.Decision {
	s.calls++
	return s.decision
}

// harness bundles a supervisor with observation channels for its hooks.
type harness struct {
	sup       *Supervisor
	db        *state.DB
	executor  *deploy.LocalExecutor
	decider   *stubDecider
	incidents []*models.Incident
	queued    []*models.Task
	ticks     int
}

func newHarness(t *testing.T, action string) *harness {
	t.Helper()
	db := testStore(t)
	h := &harness{
		db:       db,
		executor: deploy.NewLocalExecutor(),
		decider:  &stubDecider{decision: models.Decision{Action: action, Reasoning: "test", Confidence: 0.9}},
	}

	q := task.NewQueue(task.QueueConfig{Store: db})
	t.Cleanup(q.Stop)

	h.sup = New(Config{
		Store:         db,
		Queue:         q,
		Decider:       h.decider,
		Executor:      h.executor,
		OnIncident:    func(inc *models.Incident) { h.incidents = append(h.incidents, inc) },
		OnTaskQueued:  func(tk *models.Task) { h.queued = append(h.queued, tk) },
		OnRemediation: func(agentID, action, target string) {},
		OnTick:        func(agents int, took time.Duration) { h.ticks++ },
	})
	t.Cleanup(h.sup.Stop)
	return h
}

func (h *harness) agent(t *testing.T, domain models.DomainType, config map[string]any) *models.Agent {
	t.Helper()
	a := &models.Agent{
		ID:        uuid.New().String(),
		ProjectID: "proj-1",
		Name:      string(domain) + "-agent",
		Domain:    domain,
		Status:    models.AgentStatusActive,
		Config:    config,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.db.CreateAgent(a); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return a
}

func (h *harness) deployment(t *testing.T, status models.DeploymentStatus, age time.Duration) *models.Deployment {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	d := &models.Deployment{
		ID:          uuid.New().String(),
		ProjectID:   "proj-1",
		Version:     "v1.0.0",
		Strategy:    "rolling",
		Environment: "production",
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if err := h.db.CreateDeployment(d); err != nil {
		t.Fatalf("create deployment: %v", err)
	}
	return d
}

func (h *harness) cpuSamples(t *testing.T, values []float64) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Duration(len(values)) * time.Minute)
	for i, v := range values {
		m := &models.PerformanceMetric{
			ID:         uuid.New().String(),
			ProjectID:  "proj-1",
			Name:       models.MetricCPU,
			Value:      v,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := h.db.CreateMetric(m); err != nil {
			t.Fatalf("create metric: %v", err)
		}
	}
}

func (h *harness) queuedTypes() []string {
	var types []string
	for _, tk := range h.queued {
		types = append(types, tk.Type)
	}
	return types
}

func TestUnhealthyDeploymentRaisesExactlyOneIncidentPerTick(t *testing.T) {
	h := newHarness(t, "scale-resources")
	h.agent(t, models.DomainReliability, nil)
	d := h.deployment(t, models.DeploymentDeployed, time.Hour)
	h.executor.MarkRunning(d.ID, false)

	h.sup.Tick()

	if len(h.incidents) != 1 {
		t.Fatalf("incidents after tick = %d, want 1", len(h.incidents))
	}
	if h.incidents[0].DeploymentID != d.ID {
		t.Errorf("incident deployment = %s, want %s", h.incidents[0].DeploymentID, d.ID)
	}

	got, err := h.db.GetIncident(h.incidents[0].ID)
	if err != nil {
		t.Fatalf("get incident: %v", err)
	}
	if got.Decision == nil || got.Decision.Action != "scale-resources" {
		t.Errorf("incident decision = %+v, want scale-resources recorded", got.Decision)
	}
}

func TestHealthyDeploymentRaisesNothing(t *testing.T) {
	h := newHarness(t, "scale-resources")
	h.agent(t, models.DomainReliability, nil)
	h.deployment(t, models.DeploymentDeployed, time.Hour)

	h.sup.Tick()

	if len(h.incidents) != 0 {
		t.Errorf("incidents = %d, want 0", len(h.incidents))
	}
	if h.decider.calls != 0 {
		t.Errorf("decider consulted %d times, want 0", h.decider.calls)
	}
}

func TestElevatedErrorRateRaisesDetectionOnlyIncident(t *testing.T) {
	h := newHarness(t, "unused")
	h.agent(t, models.DomainReliability, map[string]any{"error_rate_threshold": 5.0})

	now := time.Now().UTC()
	for _, v := range []float64{8, 9, 10} {
		m := &models.PerformanceMetric{
			ID:         uuid.New().String(),
			ProjectID:  "proj-1",
			Name:       models.MetricErrorRate,
			Value:      v,
			RecordedAt: now.Add(-time.Minute),
		}
		if err := h.db.CreateMetric(m); err != nil {
			t.Fatalf("create metric: %v", err)
		}
	}

	h.sup.Tick()

	if len(h.incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(h.incidents))
	}
	if h.incidents[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want medium", h.incidents[0].Severity)
	}
	// Detection only: no decision is made for error-rate incidents.
	if h.decider.calls != 0 {
		t.Errorf("decider consulted %d times, want 0", h.decider.calls)
	}
}

func TestStaleScanEnqueuesVulnerabilityScan(t *testing.T) {
	h := newHarness(t, "unused")
	agent := h.agent(t, models.DomainSecurity, map[string]any{"scan_cadence": "1h"})

	old := &models.SecurityScan{
		ID:        uuid.New().String(),
		ProjectID: "proj-1",
		AgentID:   agent.ID,
		Severity:  models.SeverityLow,
		Resolved:  true,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := h.db.CreateScan(old); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	h.sup.Tick()

	types := h.queuedTypes()
	if len(types) != 1 || types[0] != handler.TypeVulnerabilityScan {
		t.Errorf("queued = %v, want one vulnerability-scan", types)
	}
}

func TestFreshScanEnqueuesNothing(t *testing.T) {
	h := newHarness(t, "unused")
	agent := h.agent(t, models.DomainSecurity, map[string]any{"scan_cadence": "24h"})

	fresh := &models.SecurityScan{
		ID:        uuid.New().String(),
		ProjectID: "proj-1",
		AgentID:   agent.ID,
		Severity:  models.SeverityLow,
		Resolved:  true,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	if err := h.db.CreateScan(fresh); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	h.sup.Tick()

	if len(h.queued) != 0 {
		t.Errorf("queued = %v, want none", h.queuedTypes())
	}
}

func TestAutoPatchDoubleGate(t *testing.T) {
	tests := []struct {
		name         string
		autoPatch    bool
		wantResolved bool
	}{
		{"config enabled", true, true},
		{"config disabled", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "auto-patch")
			agent := h.agent(t, models.DomainSecurity, map[string]any{
				"auto_patch":   tt.autoPatch,
				"scan_cadence": "24h",
			})

			scan := &models.SecurityScan{
				ID:        uuid.New().String(),
				ProjectID: "proj-1",
				AgentID:   agent.ID,
				Severity:  models.SeverityCritical,
				Findings:  []models.Finding{{ID: "CVE-2025-0001", Package: "openssl", Severity: models.SeverityCritical}},
				CreatedAt: time.Now().UTC(),
			}
			if err := h.db.CreateScan(scan); err != nil {
				t.Fatalf("create scan: %v", err)
			}

			h.sup.Tick()

			scans, err := h.db.ListUnresolvedHighSeverityScans("proj-1", 3)
			if err != nil {
				t.Fatalf("list scans: %v", err)
			}
			resolved := len(scans) == 0
			if resolved != tt.wantResolved {
				t.Errorf("scan resolved = %v, want %v", resolved, tt.wantResolved)
			}
			// The decision itself is always recorded, gated or not.
			if h.decider.calls != 1 {
				t.Errorf("decider consulted %d times, want 1", h.decider.calls)
			}
		})
	}
}

func TestCPUTrendBelowLimitSchedulesNothing(t *testing.T) {
	h := newHarness(t, "unused")
	h.agent(t, models.DomainPerformance, map[string]any{"cpu_threshold": 100.0, "memory_threshold": 100.0, "response_time_threshold": 1e9})
	// newest 70, trend (70-50)/5 = 4, predicted 82: under the 85 limit.
	h.cpuSamples(t, []float64{50, 55, 60, 65, 70})

	h.sup.Tick()

	if len(h.queued) != 0 {
		t.Errorf("queued = %v, want none", h.queuedTypes())
	}
}

func TestCPUTrendAboveLimitSchedulesPredictiveScaling(t *testing.T) {
	h := newHarness(t, "unused")
	h.agent(t, models.DomainPerformance, map[string]any{"cpu_threshold": 100.0, "memory_threshold": 100.0, "response_time_threshold": 1e9})
	// newest 80, trend (80-60)/5 = 4, predicted 92: over the 85 limit.
	h.cpuSamples(t, []float64{60, 65, 70, 75, 80})

	h.sup.Tick()

	types := h.queuedTypes()
	if len(types) != 1 || types[0] != handler.TypePredictiveScaling {
		t.Fatalf("queued = %v, want one predictive-scaling", types)
	}
	if pred, ok := h.queued[0].Input["predicted_cpu"].(float64); !ok || pred <= 85 {
		t.Errorf("predicted_cpu = %v, want > 85", h.queued[0].Input["predicted_cpu"])
	}
}

func TestBreachedThresholdEnqueuesOptimization(t *testing.T) {
	h := newHarness(t, "enable-caching")
	h.agent(t, models.DomainPerformance, map[string]any{"cpu_threshold": 60.0})
	h.cpuSamples(t, []float64{70, 70})

	h.sup.Tick()

	var found *models.Task
	for _, tk := range h.queued {
		if tk.Type == handler.TypeOptimization {
			found = tk
		}
	}
	if found == nil {
		t.Fatalf("queued = %v, want an optimization task", h.queuedTypes())
	}
	if found.Input["recommended_action"] != "enable-caching" {
		t.Errorf("recommended_action = %v, want enable-caching", found.Input["recommended_action"])
	}
}

func TestFailedDeploymentIsRecovered(t *testing.T) {
	h := newHarness(t, "retry-deployment")
	h.agent(t, models.DomainDeployment, nil)
	d := h.deployment(t, models.DeploymentFailed, time.Hour)

	h.sup.Tick()

	got, err := h.db.GetDeployment(d.ID)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if got.Status != models.DeploymentDeployed {
		t.Errorf("status after retry = %q, want deployed", got.Status)
	}
	if got.Metadata["recovery_action"] != "retry-deployment" {
		t.Errorf("recovery_action = %v, want retry-deployment", got.Metadata["recovery_action"])
	}
}

func TestRecoveredDeploymentIsNotRecoveredTwice(t *testing.T) {
	h := newHarness(t, "diagnose-and-fix")
	h.agent(t, models.DomainDeployment, nil)
	h.deployment(t, models.DeploymentFailed, time.Hour)

	h.sup.Tick()
	h.sup.Tick()

	if h.decider.calls != 1 {
		t.Errorf("decider consulted %d times across two ticks, want 1", h.decider.calls)
	}
}

func TestStuckDeploymentIsRecovered(t *testing.T) {
	h := newHarness(t, "rollback")
	h.agent(t, models.DomainDeployment, nil)
	d := h.deployment(t, models.DeploymentDeploying, time.Hour)

	h.sup.Tick()

	got, err := h.db.GetDeployment(d.ID)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if got.Status != models.DeploymentStopped {
		t.Errorf("status after rollback = %q, want stopped", got.Status)
	}
}

func TestUnhealthyDeployedWorkloadIsAutoRolledBack(t *testing.T) {
	h := newHarness(t, "unused")
	h.agent(t, models.DomainDeployment, nil)
	d := h.deployment(t, models.DeploymentDeployed, time.Hour)
	h.executor.MarkRunning(d.ID, false)

	h.sup.Tick()

	got, err := h.db.GetDeployment(d.ID)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if got.Health != "rolled-back" {
		t.Errorf("health = %q, want rolled-back", got.Health)
	}
	// Automatic rollback does not consult the decider.
	if h.decider.calls != 0 {
		t.Errorf("decider consulted %d times, want 0", h.decider.calls)
	}
}

func TestInspectionFailureIsIsolatedPerAgent(t *testing.T) {
	h := newHarness(t, "unused")

	// An agent with an unknown domain fails inspection; the security agent
	// after it must still be swept.
	h.agent(t, "networking", nil)
	h.agent(t, models.DomainSecurity, map[string]any{"scan_cadence": "24h"})

	h.sup.Tick()

	// The security agent has no scans, so a sweep that reached it queued
	// a vulnerability scan.
	types := h.queuedTypes()
	if len(types) != 1 || types[0] != handler.TypeVulnerabilityScan {
		t.Errorf("queued = %v, want one vulnerability-scan", types)
	}
	if h.ticks != 1 {
		t.Errorf("completed ticks = %d, want 1", h.ticks)
	}
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	h := newHarness(t, "unused")

	h.sup.tickMu.Lock()
	h.sup.Tick()
	h.sup.tickMu.Unlock()

	if h.ticks != 0 {
		t.Errorf("completed ticks = %d, want 0 while a sweep holds the lock", h.ticks)
	}

	h.sup.Tick()
	if h.ticks != 1 {
		t.Errorf("completed ticks = %d, want 1 after the lock is released", h.ticks)
	}
}

// faultyStatusExecutor fails the live status check for one deployment.
type faultyStatusExecutor struct {
	*deploy.LocalExecutor
	failID string
}

func (e *faultyStatusExecutor) GetStatus(ctx context.Context, deploymentID string) (*deploy.Status, error) {
	if deploymentID == e.failID {
		return nil, errors.New("status backend unavailable")
	}
	return e.LocalExecutor.GetStatus(ctx, deploymentID)
}

func TestStatusErrorOnOneDeploymentDoesNotAbortSweep(t *testing.T) {
	h := newHarness(t, "scale-resources")
	h.agent(t, models.DomainReliability, nil)

	// Newest first in the sweep: the unreachable deployment is inspected
	// before the unhealthy one.
	unhealthy := h.deployment(t, models.DeploymentDeployed, 2*time.Hour)
	unreachable := h.deployment(t, models.DeploymentDeployed, time.Hour)
	h.executor.MarkRunning(unhealthy.ID, false)

	var incidents []*models.Incident
	sup := New(Config{
		Store:      h.db,
		Decider:    h.decider,
		Executor:   &faultyStatusExecutor{LocalExecutor: h.executor, failID: unreachable.ID},
		OnIncident: func(inc *models.Incident) { incidents = append(incidents, inc) },
	})
	t.Cleanup(sup.Stop)

	sup.Tick()

	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1 for the deployment after the failing one", len(incidents))
	}
	if incidents[0].DeploymentID != unhealthy.ID {
		t.Errorf("incident deployment = %s, want %s", incidents[0].DeploymentID, unhealthy.ID)
	}
}
