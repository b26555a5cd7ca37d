package deploy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// LocalExecutor is a simulated execution backend used for local development
// and the CLI demo mode. It tracks deployments in memory and fabricates
// container IDs and URLs instead of talking to a real runtime.
type LocalExecutor struct {
	mu      sync.Mutex
	running map[string]bool
}

// NewLocalExecutor creates an empty simulated backend.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{running: make(map[string]bool)}
}

// Deploy simulates a rollout and reports success.
func (e *LocalExecutor) Deploy(ctx context.Context, projectID, version, strategy, environment string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &Result{
		Status:      "deployed",
		URL:         fmt.Sprintf("https://%s-%s.local.opspilot.dev", projectID, environment),
		ContainerID: fmt.Sprintf("sim-%08x", rand.Uint32()),
	}, nil
}

// Stop marks a simulated deployment as stopped.
func (e *LocalExecutor) Stop(ctx context.Context, deploymentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[deploymentID] = false
	return nil
}

// Rollback simulates reverting a deployment.
func (e *LocalExecutor) Rollback(ctx context.Context, deploymentID, toVersion string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[deploymentID] = true
	return nil
}

// GetStatus reports the simulated live state. Deployments are considered
// running unless explicitly stopped.
func (e *LocalExecutor) GetStatus(ctx context.Context, deploymentID string) (*Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	running, known := e.running[deploymentID]
	if !known {
		running = true
	}

	return &Status{
		IsRunning: running,
		HealthChecks: []HealthCheck{
			{Name: "http", Healthy: running},
		},
	}, nil
}

// MarkRunning overrides the simulated run state, for demos and tests.
func (e *LocalExecutor) MarkRunning(deploymentID string, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[deploymentID] = running
}

// Compile-time verification that LocalExecutor implements Executor.
var _ Executor = (*LocalExecutor)(nil)
