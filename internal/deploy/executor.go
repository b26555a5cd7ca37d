// Package deploy defines the deployment-execution collaborator: the backend
// that actually starts, stops, and rolls back running workloads. The
// orchestration core only depends on the Executor interface.
package deploy

import "context"

// Result is the outcome of a deployment execution.
type Result struct {
	// Status is "deployed" on success, "failed" otherwise.
	Status string
	// URL is where the workload is reachable on success.
	URL string
	// ContainerID identifies the container backing the workload, if any.
	ContainerID string
	// ProcessID identifies the process backing the workload, if any.
	ProcessID int
	// Error holds failure logs when Status is "failed".
	Error string
}

// HealthCheck is one probe result for a running workload.
type HealthCheck struct {
	// Name identifies the probe (e.g. "http", "ready").
	Name string
	// Healthy is whether the probe passed.
	Healthy bool
	// Message carries probe detail, typically on failure.
	Message string
}

// Status is the live state of a deployment.
type Status struct {
	// IsRunning is whether the workload process is up.
	IsRunning bool
	// HealthChecks lists the most recent probe results.
	HealthChecks []HealthCheck
}

// Healthy returns true if the workload is running and every probe passed.
func (s *Status) Healthy() bool {
	if !s.IsRunning {
		return false
	}
	for _, hc := range s.HealthChecks {
		if !hc.Healthy {
			return false
		}
	}
	return true
}

// Executor starts, stops, and rolls back running workloads.
// Calls are network-bound; implementations must honor ctx cancellation.
type Executor interface {
	// Deploy rolls out a version of a project to an environment.
	Deploy(ctx context.Context, projectID, version, strategy, environment string) (*Result, error)
	// Stop halts a running deployment.
	Stop(ctx context.Context, deploymentID string) error
	// Rollback reverts a deployment, optionally to a specific version.
	Rollback(ctx context.Context, deploymentID, toVersion string) error
	// GetStatus reports the live state of a deployment.
	GetStatus(ctx context.Context, deploymentID string) (*Status, error)
}
