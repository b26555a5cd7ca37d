package models

import "time"

// DeploymentStatus represents the current state of a deployment.
// Status progresses pending -> deploying -> {deployed|failed}; a running
// deployment may later transition to stopped. Deploying is never skipped.
type DeploymentStatus string

const (
	// DeploymentPending indicates the record exists but execution has not begun.
	DeploymentPending DeploymentStatus = "pending"
	// DeploymentDeploying indicates the execution backend is working.
	DeploymentDeploying DeploymentStatus = "deploying"
	// DeploymentDeployed indicates the workload is running.
	DeploymentDeployed DeploymentStatus = "deployed"
	// DeploymentFailed indicates execution failed.
	DeploymentFailed DeploymentStatus = "failed"
	// DeploymentStopped indicates the workload was stopped.
	DeploymentStopped DeploymentStatus = "stopped"
)

// Valid returns true if the status is a known value.
func (s DeploymentStatus) Valid() bool {
	switch s {
	case DeploymentPending, DeploymentDeploying, DeploymentDeployed,
		DeploymentFailed, DeploymentStopped:
		return true
	default:
		return false
	}
}

// Deployment represents one rollout of a project version.
type Deployment struct {
	// ID is the unique identifier for this deployment.
	ID string `json:"id"`
	// ProjectID is the project being deployed.
	ProjectID string `json:"project_id"`
	// Version is the version identifier being rolled out.
	Version string `json:"version"`
	// Strategy is the rollout strategy (e.g. "rolling", "blue-green").
	Strategy string `json:"strategy"`
	// Environment is the target environment (e.g. "production").
	Environment string `json:"environment"`
	// Status is the current lifecycle state.
	Status DeploymentStatus `json:"status"`
	// URL is where the deployed workload is reachable, once deployed.
	URL string `json:"url,omitempty"`
	// Health is the most recent health summary for a deployed workload.
	Health string `json:"health,omitempty"`
	// Error contains failure logs if the deployment failed.
	Error string `json:"error,omitempty"`
	// Metadata holds annotations such as scaling hints.
	Metadata map[string]any `json:"metadata,omitempty"`
	// CreatedAt is when the deployment record was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the record last changed state.
	UpdatedAt time.Time `json:"updated_at"`
}
