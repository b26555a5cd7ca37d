// Package state provides SQLite-based persistence for OpsPilot.
package state

import (
	"io"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// AgentStore handles agent-related persistence operations.
type AgentStore interface {
	CreateAgent(a *models.Agent) error
	GetAgent(id string) (*models.Agent, error)
	UpdateAgent(a *models.Agent) error
	UpdateAgentHeartbeat(id string, seen time.Time) error
	ListAgentsByProject(projectID string) ([]models.Agent, error)
	ListAgentsByStatus(status models.AgentStatus) ([]models.Agent, error)
}

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	FinishTask(t *models.Task) (bool, error)
	ListTasksByAgent(agentID string, limit int) ([]models.Task, error)
	ListRecentTasks(projectID string, limit int) ([]models.Task, error)
	ListRunningTasksStartedBefore(cutoff time.Time) ([]models.Task, error)
}

// IncidentStore handles incident-related persistence operations.
type IncidentStore interface {
	CreateIncident(inc *models.Incident) error
	GetIncident(id string) (*models.Incident, error)
	UpdateIncident(inc *models.Incident) error
	ListIncidentsByProject(projectID string, limit int) ([]models.Incident, error)
}

// DeploymentStore handles deployment-record persistence operations.
type DeploymentStore interface {
	CreateDeployment(d *models.Deployment) error
	GetDeployment(id string) (*models.Deployment, error)
	UpdateDeployment(d *models.Deployment) error
	ListDeploymentsByStatus(projectID string, status models.DeploymentStatus) ([]models.Deployment, error)
	ListStuckDeployments(projectID string, cutoff time.Time) ([]models.Deployment, error)
}

// MetricStore handles performance-metric persistence operations.
type MetricStore interface {
	CreateMetric(m *models.PerformanceMetric) error
	ListMetricsSince(projectID, name string, since time.Time) ([]models.PerformanceMetric, error)
	LastMetrics(projectID, name string, n int) ([]models.PerformanceMetric, error)
	AverageMetric(projectID, name string, since time.Time) (float64, bool, error)
}

// ScanStore handles security-scan persistence operations.
type ScanStore interface {
	CreateScan(s *models.SecurityScan) error
	UpdateScan(s *models.SecurityScan) error
	LatestScan(projectID string) (*models.SecurityScan, error)
	ListUnresolvedHighSeverityScans(projectID string, limit int) ([]models.SecurityScan, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// This interface allows the orchestration core to work with any backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	AgentStore
	TaskStore
	IncidentStore
	DeploymentStore
	MetricStore
	ScanStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ AgentStore      = (*DB)(nil)
	_ TaskStore       = (*DB)(nil)
	_ IncidentStore   = (*DB)(nil)
	_ DeploymentStore = (*DB)(nil)
	_ MetricStore     = (*DB)(nil)
	_ ScanStore       = (*DB)(nil)
)
