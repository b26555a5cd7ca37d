// Package models defines the shared data types for OpsPilot.
package models

import "time"

// DomainType identifies the operational domain an agent is responsible for.
type DomainType string

const (
	// DomainReliability covers incident response and uptime monitoring.
	DomainReliability DomainType = "reliability"
	// DomainSecurity covers vulnerability scanning and patching.
	DomainSecurity DomainType = "security"
	// DomainPerformance covers resource optimization and scaling.
	DomainPerformance DomainType = "performance"
	// DomainDeployment covers rollout execution and rollback.
	DomainDeployment DomainType = "deployment"
)

// Valid returns true if the domain is a known value.
func (d DomainType) Valid() bool {
	switch d {
	case DomainReliability, DomainSecurity, DomainPerformance, DomainDeployment:
		return true
	default:
		return false
	}
}

// Domains lists all known domain types.
func Domains() []DomainType {
	return []DomainType{DomainReliability, DomainSecurity, DomainPerformance, DomainDeployment}
}

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusActive indicates the agent is operating normally.
	AgentStatusActive AgentStatus = "active"
	// AgentStatusInactive indicates the agent has been deactivated.
	AgentStatusInactive AgentStatus = "inactive"
	// AgentStatusError indicates the agent encountered an unrecoverable error.
	AgentStatusError AgentStatus = "error"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusError:
		return true
	default:
		return false
	}
}

// HealthStatus describes agent liveness derived from heartbeats.
type HealthStatus string

const (
	// HealthHealthy indicates a heartbeat was seen within the staleness window.
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy indicates the most recent heartbeat is stale.
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthUnknown indicates no heartbeat has been recorded this process lifetime.
	HealthUnknown HealthStatus = "unknown"
)

// Agent represents a long-lived worker scoped to one project and one domain.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// ProjectID is the project this agent manages.
	ProjectID string `json:"project_id"`
	// Domain is the operational domain this agent covers.
	Domain DomainType `json:"domain"`
	// Name is the human-readable display name.
	Name string `json:"name"`
	// Status is the current lifecycle state of the agent.
	Status AgentStatus `json:"status"`
	// Config holds domain-specific thresholds and strategy flags.
	Config map[string]any `json:"config,omitempty"`
	// LastHeartbeat is the most recently persisted heartbeat timestamp.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	// CreatedAt is when the agent was registered.
	CreatedAt time.Time `json:"created_at"`
}

// ConfigFloat returns a numeric config value, or fallback if absent or not a
// number. Config maps round-trip through JSON, so numbers may arrive as
// float64 even when written as int.
func (a *Agent) ConfigFloat(key string, fallback float64) float64 {
	switch v := a.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// ConfigBool returns a boolean config value, or fallback if absent.
func (a *Agent) ConfigBool(key string, fallback bool) bool {
	if v, ok := a.Config[key].(bool); ok {
		return v
	}
	return fallback
}

// ConfigString returns a string config value, or fallback if absent.
func (a *Agent) ConfigString(key string, fallback string) string {
	if v, ok := a.Config[key].(string); ok {
		return v
	}
	return fallback
}
