package models

import "time"

// IncidentSeverity ranks how serious an incident is.
type IncidentSeverity string

const (
	// SeverityLow is informational.
	SeverityLow IncidentSeverity = "low"
	// SeverityMedium needs attention but is not service-affecting.
	SeverityMedium IncidentSeverity = "medium"
	// SeverityHigh is service-affecting.
	SeverityHigh IncidentSeverity = "high"
	// SeverityCritical is a full outage.
	SeverityCritical IncidentSeverity = "critical"
)

// Valid returns true if the severity is a known value.
func (s IncidentSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// IncidentStatus represents the current state of an incident.
type IncidentStatus string

const (
	// IncidentOpen indicates the incident is unresolved.
	IncidentOpen IncidentStatus = "open"
	// IncidentResolved indicates the incident has been closed out.
	IncidentResolved IncidentStatus = "resolved"
)

// Incident records a detected problem, optionally with the remediation
// decision that was taken for it.
type Incident struct {
	// ID is the unique identifier for this incident.
	ID string `json:"id"`
	// ProjectID is the affected project.
	ProjectID string `json:"project_id"`
	// AgentID is the agent that detected the incident.
	AgentID string `json:"agent_id"`
	// DeploymentID is the affected deployment, if any.
	DeploymentID string `json:"deployment_id,omitempty"`
	// Title is a short summary of the problem.
	Title string `json:"title"`
	// Description provides detail about what was detected.
	Description string `json:"description,omitempty"`
	// Severity ranks the incident.
	Severity IncidentSeverity `json:"severity"`
	// Status is the current lifecycle state.
	Status IncidentStatus `json:"status"`
	// Decision is the remediation decision recorded for this incident, if any.
	Decision *Decision `json:"decision,omitempty"`
	// CreatedAt is when the incident was detected.
	CreatedAt time.Time `json:"created_at"`
	// ResolvedAt is when the incident was resolved, if it was.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
