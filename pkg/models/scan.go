package models

import "time"

// Finding is one vulnerability discovered by a scan.
type Finding struct {
	// ID identifies the vulnerability (e.g. a CVE).
	ID string `json:"id"`
	// Package is the affected dependency or component.
	Package string `json:"package"`
	// Severity ranks the finding.
	Severity IncidentSeverity `json:"severity"`
	// Description summarizes the vulnerability.
	Description string `json:"description,omitempty"`
	// FixedIn is the version that resolves the finding, if known.
	FixedIn string `json:"fixed_in,omitempty"`
}

// SecurityScan records one vulnerability scan of a project.
type SecurityScan struct {
	// ID is the unique identifier for this scan.
	ID string `json:"id"`
	// ProjectID is the scanned project.
	ProjectID string `json:"project_id"`
	// AgentID is the agent that ran the scan.
	AgentID string `json:"agent_id"`
	// Severity is the highest severity among findings.
	Severity IncidentSeverity `json:"severity"`
	// Findings lists the vulnerabilities discovered.
	Findings []Finding `json:"findings,omitempty"`
	// Resolved indicates whether the findings have been addressed.
	Resolved bool `json:"resolved"`
	// Decision is the remediation decision recorded for this scan, if any.
	Decision *Decision `json:"decision,omitempty"`
	// CreatedAt is when the scan ran.
	CreatedAt time.Time `json:"created_at"`
}
