package handler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// Security handles vulnerability-scan tasks.
type Security struct {
	store state.Store
}

// findingCatalog is the pool the simulated scanner draws from. A real
// scanner backend would replace runScan.
var findingCatalog = []models.Finding{
	{ID: "CVE-2025-1101", Package: "openssl", Severity: models.SeverityCritical, Description: "Heap overflow in TLS handshake parsing", FixedIn: "3.3.2"},
	{ID: "CVE-2025-2244", Package: "libxml2", Severity: models.SeverityHigh, Description: "Use-after-free in entity expansion", FixedIn: "2.12.8"},
	{ID: "CVE-2025-3307", Package: "express", Severity: models.SeverityMedium, Description: "ReDoS in route parameter parsing", FixedIn: "4.21.1"},
	{ID: "CVE-2025-4410", Package: "requests", Severity: models.SeverityLow, Description: "Cookie leak across redirects to sibling domains", FixedIn: "2.32.4"},
	{ID: "CVE-2025-5522", Package: "lodash", Severity: models.SeverityMedium, Description: "Prototype pollution in merge helpers", FixedIn: "4.17.22"},
}

// VulnerabilityScan runs a scan of the project and persists the result.
func (h *Security) VulnerabilityScan(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	findings := runScan()

	scan := &models.SecurityScan{
		ID:        uuid.New().String(),
		ProjectID: agent.ProjectID,
		AgentID:   agent.ID,
		Severity:  maxSeverity(findings),
		Findings:  findings,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateScan(scan); err != nil {
		return nil, fmt.Errorf("persist scan: %w", err)
	}

	return map[string]any{
		"scan_id":    scan.ID,
		"findings":   len(findings),
		"severity":   string(scan.Severity),
		"scanned_at": scan.CreatedAt.Format(time.RFC3339),
	}, nil
}

// runScan fabricates a scan result: a random subset of the catalog.
func runScan() []models.Finding {
	n := rand.Intn(len(findingCatalog) + 1)
	picked := rand.Perm(len(findingCatalog))[:n]

	findings := make([]models.Finding, 0, n)
	for _, i := range picked {
		findings = append(findings, findingCatalog[i])
	}
	return findings
}

// severityRank orders severities for comparison.
func severityRank(s models.IncidentSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 4
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	default:
		return 0
	}
}

// maxSeverity returns the highest severity among findings, or low for a
// clean scan.
func maxSeverity(findings []models.Finding) models.IncidentSeverity {
	max := models.SeverityLow
	for _, f := range findings {
		if severityRank(f.Severity) > severityRank(max) {
			max = f.Severity
		}
	}
	return max
}
