package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// unresolvedScanLimit caps how many unresolved scans feed one decision.
const unresolvedScanLimit = 3

// patchOptions is the closed option set for unresolved high-severity scans.
func patchOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "auto-patch", Description: "Apply the known fixed versions automatically"},
		{Action: "isolate-resources", Description: "Restrict network access for the affected components"},
		{Action: "update-dependencies", Description: "Schedule a dependency upgrade pass"},
		{Action: "create-incident", Description: "Raise an incident for human triage"},
	}
}

// inspectSecurity enqueues a vulnerability scan when the latest scan is
// older than the configured cadence and decides how to handle unresolved
// high-severity findings.
func (s *Supervisor) inspectSecurity(agent *models.Agent) error {
	if err := s.ensureScanFreshness(agent); err != nil {
		return err
	}
	return s.reviewUnresolvedScans(agent)
}

// ensureScanFreshness schedules a scan if none exists or the latest one is
// older than the agent's scan_cadence.
func (s *Supervisor) ensureScanFreshness(agent *models.Agent) error {
	cadence, err := time.ParseDuration(agent.ConfigString("scan_cadence", "24h"))
	if err != nil {
		cadence = 24 * time.Hour
	}

	latest, err := s.cfg.Store.LatestScan(agent.ProjectID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		// Never scanned; fall through to enqueue.
	case err != nil:
		return fmt.Errorf("latest scan: %w", err)
	case s.now().UTC().Sub(latest.CreatedAt) <= cadence:
		return nil
	}

	return s.enqueue(agent.ID, handler.TypeVulnerabilityScan, models.PriorityMedium, nil)
}

// reviewUnresolvedScans consults the decider over unresolved high-severity
// scans. Auto-patching is double-gated: the decision must choose auto-patch
// AND the agent's auto_patch config must be enabled.
func (s *Supervisor) reviewUnresolvedScans(agent *models.Agent) error {
	scans, err := s.cfg.Store.ListUnresolvedHighSeverityScans(agent.ProjectID, unresolvedScanLimit)
	if err != nil {
		return fmt.Errorf("list unresolved scans: %w", err)
	}
	if len(scans) == 0 {
		return nil
	}

	summaries := make([]map[string]any, 0, len(scans))
	for i := range scans {
		summaries = append(summaries, map[string]any{
			"scan_id":  scans[i].ID,
			"severity": string(scans[i].Severity),
			"findings": len(scans[i].Findings),
		})
	}
	decCtx := map[string]any{
		"unresolved_scans": summaries,
		"auto_patch":       agent.ConfigBool("auto_patch", false),
	}
	decision := s.cfg.Decider.Decide(s.ctx, agent, decCtx, patchOptions())

	newest := &scans[0]
	newest.Decision = &decision
	if err := s.cfg.Store.UpdateScan(newest); err != nil {
		return fmt.Errorf("record scan decision: %w", err)
	}

	switch decision.Action {
	case "auto-patch":
		if !agent.ConfigBool("auto_patch", false) {
			return nil
		}
		for i := range scans {
			scans[i].Resolved = true
			if err := s.cfg.Store.UpdateScan(&scans[i]); err != nil {
				return fmt.Errorf("mark scan resolved: %w", err)
			}
		}
		s.remediated(agent.ID, decision.Action, agent.ProjectID)

	case "create-incident":
		inc := &models.Incident{
			ID:          uuid.New().String(),
			ProjectID:   agent.ProjectID,
			AgentID:     agent.ID,
			Title:       "unresolved high-severity vulnerabilities",
			Description: fmt.Sprintf("%d unresolved high-severity scans need triage", len(scans)),
			Severity:    models.SeverityHigh,
			Status:      models.IncidentOpen,
			Decision:    &decision,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.raiseIncident(inc); err != nil {
			return err
		}
	}
	return nil
}
