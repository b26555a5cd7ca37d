package supervisor

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/pkg/models"
)

// errorRateWindow is how far back the error-rate scan looks.
const errorRateWindow = 5 * time.Minute

// remediationOptions is the closed option set for an unhealthy deployment.
func remediationOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "restart-deployment", Description: "Stop the workload and redeploy the same version"},
		{Action: "rollback-deployment", Description: "Roll back to the previously deployed version"},
		{Action: "scale-resources", Description: "Annotate the deployment for more CPU and memory"},
		{Action: "create-new-deployment", Description: "Schedule a fresh deployment of the current version"},
	}
}

// inspectReliability checks every deployed workload's live health and scans
// the recent error rate. An unhealthy workload gets exactly one incident
// this sweep, a remediation decision, and the decided remediation executed.
// A failure on one deployment never blocks the rest of the sweep.
func (s *Supervisor) inspectReliability(agent *models.Agent) error {
	deployed, err := s.cfg.Store.ListDeploymentsByStatus(agent.ProjectID, models.DeploymentDeployed)
	if err != nil {
		return fmt.Errorf("list deployed: %w", err)
	}

	for i := range deployed {
		d := &deployed[i]
		status, err := s.cfg.Executor.GetStatus(s.ctx, d.ID)
		if err != nil {
			log.Printf("[supervisor] warning: status of deployment %s: %v", d.ID, err)
			continue
		}
		if status.Healthy() {
			continue
		}
		if err := s.remediateUnhealthy(agent, d, status); err != nil {
			log.Printf("[supervisor] warning: remediate deployment %s: %v", d.ID, err)
		}
	}

	return s.scanErrorRate(agent)
}

// remediateUnhealthy raises one incident for the deployment, consults the
// decider, and executes the chosen remediation.
func (s *Supervisor) remediateUnhealthy(agent *models.Agent, d *models.Deployment, status *deploy.Status) error {
	inc := &models.Incident{
		ID:           uuid.New().String(),
		ProjectID:    agent.ProjectID,
		AgentID:      agent.ID,
		DeploymentID: d.ID,
		Title:        fmt.Sprintf("deployment %s unhealthy", d.ID),
		Description:  describeStatus(status),
		Severity:     models.SeverityHigh,
		Status:       models.IncidentOpen,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.raiseIncident(inc); err != nil {
		return err
	}

	decCtx := map[string]any{
		"deployment_id": d.ID,
		"version":       d.Version,
		"environment":   d.Environment,
		"is_running":    status.IsRunning,
		"health":        describeStatus(status),
	}
	decision := s.cfg.Decider.Decide(s.ctx, agent, decCtx, remediationOptions())

	inc.Decision = &decision
	if err := s.cfg.Store.UpdateIncident(inc); err != nil {
		return fmt.Errorf("record incident decision: %w", err)
	}

	return s.executeRemediation(agent, d, decision.Action)
}

// executeRemediation applies a remediation decision to a deployment.
// Fallback and unrecognized actions are recorded but not acted on.
func (s *Supervisor) executeRemediation(agent *models.Agent, d *models.Deployment, action string) error {
	switch action {
	case "restart-deployment":
		if err := s.cfg.Executor.Stop(s.ctx, d.ID); err != nil {
			return fmt.Errorf("stop for restart: %w", err)
		}
		result, err := s.cfg.Executor.Deploy(s.ctx, d.ProjectID, d.Version, d.Strategy, d.Environment)
		if err != nil {
			return fmt.Errorf("redeploy: %w", err)
		}
		if result.Status == "deployed" {
			d.URL = result.URL
			d.Health = "healthy"
		} else {
			d.Status = models.DeploymentFailed
			d.Error = result.Error
		}
		if err := s.cfg.Store.UpdateDeployment(d); err != nil {
			return fmt.Errorf("record restart: %w", err)
		}
		s.remediated(agent.ID, action, d.ID)

	case "rollback-deployment":
		if err := s.cfg.Executor.Rollback(s.ctx, d.ID, ""); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		d.Health = "rolled-back"
		annotate(d, "rolled_back_at", s.now().UTC().Format(time.RFC3339))
		if err := s.cfg.Store.UpdateDeployment(d); err != nil {
			return fmt.Errorf("record rollback: %w", err)
		}
		s.remediated(agent.ID, action, d.ID)

	case "scale-resources":
		annotate(d, "scale_requested_at", s.now().UTC().Format(time.RFC3339))
		if err := s.cfg.Store.UpdateDeployment(d); err != nil {
			return fmt.Errorf("record scale annotation: %w", err)
		}
		s.remediated(agent.ID, action, d.ID)

	case "create-new-deployment":
		if err := s.scheduleRedeploy(agent.ProjectID, d); err != nil {
			return err
		}
		s.remediated(agent.ID, action, d.ID)
	}
	return nil
}

// scheduleRedeploy enqueues a fresh deployment of the same version on the
// project's deployment agent, if one is active.
func (s *Supervisor) scheduleRedeploy(projectID string, d *models.Deployment) error {
	agents, err := s.cfg.Store.ListAgentsByProject(projectID)
	if err != nil {
		return fmt.Errorf("list project agents: %w", err)
	}
	for i := range agents {
		a := &agents[i]
		if a.Domain != models.DomainDeployment || a.Status != models.AgentStatusActive {
			continue
		}
		return s.enqueue(a.ID, handler.TypeDeployment, models.PriorityUrgent, map[string]any{
			"version":     d.Version,
			"strategy":    d.Strategy,
			"environment": d.Environment,
		})
	}
	return fmt.Errorf("no active deployment agent for project %s", projectID)
}

// scanErrorRate raises a detection-only incident when the recent error rate
// exceeds the agent's configured threshold.
func (s *Supervisor) scanErrorRate(agent *models.Agent) error {
	threshold := agent.ConfigFloat("error_rate_threshold", 5.0)
	avg, ok, err := s.cfg.Store.AverageMetric(agent.ProjectID, models.MetricErrorRate, s.now().UTC().Add(-errorRateWindow))
	if err != nil {
		return fmt.Errorf("average error rate: %w", err)
	}
	if !ok || avg <= threshold {
		return nil
	}

	return s.raiseIncident(&models.Incident{
		ID:          uuid.New().String(),
		ProjectID:   agent.ProjectID,
		AgentID:     agent.ID,
		Title:       "elevated error rate",
		Description: fmt.Sprintf("average error rate %.2f%% over the last %s exceeds threshold %.2f%%", avg, errorRateWindow, threshold),
		Severity:    models.SeverityMedium,
		Status:      models.IncidentOpen,
		CreatedAt:   s.now().UTC(),
	})
}

// describeStatus summarizes a live status for incident descriptions.
func describeStatus(status *deploy.Status) string {
	if !status.IsRunning {
		return "workload is not running"
	}
	var failed []string
	for _, hc := range status.HealthChecks {
		if !hc.Healthy {
			failed = append(failed, hc.Name)
		}
	}
	if len(failed) == 0 {
		return "workload healthy"
	}
	return fmt.Sprintf("failing health checks: %s", strings.Join(failed, ", "))
}

// annotate sets a metadata key, allocating the map on first use.
func annotate(d *models.Deployment, key string, value any) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata[key] = value
}
