package supervisor

import (
	"fmt"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// recoveryOptions is the closed option set for failed or stuck deployments.
func recoveryOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "retry-deployment", Description: "Run the same deployment again"},
		{Action: "rollback", Description: "Roll back to the previously deployed version"},
		{Action: "diagnose-and-fix", Description: "Annotate the deployment for diagnosis before retrying"},
		{Action: "create-new-deployment", Description: "Schedule a fresh deployment of the same version"},
	}
}

// inspectDeployment recovers failed and stuck deployments and rolls back
// deployed workloads that have gone unhealthy.
func (s *Supervisor) inspectDeployment(agent *models.Agent) error {
	failed, err := s.cfg.Store.ListDeploymentsByStatus(agent.ProjectID, models.DeploymentFailed)
	if err != nil {
		return fmt.Errorf("list failed deployments: %w", err)
	}
	stuck, err := s.cfg.Store.ListStuckDeployments(agent.ProjectID, s.now().UTC().Add(-stuckDeploymentLimit))
	if err != nil {
		return fmt.Errorf("list stuck deployments: %w", err)
	}

	for _, group := range [][]models.Deployment{failed, stuck} {
		for i := range group {
			if err := s.recoverDeployment(agent, &group[i]); err != nil {
				return err
			}
		}
	}

	return s.rollbackUnhealthy(agent)
}

// recoverDeployment consults the decider for one broken deployment and
// executes the chosen recovery.
func (s *Supervisor) recoverDeployment(agent *models.Agent, d *models.Deployment) error {
	// Skip deployments a previous sweep already handled.
	if _, done := d.Metadata["recovery_action"]; done {
		return nil
	}

	decCtx := map[string]any{
		"deployment_id": d.ID,
		"version":       d.Version,
		"status":        string(d.Status),
		"error":         d.Error,
		"age":           s.now().UTC().Sub(d.CreatedAt).String(),
	}
	decision := s.cfg.Decider.Decide(s.ctx, agent, decCtx, recoveryOptions())
	annotate(d, "recovery_action", decision.Action)
	annotate(d, "recovery_reasoning", decision.Reasoning)

	switch decision.Action {
	case "retry-deployment":
		result, err := s.cfg.Executor.Deploy(s.ctx, d.ProjectID, d.Version, d.Strategy, d.Environment)
		if err != nil {
			return fmt.Errorf("retry deployment: %w", err)
		}
		if result.Status == "deployed" {
			d.Status = models.DeploymentDeployed
			d.URL = result.URL
			d.Health = "healthy"
			d.Error = ""
		} else {
			d.Status = models.DeploymentFailed
			d.Error = result.Error
		}
		s.remediated(agent.ID, decision.Action, d.ID)

	case "rollback":
		if err := s.cfg.Executor.Rollback(s.ctx, d.ID, ""); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		d.Status = models.DeploymentStopped
		s.remediated(agent.ID, decision.Action, d.ID)

	case "create-new-deployment":
		if err := s.scheduleRedeploy(agent.ProjectID, d); err != nil {
			return err
		}
		s.remediated(agent.ID, decision.Action, d.ID)

	case "diagnose-and-fix":
		annotate(d, "needs_diagnosis", true)
	}

	if err := s.cfg.Store.UpdateDeployment(d); err != nil {
		return fmt.Errorf("record recovery: %w", err)
	}
	return nil
}

// rollbackUnhealthy automatically rolls back deployed workloads whose live
// status is unhealthy. Unlike the reliability inspection this does not
// consult the decider; a freshly deployed workload that cannot pass its
// health checks always goes back to the previous version.
func (s *Supervisor) rollbackUnhealthy(agent *models.Agent) error {
	deployed, err := s.cfg.Store.ListDeploymentsByStatus(agent.ProjectID, models.DeploymentDeployed)
	if err != nil {
		return fmt.Errorf("list deployed: %w", err)
	}

	for i := range deployed {
		d := &deployed[i]
		if _, done := d.Metadata["auto_rolled_back_at"]; done {
			continue
		}
		status, err := s.cfg.Executor.GetStatus(s.ctx, d.ID)
		if err != nil {
			return fmt.Errorf("status of deployment %s: %w", d.ID, err)
		}
		if status.Healthy() {
			continue
		}

		if err := s.cfg.Executor.Rollback(s.ctx, d.ID, ""); err != nil {
			return fmt.Errorf("auto rollback: %w", err)
		}
		d.Health = "rolled-back"
		annotate(d, "auto_rolled_back_at", s.now().UTC().Format(time.RFC3339))
		if err := s.cfg.Store.UpdateDeployment(d); err != nil {
			return fmt.Errorf("record auto rollback: %w", err)
		}
		s.remediated(agent.ID, "rollback", d.ID)
	}
	return nil
}
