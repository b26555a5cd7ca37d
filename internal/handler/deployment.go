package handler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// Deployment handles deployment tasks in two phases. Phase one, inside the
// task, creates the deployment record and starts execution; the task
// completes once execution is initiated. Phase two runs asynchronously and
// delivers the terminal deployed/failed state to the record, so a slow
// rollout never occupies the agent's lane.
type Deployment struct {
	store     state.Store
	executor  deploy.Executor
	completed func(d *models.Deployment)
}

// Deploy creates the deployment record and initiates execution.
func (h *Deployment) Deploy(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	version := inputString(t.Input, "version", "")
	if version == "" {
		return nil, &models.ValidationError{Field: "version", Reason: "must not be empty"}
	}
	strategy := inputString(t.Input, "strategy", agent.ConfigString("default_strategy", "rolling"))
	environment := inputString(t.Input, "environment", "production")

	now := time.Now().UTC()
	d := &models.Deployment{
		ID:          uuid.New().String(),
		ProjectID:   agent.ProjectID,
		Version:     version,
		Strategy:    strategy,
		Environment: environment,
		Status:      models.DeploymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateDeployment(d); err != nil {
		return nil, fmt.Errorf("persist deployment: %w", err)
	}

	d.Status = models.DeploymentDeploying
	if err := h.store.UpdateDeployment(d); err != nil {
		return nil, fmt.Errorf("mark deployment deploying: %w", err)
	}

	go h.runDeployment(d)

	return map[string]any{
		"deployment_id": d.ID,
		"version":       version,
		"strategy":      strategy,
		"environment":   environment,
		"status":        string(d.Status),
	}, nil
}

// runDeployment is phase two: it drives the execution backend and writes
// the terminal state to the record. It deliberately does not use the task's
// context; the task is already complete when this runs.
func (h *Deployment) runDeployment(d *models.Deployment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := h.executor.Deploy(ctx, d.ProjectID, d.Version, d.Strategy, d.Environment)
	switch {
	case err != nil:
		d.Status = models.DeploymentFailed
		d.Error = err.Error()
	case result.Status != "deployed":
		d.Status = models.DeploymentFailed
		d.Error = result.Error
	default:
		d.Status = models.DeploymentDeployed
		d.URL = result.URL
		d.Health = "healthy"
	}

	if err := h.store.UpdateDeployment(d); err != nil {
		log.Printf("[handler] warning: failed to finalize deployment %s: %v", d.ID, err)
		return
	}
	if h.completed != nil {
		h.completed(d)
	}
}
