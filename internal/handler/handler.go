// Package handler implements the domain task handlers that the task queue
// dispatches to. Each domain contributes a closed set of task types; the
// full table is wired once at startup by RegisterAll.
package handler

import (
	"context"

	"github.com/opspilot/opspilot/internal/deploy"
	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/internal/task"
	"github.com/opspilot/opspilot/pkg/models"
)

// Task type identifiers, shared with the supervisory loop.
const (
	TypeIncidentResponse  = "incident-response"
	TypeMonitoring        = "monitoring"
	TypeVulnerabilityScan = "vulnerability-scan"
	TypeOptimization      = "optimization"
	TypePredictiveScaling = "predictive-scaling"
	TypeDeployment        = "deployment"
)

// Decider produces remediation decisions. Satisfied by *decision.Engine.
type Decider interface {
	Decide(ctx context.Context, agent *models.Agent, decCtx map[string]any, options []models.DecisionOption) models.Decision
}

// Deps are the collaborators shared by all domain handlers.
type Deps struct {
	// Store persists the records handlers create and read.
	Store state.Store
	// Decider supplies remediation decisions.
	Decider Decider
	// Executor performs deployment operations.
	Executor deploy.Executor
	// DeploymentCompleted, if set, is invoked when a deployment's async
	// second phase reaches a terminal state.
	DeploymentCompleted func(d *models.Deployment)
}

// RegisterAll populates the queue's dispatch table with every supported
// (domain, task type) pair. Pairs outside this table fail at execution time
// with an unsupported-type error.
func RegisterAll(q *task.Queue, deps Deps) {
	rel := &Reliability{store: deps.Store, decider: deps.Decider}
	q.Register(models.DomainReliability, TypeIncidentResponse, task.HandlerFunc(rel.IncidentResponse))
	q.Register(models.DomainReliability, TypeMonitoring, task.HandlerFunc(rel.Monitoring))

	sec := &Security{store: deps.Store}
	q.Register(models.DomainSecurity, TypeVulnerabilityScan, task.HandlerFunc(sec.VulnerabilityScan))

	perf := &Performance{store: deps.Store, decider: deps.Decider}
	q.Register(models.DomainPerformance, TypeOptimization, task.HandlerFunc(perf.Optimization))
	q.Register(models.DomainPerformance, TypePredictiveScaling, task.HandlerFunc(perf.PredictiveScaling))

	dep := &Deployment{store: deps.Store, executor: deps.Executor, completed: deps.DeploymentCompleted}
	q.Register(models.DomainDeployment, TypeDeployment, task.HandlerFunc(dep.Deploy))
}

// decisionOutput flattens a decision into a task output payload.
func decisionOutput(d models.Decision) map[string]any {
	out := map[string]any{
		"action":     d.Action,
		"reasoning":  d.Reasoning,
		"confidence": d.Confidence,
	}
	if len(d.Metadata) > 0 {
		out["metadata"] = d.Metadata
	}
	return out
}

// inputString reads a string field from a task input map.
func inputString(input map[string]any, key, fallback string) string {
	if v, ok := input[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
