package handler

import (
	"context"
	"time"

	"github.com/opspilot/opspilot/internal/state"
	"github.com/opspilot/opspilot/pkg/models"
)

// Performance handles optimization and predictive-scaling tasks.
type Performance struct {
	store   state.Store
	decider Decider
}

// optimizationOptions is the closed option set for performance tuning.
func optimizationOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "cache-optimization", Description: "Introduce or tune caching to cut repeated work"},
		{Action: "resource-scaling", Description: "Adjust allocated CPU and memory for the workload"},
		{Action: "code-optimization", Description: "Flag hot paths for code-level optimization"},
	}
}

// Optimization gathers recent metric averages and asks the decider which
// optimization to pursue. The decision is recorded in the task output; it
// is advisory and nothing is executed here.
func (h *Performance) Optimization(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	since := time.Now().UTC().Add(-15 * time.Minute)
	decCtx := map[string]any{"task": TypeOptimization}

	for _, name := range []string{models.MetricCPU, models.MetricMemory, models.MetricResponseTime} {
		avg, ok, err := h.store.AverageMetric(agent.ProjectID, name, since)
		if err == nil && ok {
			decCtx["avg_"+name] = avg
		}
	}
	if reason := inputString(t.Input, "reason", ""); reason != "" {
		decCtx["reason"] = reason
	}

	d := h.decider.Decide(ctx, agent, decCtx, optimizationOptions())
	return decisionOutput(d), nil
}

// PredictiveScaling records a pre-emptive scale-up triggered by the
// supervisory loop's CPU trend projection. The projection itself lives in
// the task input so the recorded action is auditable.
func (h *Performance) PredictiveScaling(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	out := map[string]any{
		"action": "scale-up",
		"reason": "projected CPU usage exceeds safe threshold",
	}
	if v, ok := t.Input["predicted_cpu"]; ok {
		out["predicted_cpu"] = v
	}
	if v, ok := t.Input["trend"]; ok {
		out["trend"] = v
	}
	return out, nil
}
