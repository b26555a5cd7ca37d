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

// Reliability handles incident-response and monitoring tasks.
type Reliability struct {
	store   state.Store
	decider Decider
}

// incidentResponseOptions is the closed option set offered to the oracle
// for an incident. The handler records the decision; it never executes it.
func incidentResponseOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "auto-restart", Description: "Restart the affected service to clear transient failures"},
		{Action: "scale-up", Description: "Add capacity to absorb the load causing the incident"},
		{Action: "escalate", Description: "Page a human operator; the problem needs manual investigation"},
	}
}

// IncidentResponse decides how to respond to an incident. When the input
// names an incident_id, the decision is attached to that incident record.
func (h *Reliability) IncidentResponse(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	decCtx := map[string]any{
		"task":        TypeIncidentResponse,
		"description": inputString(t.Input, "description", "unspecified incident"),
		"severity":    inputString(t.Input, "severity", string(models.SeverityMedium)),
	}
	if id := inputString(t.Input, "incident_id", ""); id != "" {
		decCtx["incident_id"] = id
	}

	d := h.decider.Decide(ctx, agent, decCtx, incidentResponseOptions())

	if id := inputString(t.Input, "incident_id", ""); id != "" {
		inc, err := h.store.GetIncident(id)
		if err != nil {
			return nil, fmt.Errorf("load incident %s: %w", id, err)
		}
		inc.Decision = &d
		if err := h.store.UpdateIncident(inc); err != nil {
			return nil, fmt.Errorf("record incident decision: %w", err)
		}
	}

	return decisionOutput(d), nil
}

// Monitoring samples the project's operational metrics and writes them to
// the metric store, where the supervisory loop's threshold and trend checks
// read them. Readings are synthesized; a real probe backend would replace
// sampleMetrics.
func (h *Reliability) Monitoring(ctx context.Context, agent *models.Agent, t *models.Task) (map[string]any, error) {
	samples := sampleMetrics()
	now := time.Now().UTC()

	for name, value := range samples {
		m := &models.PerformanceMetric{
			ID:         uuid.New().String(),
			ProjectID:  agent.ProjectID,
			Name:       name,
			Value:      value,
			RecordedAt: now,
		}
		if err := h.store.CreateMetric(m); err != nil {
			return nil, fmt.Errorf("record %s sample: %w", name, err)
		}
	}

	out := make(map[string]any, len(samples))
	for name, value := range samples {
		out[name] = value
	}
	return out, nil
}

// sampleMetrics fabricates one reading per tracked metric.
func sampleMetrics() map[string]float64 {
	return map[string]float64{
		models.MetricCPU:          20 + rand.Float64()*70,
		models.MetricMemory:       30 + rand.Float64()*60,
		models.MetricResponseTime: 50 + rand.Float64()*450,
		models.MetricErrorRate:    rand.Float64() * 5,
	}
}
