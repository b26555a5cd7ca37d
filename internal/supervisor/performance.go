package supervisor

import (
	"fmt"
	"time"

	"github.com/opspilot/opspilot/internal/handler"
	"github.com/opspilot/opspilot/pkg/models"
)

const (
	// thresholdWindow is how far back the threshold check averages.
	thresholdWindow = 15 * time.Minute
	// trendSamples is how many recent CPU samples the projection uses.
	trendSamples = 5
	// trendHorizon is how many sample intervals ahead the projection looks.
	trendHorizon = 3
	// predictedCPULimit triggers pre-emptive scaling when the projection
	// crosses it.
	predictedCPULimit = 85.0
)

// tuningOptions is the closed option set when a resource threshold is hit.
func tuningOptions() []models.DecisionOption {
	return []models.DecisionOption{
		{Action: "scale-up", Description: "Add compute capacity to the workload"},
		{Action: "optimize-queries", Description: "Target slow database queries"},
		{Action: "enable-caching", Description: "Cache hot reads to shed load"},
		{Action: "load-balance", Description: "Spread traffic across more instances"},
	}
}

// inspectPerformance compares recent resource averages against the agent's
// thresholds and projects the short-term CPU trend.
func (s *Supervisor) inspectPerformance(agent *models.Agent) error {
	if err := s.checkThresholds(agent); err != nil {
		return err
	}
	return s.checkCPUTrend(agent)
}

// checkThresholds enqueues an optimization task when any recent average
// exceeds its configured threshold.
func (s *Supervisor) checkThresholds(agent *models.Agent) error {
	since := s.now().UTC().Add(-thresholdWindow)
	checks := []struct {
		metric    string
		threshold float64
	}{
		{models.MetricCPU, agent.ConfigFloat("cpu_threshold", 80.0)},
		{models.MetricMemory, agent.ConfigFloat("memory_threshold", 85.0)},
		{models.MetricResponseTime, agent.ConfigFloat("response_time_threshold", 1000.0)},
	}

	var breached []string
	decCtx := map[string]any{}
	for _, c := range checks {
		avg, ok, err := s.cfg.Store.AverageMetric(agent.ProjectID, c.metric, since)
		if err != nil {
			return fmt.Errorf("average %s: %w", c.metric, err)
		}
		if !ok {
			continue
		}
		decCtx["avg_"+c.metric] = avg
		decCtx["threshold_"+c.metric] = c.threshold
		if avg > c.threshold {
			breached = append(breached, c.metric)
		}
	}
	if len(breached) == 0 {
		return nil
	}
	decCtx["breached"] = breached

	decision := s.cfg.Decider.Decide(s.ctx, agent, decCtx, tuningOptions())
	return s.enqueue(agent.ID, handler.TypeOptimization, models.PriorityHigh, map[string]any{
		"reason":             fmt.Sprintf("thresholds breached: %v", breached),
		"recommended_action": decision.Action,
		"reasoning":          decision.Reasoning,
		"confidence":         decision.Confidence,
	})
}

// checkCPUTrend projects CPU usage trendHorizon sample intervals ahead from
// the most recent samples and schedules pre-emptive scaling when the
// projection crosses the limit.
func (s *Supervisor) checkCPUTrend(agent *models.Agent) error {
	samples, err := s.cfg.Store.LastMetrics(agent.ProjectID, models.MetricCPU, trendSamples)
	if err != nil {
		return fmt.Errorf("last cpu samples: %w", err)
	}
	if len(samples) < 2 {
		return nil
	}

	// Samples are chronological: oldest first.
	oldest := samples[0].Value
	newest := samples[len(samples)-1].Value
	trend := (newest - oldest) / float64(len(samples))
	predicted := newest + trend*trendHorizon
	if predicted <= predictedCPULimit {
		return nil
	}

	return s.enqueue(agent.ID, handler.TypePredictiveScaling, models.PriorityHigh, map[string]any{
		"predicted_cpu": predicted,
		"trend":         trend,
		"current_cpu":   newest,
	})
}
