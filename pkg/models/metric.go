package models

import "time"

// Metric names written by the monitoring handler and read by the
// supervisory loop's threshold and trend checks.
const (
	MetricCPU          = "cpu_usage"
	MetricMemory       = "memory_usage"
	MetricResponseTime = "response_time"
	MetricErrorRate    = "error_rate"
)

// PerformanceMetric is one point-in-time sample for a project.
type PerformanceMetric struct {
	// ID is the unique identifier for this sample.
	ID string `json:"id"`
	// ProjectID is the project the sample belongs to.
	ProjectID string `json:"project_id"`
	// Name identifies what was measured (see Metric* constants).
	Name string `json:"name"`
	// Value is the sampled value. CPU and memory are percentages,
	// response time is milliseconds, error rate is a percentage.
	Value float64 `json:"value"`
	// RecordedAt is when the sample was taken.
	RecordedAt time.Time `json:"recorded_at"`
}
