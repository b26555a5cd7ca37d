package state

import (
	"fmt"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateMetric persists a metric sample.
func (db *DB) CreateMetric(m *models.PerformanceMetric) error {
	_, err := db.Exec(`
		INSERT INTO metrics (id, project_id, name, value, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Name, m.Value, formatTime(m.RecordedAt))
	if err != nil {
		return fmt.Errorf("create metric: %w", err)
	}
	return nil
}

// ListMetricsSince returns a project's samples of one metric recorded at or
// after since, in chronological order.
func (db *DB) ListMetricsSince(projectID, name string, since time.Time) ([]models.PerformanceMetric, error) {
	rows, err := db.Query(`
		SELECT id, project_id, name, value, recorded_at
		FROM metrics WHERE project_id = ? AND name = ? AND recorded_at >= ?
		ORDER BY recorded_at
	`, projectID, name, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("list metrics since: %w", err)
	}
	defer rows.Close()

	var metrics []models.PerformanceMetric
	for rows.Next() {
		var m models.PerformanceMetric
		var recordedAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.RecordedAt, _ = parseTime(recordedAt)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// LastMetrics returns the n most recent samples of one metric for a project,
// in chronological order (oldest of the n first).
func (db *DB) LastMetrics(projectID, name string, n int) ([]models.PerformanceMetric, error) {
	rows, err := db.Query(`
		SELECT id, project_id, name, value, recorded_at
		FROM metrics WHERE project_id = ? AND name = ?
		ORDER BY recorded_at DESC LIMIT ?
	`, projectID, name, n)
	if err != nil {
		return nil, fmt.Errorf("last metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.PerformanceMetric
	for rows.Next() {
		var m models.PerformanceMetric
		var recordedAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.RecordedAt, _ = parseTime(recordedAt)
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(metrics)-1; i < j; i, j = i+1, j-1 {
		metrics[i], metrics[j] = metrics[j], metrics[i]
	}
	return metrics, nil
}

// AverageMetric returns the mean of a project's samples of one metric recorded
// at or after since. The second return is false when no samples exist.
func (db *DB) AverageMetric(projectID, name string, since time.Time) (float64, bool, error) {
	row := db.QueryRow(`
		SELECT AVG(value), COUNT(*) FROM metrics
		WHERE project_id = ? AND name = ? AND recorded_at >= ?
	`, projectID, name, formatTime(since))

	var avg *float64
	var count int
	if err := row.Scan(&avg, &count); err != nil {
		return 0, false, fmt.Errorf("average metric: %w", err)
	}
	if count == 0 || avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}
