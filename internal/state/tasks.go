package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateTask persists a new task.
func (db *DB) CreateTask(t *models.Task) error {
	input, err := marshalJSON(t.Input)
	if err != nil {
		return fmt.Errorf("marshal task input: %w", err)
	}
	output, err := marshalJSON(t.Output)
	if err != nil {
		return fmt.Errorf("marshal task output: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, agent_id, project_id, type, priority, status, input, output, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.AgentID, t.ProjectID, t.Type, string(t.Priority), string(t.Status),
		input, output, t.Error, formatTime(t.CreatedAt),
		formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
// Returns ErrNotFound if the task does not exist.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, agent_id, project_id, type, priority, status, input, output, error, created_at, started_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask updates a task's mutable fields.
func (db *DB) UpdateTask(t *models.Task) error {
	output, err := marshalJSON(t.Output)
	if err != nil {
		return fmt.Errorf("marshal task output: %w", err)
	}

	_, err = db.Exec(`
		UPDATE tasks SET status = ?, output = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(t.Status), output, t.Error,
		formatNullableTime(t.StartedAt), formatNullableTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// FinishTask writes a task's terminal status, output, error, and completion
// time. The write is guarded: a task already completed or failed is never
// overwritten. Reports whether the row was updated.
func (db *DB) FinishTask(t *models.Task) (bool, error) {
	output, err := marshalJSON(t.Output)
	if err != nil {
		return false, fmt.Errorf("marshal task output: %w", err)
	}

	res, err := db.Exec(`
		UPDATE tasks SET status = ?, output = ?, error = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')
	`, string(t.Status), output, t.Error, formatNullableTime(t.CompletedAt), t.ID)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish task rows affected: %w", err)
	}
	return n > 0, nil
}

// ListTasksByAgent returns the most recent tasks for an agent, newest first.
func (db *DB) ListTasksByAgent(agentID string, limit int) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, agent_id, project_id, type, priority, status, input, output, error, created_at, started_at, completed_at
		FROM tasks WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks by agent: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListRecentTasks returns the most recent tasks for a project, newest first.
func (db *DB) ListRecentTasks(projectID string, limit int) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, agent_id, project_id, type, priority, status, input, output, error, created_at, started_at, completed_at
		FROM tasks WHERE project_id = ? ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListRunningTasksStartedBefore returns running tasks whose execution began
// before the cutoff. Used by the liveness reaper.
func (db *DB) ListRunningTasksStartedBefore(cutoff time.Time) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, agent_id, project_id, type, priority, status, input, output, error, created_at, started_at, completed_at
		FROM tasks WHERE status = 'running' AND started_at < ?
	`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list running tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var input, output, errMsg, startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(&t.ID, &t.AgentID, &t.ProjectID, &t.Type, &t.Priority, &t.Status,
		&input, &output, &errMsg, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(input, &t.Input); err != nil {
		return nil, fmt.Errorf("unmarshal task input: %w", err)
	}
	if err := unmarshalJSON(output, &t.Output); err != nil {
		return nil, fmt.Errorf("unmarshal task output: %w", err)
	}
	t.Error = errMsg.String
	t.CreatedAt, _ = parseTime(createdAt)
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
