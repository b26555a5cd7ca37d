package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateAgent persists a new agent.
func (db *DB) CreateAgent(a *models.Agent) error {
	config, err := marshalJSON(a.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO agents (id, project_id, domain, name, status, config, last_heartbeat, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.ProjectID, string(a.Domain), a.Name, string(a.Status), config,
		formatNullableTime(a.LastHeartbeat), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent does not exist.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	row := db.QueryRow(`
		SELECT id, project_id, domain, name, status, config, last_heartbeat, created_at
		FROM agents WHERE id = ?
	`, id)

	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// UpdateAgent updates an agent's mutable fields.
func (db *DB) UpdateAgent(a *models.Agent) error {
	config, err := marshalJSON(a.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}

	_, err = db.Exec(`
		UPDATE agents SET name = ?, status = ?, config = ?, last_heartbeat = ?
		WHERE id = ?
	`, a.Name, string(a.Status), config, formatNullableTime(a.LastHeartbeat), a.ID)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return nil
}

// UpdateAgentHeartbeat persists the agent's last heartbeat timestamp.
func (db *DB) UpdateAgentHeartbeat(id string, seen time.Time) error {
	_, err := db.Exec(`
		UPDATE agents SET last_heartbeat = ? WHERE id = ?
	`, formatTime(seen), id)
	if err != nil {
		return fmt.Errorf("update agent heartbeat: %w", err)
	}
	return nil
}

// ListAgentsByProject returns all agents for a project.
func (db *DB) ListAgentsByProject(projectID string) ([]models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, project_id, domain, name, status, config, last_heartbeat, created_at
		FROM agents WHERE project_id = ? ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list agents by project: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

// ListAgentsByStatus returns all agents with the given status, across projects.
func (db *DB) ListAgentsByStatus(status models.AgentStatus) ([]models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, project_id, domain, name, status, config, last_heartbeat, created_at
		FROM agents WHERE status = ? ORDER BY created_at
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list agents by status: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var config, lastHeartbeat sql.NullString
	var createdAt string

	err := row.Scan(&a.ID, &a.ProjectID, &a.Domain, &a.Name, &a.Status,
		&config, &lastHeartbeat, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(config, &a.Config); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	a.LastHeartbeat = parseNullableTime(lastHeartbeat)
	a.CreatedAt, _ = parseTime(createdAt)
	return &a, nil
}

func collectAgents(rows *sql.Rows) ([]models.Agent, error) {
	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}
