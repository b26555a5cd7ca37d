package state

import (
	"database/sql"
	"fmt"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateIncident persists a new incident.
func (db *DB) CreateIncident(inc *models.Incident) error {
	decision, err := marshalJSON(inc.Decision)
	if err != nil {
		return fmt.Errorf("marshal incident decision: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO incidents (id, project_id, agent_id, deployment_id, title, description, severity, status, decision, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inc.ID, inc.ProjectID, inc.AgentID, inc.DeploymentID, inc.Title, inc.Description,
		string(inc.Severity), string(inc.Status), decision,
		formatTime(inc.CreatedAt), formatNullableTime(inc.ResolvedAt))
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
// Returns ErrNotFound if the incident does not exist.
func (db *DB) GetIncident(id string) (*models.Incident, error) {
	row := db.QueryRow(`
		SELECT id, project_id, agent_id, deployment_id, title, description, severity, status, decision, created_at, resolved_at
		FROM incidents WHERE id = ?
	`, id)

	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// UpdateIncident updates an incident's mutable fields.
func (db *DB) UpdateIncident(inc *models.Incident) error {
	decision, err := marshalJSON(inc.Decision)
	if err != nil {
		return fmt.Errorf("marshal incident decision: %w", err)
	}

	_, err = db.Exec(`
		UPDATE incidents SET title = ?, description = ?, severity = ?, status = ?, decision = ?, resolved_at = ?
		WHERE id = ?
	`, inc.Title, inc.Description, string(inc.Severity), string(inc.Status),
		decision, formatNullableTime(inc.ResolvedAt), inc.ID)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// ListIncidentsByProject returns incidents for a project, newest first.
func (db *DB) ListIncidentsByProject(projectID string, limit int) ([]models.Incident, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_id, deployment_id, title, description, severity, status, decision, created_at, resolved_at
		FROM incidents WHERE project_id = ? ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents by project: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
	}
	return incidents, rows.Err()
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var deploymentID, description, decision, resolvedAt sql.NullString
	var createdAt string

	err := row.Scan(&inc.ID, &inc.ProjectID, &inc.AgentID, &deploymentID, &inc.Title,
		&description, &inc.Severity, &inc.Status, &decision, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	inc.DeploymentID = deploymentID.String
	inc.Description = description.String
	if err := unmarshalJSON(decision, &inc.Decision); err != nil {
		return nil, fmt.Errorf("unmarshal incident decision: %w", err)
	}
	inc.CreatedAt, _ = parseTime(createdAt)
	inc.ResolvedAt = parseNullableTime(resolvedAt)
	return &inc, nil
}
