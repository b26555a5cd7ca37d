package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateDeployment persists a new deployment record.
func (db *DB) CreateDeployment(d *models.Deployment) error {
	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal deployment metadata: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO deployments (id, project_id, version, strategy, environment, status, url, health, error, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ProjectID, d.Version, d.Strategy, d.Environment, string(d.Status),
		d.URL, d.Health, d.Error, metadata, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by ID.
// Returns ErrNotFound if the deployment does not exist.
func (db *DB) GetDeployment(id string) (*models.Deployment, error) {
	row := db.QueryRow(`
		SELECT id, project_id, version, strategy, environment, status, url, health, error, metadata, created_at, updated_at
		FROM deployments WHERE id = ?
	`, id)

	d, err := scanDeployment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}
	return d, nil
}

// UpdateDeployment updates a deployment's mutable fields and bumps updated_at.
func (db *DB) UpdateDeployment(d *models.Deployment) error {
	metadata, err := marshalJSON(d.Metadata)
	if err != nil {
		return fmt.Errorf("marshal deployment metadata: %w", err)
	}

	d.UpdatedAt = time.Now()
	_, err = db.Exec(`
		UPDATE deployments SET status = ?, url = ?, health = ?, error = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, string(d.Status), d.URL, d.Health, d.Error, metadata, formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	return nil
}

// ListDeploymentsByStatus returns a project's deployments with the given status.
func (db *DB) ListDeploymentsByStatus(projectID string, status models.DeploymentStatus) ([]models.Deployment, error) {
	rows, err := db.Query(`
		SELECT id, project_id, version, strategy, environment, status, url, health, error, metadata, created_at, updated_at
		FROM deployments WHERE project_id = ? AND status = ? ORDER BY created_at DESC
	`, projectID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list deployments by status: %w", err)
	}
	defer rows.Close()

	return collectDeployments(rows)
}

// ListStuckDeployments returns a project's deployments that have been in the
// deploying state since before the cutoff.
func (db *DB) ListStuckDeployments(projectID string, cutoff time.Time) ([]models.Deployment, error) {
	rows, err := db.Query(`
		SELECT id, project_id, version, strategy, environment, status, url, health, error, metadata, created_at, updated_at
		FROM deployments WHERE project_id = ? AND status = 'deploying' AND updated_at < ?
	`, projectID, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list stuck deployments: %w", err)
	}
	defer rows.Close()

	return collectDeployments(rows)
}

func scanDeployment(row rowScanner) (*models.Deployment, error) {
	var d models.Deployment
	var url, health, errMsg, metadata sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.ProjectID, &d.Version, &d.Strategy, &d.Environment, &d.Status,
		&url, &health, &errMsg, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.URL = url.String
	d.Health = health.String
	d.Error = errMsg.String
	if err := unmarshalJSON(metadata, &d.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal deployment metadata: %w", err)
	}
	d.CreatedAt, _ = parseTime(createdAt)
	d.UpdatedAt, _ = parseTime(updatedAt)
	return &d, nil
}

func collectDeployments(rows *sql.Rows) ([]models.Deployment, error) {
	var deployments []models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}
