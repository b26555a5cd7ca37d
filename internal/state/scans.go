package state

import (
	"database/sql"
	"fmt"

	"github.com/opspilot/opspilot/pkg/models"
)

// CreateScan persists a security scan record.
func (db *DB) CreateScan(s *models.SecurityScan) error {
	findings, err := marshalJSON(s.Findings)
	if err != nil {
		return fmt.Errorf("marshal scan findings: %w", err)
	}
	decision, err := marshalJSON(s.Decision)
	if err != nil {
		return fmt.Errorf("marshal scan decision: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO security_scans (id, project_id, agent_id, severity, findings, resolved, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProjectID, s.AgentID, string(s.Severity), findings,
		boolToInt(s.Resolved), decision, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

// UpdateScan updates a scan's resolved flag and recorded decision.
func (db *DB) UpdateScan(s *models.SecurityScan) error {
	decision, err := marshalJSON(s.Decision)
	if err != nil {
		return fmt.Errorf("marshal scan decision: %w", err)
	}

	_, err = db.Exec(`
		UPDATE security_scans SET resolved = ?, decision = ? WHERE id = ?
	`, boolToInt(s.Resolved), decision, s.ID)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	return nil
}

// LatestScan returns a project's most recent scan, or ErrNotFound if the
// project has never been scanned.
func (db *DB) LatestScan(projectID string) (*models.SecurityScan, error) {
	row := db.QueryRow(`
		SELECT id, project_id, agent_id, severity, findings, resolved, decision, created_at
		FROM security_scans WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, projectID)

	s, err := scanSecurityScan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest scan: %w", err)
	}
	return s, nil
}

// ListUnresolvedHighSeverityScans returns a project's unresolved scans of high
// or critical severity, newest first, capped at limit.
func (db *DB) ListUnresolvedHighSeverityScans(projectID string, limit int) ([]models.SecurityScan, error) {
	rows, err := db.Query(`
		SELECT id, project_id, agent_id, severity, findings, resolved, decision, created_at
		FROM security_scans
		WHERE project_id = ? AND resolved = 0 AND severity IN ('high', 'critical')
		ORDER BY created_at DESC LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved high severity scans: %w", err)
	}
	defer rows.Close()

	var scans []models.SecurityScan
	for rows.Next() {
		s, err := scanSecurityScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security scan: %w", err)
		}
		scans = append(scans, *s)
	}
	return scans, rows.Err()
}

func scanSecurityScan(row rowScanner) (*models.SecurityScan, error) {
	var s models.SecurityScan
	var findings, decision sql.NullString
	var resolved int
	var createdAt string

	err := row.Scan(&s.ID, &s.ProjectID, &s.AgentID, &s.Severity,
		&findings, &resolved, &decision, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(findings, &s.Findings); err != nil {
		return nil, fmt.Errorf("unmarshal scan findings: %w", err)
	}
	if err := unmarshalJSON(decision, &s.Decision); err != nil {
		return nil, fmt.Errorf("unmarshal scan decision: %w", err)
	}
	s.Resolved = resolved != 0
	s.CreatedAt, _ = parseTime(createdAt)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
