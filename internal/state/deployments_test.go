package state

import (
	"testing"
	"time"

	"github.com/opspilot/opspilot/pkg/models"
)

func TestDeploymentRoundTrip(t *testing.T) {
	db := testDB(t)

	d := &models.Deployment{
		ID:          "dep-1",
		ProjectID:   "proj-1",
		Version:     "v1.2.3",
		Strategy:    "rolling",
		Environment: "production",
		Status:      models.DeploymentPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.CreateDeployment(d); err != nil {
		t.Fatalf("create deployment: %v", err)
	}

	d.Status = models.DeploymentDeployed
	d.URL = "https://proj-1.example.com"
	d.Health = "healthy"
	if err := db.UpdateDeployment(d); err != nil {
		t.Fatalf("update deployment: %v", err)
	}

	got, err := db.GetDeployment("dep-1")
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if got.Status != models.DeploymentDeployed {
		t.Errorf("Status = %q, want deployed", got.Status)
	}
	if got.URL != "https://proj-1.example.com" {
		t.Errorf("URL = %q", got.URL)
	}
}

func TestListStuckDeployments(t *testing.T) {
	db := testDB(t)

	stuck := &models.Deployment{
		ID: "dep-stuck", ProjectID: "proj-1", Version: "v1", Strategy: "rolling",
		Environment: "production", Status: models.DeploymentDeploying,
		CreatedAt: time.Now().Add(-30 * time.Minute),
		UpdatedAt: time.Now().Add(-30 * time.Minute),
	}
	fresh := &models.Deployment{
		ID: "dep-fresh", ProjectID: "proj-1", Version: "v2", Strategy: "rolling",
		Environment: "production", Status: models.DeploymentDeploying,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, d := range []*models.Deployment{stuck, fresh} {
		if err := db.CreateDeployment(d); err != nil {
			t.Fatalf("create deployment: %v", err)
		}
	}

	got, err := db.ListStuckDeployments("proj-1", time.Now().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("list stuck: %v", err)
	}
	if len(got) != 1 || got[0].ID != "dep-stuck" {
		t.Errorf("stuck = %+v, want only dep-stuck", got)
	}
}

func TestListDeploymentsByStatus(t *testing.T) {
	db := testDB(t)

	for _, d := range []*models.Deployment{
		{ID: "d-1", Status: models.DeploymentDeployed},
		{ID: "d-2", Status: models.DeploymentFailed},
		{ID: "d-3", Status: models.DeploymentDeployed},
	} {
		d.ProjectID = "proj-1"
		d.Version = "v1"
		d.Strategy = "rolling"
		d.Environment = "production"
		d.CreatedAt = time.Now()
		d.UpdatedAt = time.Now()
		if err := db.CreateDeployment(d); err != nil {
			t.Fatalf("create deployment: %v", err)
		}
	}

	deployed, err := db.ListDeploymentsByStatus("proj-1", models.DeploymentDeployed)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(deployed) != 2 {
		t.Errorf("deployed = %d, want 2", len(deployed))
	}
}
