package store

import (
	"context"
	"os"
	"testing"

	"fieldops/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}

	ctx := context.Background()
	tech, err := p.UpsertTechnician(ctx, "t_itest", model.Technician{
		Name: "integration tech", SkillLevel: model.SkillMaster, IsAvailable: true,
	})
	if err != nil {
		t.Fatalf("UpsertTechnician: %v", err)
	}
	job, err := p.UpsertJob(ctx, "t_itest", model.Job{
		Title: "integration job", Status: model.JobStatusScheduled,
		TechnicianID: tech.ID, ScheduledDate: "2025-06-02",
	})
	if err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}
	day, err := p.ListJobsForTechnician(ctx, "t_itest", tech.ID, "2025-06-02")
	if err != nil {
		t.Fatalf("ListJobsForTechnician: %v", err)
	}
	found := false
	for _, j := range day {
		if j.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("job %s not listed for technician", job.ID)
	}
}
