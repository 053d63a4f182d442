package store

import (
	"context"
	"testing"
	"time"

	"fieldops/internal/model"
)

func TestMemoryJobLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	j, err := m.UpsertJob(ctx, "t1", model.Job{Title: "Outlet repair"})
	if err != nil {
		t.Fatal(err)
	}
	if j.ID == "" || j.Status != model.JobStatusPending {
		t.Fatalf("unexpected job: %+v", j)
	}

	j.Status = model.JobStatusScheduled
	j.TechnicianID = "tech1"
	j.ScheduledDate = "2025-06-02"
	if _, err := m.UpsertJob(ctx, "t1", j); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetJob(ctx, "t1", j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusScheduled {
		t.Fatalf("status = %s", got.Status)
	}

	if _, err := m.GetJob(ctx, "other-tenant", j.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant read: err = %v, want ErrNotFound", err)
	}

	day, err := m.ListJobsForTechnician(ctx, "t1", "tech1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 1 {
		t.Fatalf("day jobs = %d, want 1", len(day))
	}

	n, err := m.CountJobsForTechnician(ctx, "t1", "tech1", "2025-06-02")
	if err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestMemoryListJobsForTechnicianFiltersStatus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, status := range []string{
		model.JobStatusScheduled, model.JobStatusInProgress,
		model.JobStatusCompleted, model.JobStatusCancelled, model.JobStatusPending,
	} {
		_, err := m.UpsertJob(ctx, "t1", model.Job{
			Status: status, TechnicianID: "tech1", ScheduledDate: "2025-06-02",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	day, err := m.ListJobsForTechnician(ctx, "t1", "tech1", "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(day) != 2 {
		t.Fatalf("day jobs = %d, want scheduled+in_progress only", len(day))
	}
}

func TestMemoryListJobsInRange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, date := range []string{"2025-06-01", "2025-06-03", "2025-06-10"} {
		_, err := m.UpsertJob(ctx, "t1", model.Job{
			Status: model.JobStatusScheduled, TechnicianID: "tech1", ScheduledDate: date,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	got, err := m.ListJobsInRange(ctx, "t1", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ScheduledDate != "2025-06-03" {
		t.Fatalf("range = %+v", got)
	}
}

func TestMemoryAvailableTechnicians(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seed := []model.Technician{
		{ID: "a", SkillLevel: model.SkillMaster, IsAvailable: true, EmergencyAvailability: true},
		{ID: "b", SkillLevel: model.SkillJourneyman, IsAvailable: true},
		{ID: "c", SkillLevel: model.SkillApprentice, IsAvailable: true},
		{ID: "d", SkillLevel: model.SkillMaster, IsAvailable: false},
	}
	for _, tech := range seed {
		if _, err := m.UpsertTechnician(ctx, "t1", tech); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.ListAvailableTechnicians(ctx, "t1", model.SkillsAtOrAbove(model.SkillJourneyman), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("available = %d, want 2", len(got))
	}

	got, err = m.ListAvailableTechnicians(ctx, "t1", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("emergency pool = %+v", got)
	}
}

func TestMemoryUpdateTechnicianLocation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tech, _ := m.UpsertTechnician(ctx, "t1", model.Technician{SkillLevel: model.SkillMaster, IsAvailable: true})

	if err := m.UpdateTechnicianLocation(ctx, "t1", tech.ID, 39.95, -75.16); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetTechnician(ctx, "t1", tech.ID)
	if got.Location == nil || got.Location.Lat != 39.95 {
		t.Fatalf("location = %+v", got.Location)
	}
	if err := m.UpdateTechnicianLocation(ctx, "t1", "missing", 0, 0); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryConflicts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c, err := m.CreateConflict(ctx, "t1", model.Conflict{
		Type: model.ConflictJobOverlap, JobID: "j1", TechnicianID: "tech1", Date: "2025-06-02",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" || c.DetectedAt == "" {
		t.Fatalf("conflict not stamped: %+v", c)
	}

	has, err := m.HasConflict(ctx, "t1", "j1", model.ConflictJobOverlap, "2025-06-02")
	if err != nil || !has {
		t.Fatalf("HasConflict = %v, %v", has, err)
	}
	has, _ = m.HasConflict(ctx, "t1", "j1", model.ConflictJobOverlap, "2025-06-03")
	if has {
		t.Fatal("date should scope HasConflict")
	}

	open := false
	list, err := m.ListConflicts(ctx, "t1", &open)
	if err != nil || len(list) != 1 {
		t.Fatalf("unresolved = %d, %v", len(list), err)
	}

	resolved, err := m.ResolveConflict(ctx, "t1", c.ID, "rescheduled second job")
	if err != nil {
		t.Fatal(err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == "" || resolved.ResolutionNotes == "" {
		t.Fatalf("resolve: %+v", resolved)
	}
	list, _ = m.ListConflicts(ctx, "t1", &open)
	if len(list) != 0 {
		t.Fatalf("unresolved after resolve = %d", len(list))
	}
}

func TestMemoryOptimizationRuns(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.SaveOptimizationRun(ctx, "t1", model.OptimizationRun{
		TechnicianID: "tech1", TargetDate: "2025-06-02", JobsOptimized: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	runs, err := m.ListOptimizationRuns(ctx, "t1", "tech1", "2025-06-02")
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %d, %v", len(runs), err)
	}
	runs, _ = m.ListOptimizationRuns(ctx, "t1", "tech2", "")
	if len(runs) != 0 {
		t.Fatalf("filter leak: %d", len(runs))
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		TenantID: "t1", URL: "https://example.com/hook", Events: []string{"route.optimized"}, Secret: "s",
	})
	if err != nil {
		t.Fatal(err)
	}

	matched, _ := m.GetSubscriptionsForEvent(ctx, "t1", "route.optimized")
	if len(matched) != 1 {
		t.Fatalf("matched = %d", len(matched))
	}
	matched, _ = m.GetSubscriptionsForEvent(ctx, "t1", "conflict.detected")
	if len(matched) != 0 {
		t.Fatalf("event filter leak: %d", len(matched))
	}

	id, err := m.EnqueueWebhook(ctx, "t1", sub.ID, "route.optimized", sub.URL, sub.Secret, []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	if err != nil || len(due) != 1 || due[0].ID != id {
		t.Fatalf("due = %+v, %v", due, err)
	}

	// failed attempt with backoff pushes it past now
	next := now.Add(30 * time.Second)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "503", 503, 12); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("backoff ignored, due = %d", len(due))
	}

	// after the backoff window it is due again, then success removes it
	m.now = func() time.Time { return now.Add(time.Minute) }
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].Attempts != 1 {
		t.Fatalf("retry due = %+v", due)
	}
	if err := m.MarkWebhookDelivery(ctx, id, true, nil, "", 200, 8); err != nil {
		t.Fatal(err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("delivered still due = %d", len(due))
	}
}

func TestMemorySubscriptionDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "https://x", Events: []string{"e"}})
	if err := m.DeleteSubscription(ctx, "t1", sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteSubscription(ctx, "t1", sub.ID); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
