package schedule

import (
	"context"
	"testing"

	"fieldops/internal/model"
)

type fakeConflictStore struct {
	jobs    []model.Job
	created []model.Conflict
}

func (f *fakeConflictStore) ListJobsInRange(_ context.Context, _, _, _ string) ([]model.Job, error) {
	return f.jobs, nil
}

func (f *fakeConflictStore) HasConflict(_ context.Context, _, jobID, conflictType, date string) (bool, error) {
	for _, c := range f.created {
		if c.JobID == jobID && c.Type == conflictType && c.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeConflictStore) CreateConflict(_ context.Context, _ string, c model.Conflict) (model.Conflict, error) {
	c.ID = "c" + string(rune('1'+len(f.created)))
	f.created = append(f.created, c)
	return c, nil
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		aStart, aEnd, bStart, bEnd string
		want                       bool
	}{
		{"08:00", "10:00", "09:00", "11:00", true},
		{"08:00", "10:00", "10:00", "12:00", false}, // back-to-back is fine
		{"08:00", "12:00", "09:00", "10:00", true},  // containment
		{"13:00", "14:00", "08:00", "09:00", false},
		{"08:00", "10:00", "08:00", "10:00", true},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
			t.Errorf("Overlaps(%s-%s, %s-%s) = %v, want %v", tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, got, tc.want)
		}
	}
}

func TestDetectConflictsFlagsEachInvolvedJobAndIsIdempotent(t *testing.T) {
	st := &fakeConflictStore{jobs: []model.Job{
		{ID: "j1", JobNumber: "J-001", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "08:00", ScheduledEnd: "10:00"},
		{ID: "j2", JobNumber: "J-002", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "09:00", ScheduledEnd: "11:00"},
		{ID: "j3", JobNumber: "J-003", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "11:00", ScheduledEnd: "12:00"},
	}}
	d := NewDetector(st)

	n, err := d.DetectConflicts(context.Background(), "t_demo", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	// both sides of the overlapping pair get their own record
	if n != 2 {
		t.Fatalf("created = %d, want 2", n)
	}
	c := st.created[0]
	if c.JobID != "j1" || c.OtherJobID != "j2" || c.Type != model.ConflictJobOverlap {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	if c.Description != "job J-001 overlaps with job J-002" {
		t.Fatalf("description = %q", c.Description)
	}
	c = st.created[1]
	if c.JobID != "j2" || c.OtherJobID != "j1" {
		t.Fatalf("unexpected conflict: %+v", c)
	}
	if c.StartTime != "09:00" || c.EndTime != "11:00" {
		t.Fatalf("conflict window = %s-%s, want the flagged job's own window", c.StartTime, c.EndTime)
	}

	// a second scan finds both overlaps already recorded
	n, err = d.DetectConflicts(context.Background(), "t_demo", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(st.created) != 2 {
		t.Fatalf("rescan created %d (total %d), want 0 (total 2)", n, len(st.created))
	}
}

func TestDetectConflictsRecordsOnePerJobAcrossManyOverlaps(t *testing.T) {
	// j1 overlaps both j2 and j3 but is still flagged once
	st := &fakeConflictStore{jobs: []model.Job{
		{ID: "j1", JobNumber: "J-001", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "08:00", ScheduledEnd: "12:00"},
		{ID: "j2", JobNumber: "J-002", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "09:00", ScheduledEnd: "10:00"},
		{ID: "j3", JobNumber: "J-003", TechnicianID: "t1", ScheduledDate: "2025-06-02",
			ScheduledStart: "10:30", ScheduledEnd: "11:30"},
	}}
	d := NewDetector(st)

	n, err := d.DetectConflicts(context.Background(), "t_demo", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("created = %d, want 3 (one per involved job)", n)
	}
	seen := map[string]int{}
	for _, c := range st.created {
		seen[c.JobID]++
	}
	for _, id := range []string{"j1", "j2", "j3"} {
		if seen[id] != 1 {
			t.Fatalf("job %s flagged %d times, want 1", id, seen[id])
		}
	}
}

func TestDetectConflictsIgnoresDifferentTechnicianAndDate(t *testing.T) {
	st := &fakeConflictStore{jobs: []model.Job{
		{ID: "j1", TechnicianID: "t1", ScheduledDate: "2025-06-02", ScheduledStart: "08:00", ScheduledEnd: "10:00"},
		{ID: "j2", TechnicianID: "t2", ScheduledDate: "2025-06-02", ScheduledStart: "08:00", ScheduledEnd: "10:00"},
		{ID: "j3", TechnicianID: "t1", ScheduledDate: "2025-06-03", ScheduledStart: "08:00", ScheduledEnd: "10:00"},
	}}
	d := NewDetector(st)

	n, err := d.DetectConflicts(context.Background(), "t_demo", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("created = %d, want 0", n)
	}
}

func TestDetectConflictsSkipsUnassignedAndUntimed(t *testing.T) {
	st := &fakeConflictStore{jobs: []model.Job{
		{ID: "j1", ScheduledDate: "2025-06-02", ScheduledStart: "08:00", ScheduledEnd: "10:00"},
		{ID: "j2", TechnicianID: "t1", ScheduledDate: "2025-06-02"},
		{ID: "j3", TechnicianID: "t1", ScheduledDate: "2025-06-02", ScheduledStart: "08:00", ScheduledEnd: "10:00"},
	}}
	d := NewDetector(st)

	n, err := d.DetectConflicts(context.Background(), "t_demo", "2025-06-02", "2025-06-09")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("created = %d, want 0", n)
	}
}
