package schedule

import (
	"context"
	"fmt"

	"fieldops/internal/model"
)

// Overlaps reports whether two half-open HH:MM intervals intersect.
// Zero-padded clock strings compare correctly as strings.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && bStart < aEnd
}

// ConflictStore is the slice of the store the detector needs.
type ConflictStore interface {
	ListJobsInRange(ctx context.Context, tenantID, fromDate, toDate string) ([]model.Job, error)
	HasConflict(ctx context.Context, tenantID, jobID, conflictType, date string) (bool, error)
	CreateConflict(ctx context.Context, tenantID string, c model.Conflict) (model.Conflict, error)
}

type Detector struct {
	store ConflictStore
}

func NewDetector(store ConflictStore) *Detector {
	return &Detector{store: store}
}

// DetectConflicts scans scheduled jobs in [fromDate, toDate] and records a
// job_overlap conflict for every job whose time window intersects another job
// on the same technician and date. Each involved job gets its own record, so
// an overlapping pair yields two conflicts, one per side. A job already
// flagged for that date is not flagged again, so repeated scans are
// idempotent. Returns the number of conflicts created by this scan.
func (d *Detector) DetectConflicts(ctx context.Context, tenantID, fromDate, toDate string) (int, error) {
	jobs, err := d.store.ListJobsInRange(ctx, tenantID, fromDate, toDate)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, a := range jobs {
		if a.TechnicianID == "" || a.ScheduledStart == "" || a.ScheduledEnd == "" {
			continue
		}
		for j, b := range jobs {
			if j == i {
				continue
			}
			if b.TechnicianID != a.TechnicianID || b.ScheduledDate != a.ScheduledDate {
				continue
			}
			if b.ScheduledStart == "" || b.ScheduledEnd == "" {
				continue
			}
			if !Overlaps(a.ScheduledStart, a.ScheduledEnd, b.ScheduledStart, b.ScheduledEnd) {
				continue
			}
			exists, err := d.store.HasConflict(ctx, tenantID, a.ID, model.ConflictJobOverlap, a.ScheduledDate)
			if err != nil {
				return created, err
			}
			if !exists {
				c := model.Conflict{
					Type:         model.ConflictJobOverlap,
					JobID:        a.ID,
					OtherJobID:   b.ID,
					TechnicianID: a.TechnicianID,
					Date:         a.ScheduledDate,
					StartTime:    a.ScheduledStart,
					EndTime:      a.ScheduledEnd,
					Description:  fmt.Sprintf("job %s overlaps with job %s", a.JobNumber, b.JobNumber),
				}
				if _, err := d.store.CreateConflict(ctx, tenantID, c); err != nil {
					return created, err
				}
				created++
			}
			// one record per job and date, regardless of how many jobs it
			// overlaps
			break
		}
	}
	return created, nil
}
