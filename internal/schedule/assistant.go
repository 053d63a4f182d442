// Package schedule implements technician suggestion, job complexity
// estimation, time-slot search, and overlap conflict detection. Missing
// optional data degrades to empty results; nothing here raises errors for
// absent coordinates or durations.
package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/opt"
)

// Directory is the read-only view of technicians and their day plans that
// the assistant queries on every call.
type Directory interface {
	ListAvailableTechnicians(ctx context.Context, tenantID string, skills []string, emergencyOnly bool) ([]model.Technician, error)
	ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) ([]model.Job, error)
	CountJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) (int, error)
}

type Assistant struct {
	dir Directory
	cfg config.Heuristics
	now func() time.Time
}

func NewAssistant(dir Directory, cfg config.Heuristics) *Assistant {
	return &Assistant{dir: dir, cfg: cfg, now: time.Now}
}

// SuggestTechnicians ranks available technicians for a job. The pool is
// technicians whose skill meets the job's requirement; emergency jobs
// further require the emergency-availability flag. Candidates are scored by
// summing the configured bonuses and the top MaxSuggestions are returned,
// ties preserving query order. Zero eligible candidates is an empty slice,
// not an error.
func (a *Assistant) SuggestTechnicians(ctx context.Context, tenantID string, job model.Job) ([]model.ScoredTechnician, error) {
	required := model.SkillApprentice
	if job.ServiceType != nil && job.ServiceType.SkillLevelRequired != "" {
		required = job.ServiceType.SkillLevelRequired
	}
	candidates, err := a.dir.ListAvailableTechnicians(ctx, tenantID, model.SkillsAtOrAbove(required), job.Priority == model.PriorityEmergency)
	if err != nil {
		return nil, err
	}

	date := job.ScheduledDate
	if date == "" {
		date = a.now().Format("2006-01-02")
	}
	sc := a.cfg.Scoring
	scored := make([]model.ScoredTechnician, 0, len(candidates))
	for _, tech := range candidates {
		score := 0
		// An overqualified master still collects a smaller fallback bonus.
		if tech.SkillLevel == required {
			score += sc.ExactSkillMatch
		} else if tech.SkillLevel == model.SkillMaster {
			score += sc.MasterFallback
		}
		if job.ServiceType != nil && hasSpecialty(tech.Specialties, job.ServiceType.Name) {
			score += sc.SpecialtyMatch
		}
		if tech.Location != nil && job.Location != nil {
			d := geo.Distance(tech.Location.Lat, tech.Location.Lng, job.Location.Lat, job.Location.Lng)
			switch {
			case d <= sc.NearRadiusMiles:
				score += sc.NearBonus
			case d <= sc.MidRadiusMiles:
				score += sc.MidBonus
			}
		}
		n, err := a.dir.CountJobsForTechnician(ctx, tenantID, tech.ID, date)
		if err != nil {
			return nil, err
		}
		switch {
		case n == 0:
			score += sc.IdleDayBonus
		case n <= sc.LightDayMaxJobs:
			score += sc.LightDayBonus
		}
		scored = append(scored, model.ScoredTechnician{Technician: tech, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if max := sc.MaxSuggestions; max > 0 && len(scored) > max {
		scored = scored[:max]
	}
	return scored, nil
}

func hasSpecialty(specialties []string, serviceType string) bool {
	for _, s := range specialties {
		if strings.EqualFold(s, serviceType) {
			return true
		}
	}
	return false
}

// EstimateComplexity scores a job on a 1-10 scale from keyword heuristics.
// This is a placeholder policy, not a trained model.
func (a *Assistant) EstimateComplexity(job model.Job) int {
	c := a.cfg.Complexity
	score := c.Base

	if job.ServiceType != nil {
		name := strings.ToLower(job.ServiceType.Name)
		switch {
		case strings.Contains(name, "panel") || strings.Contains(name, "upgrade"):
			score += 2
		case strings.Contains(name, "emergency"):
			score++
		case strings.Contains(name, "outlet"):
			score--
		}
	}

	switch job.Priority {
	case model.PriorityEmergency:
		score++
	case model.PriorityHigh:
		score += 0.5
	}

	desc := strings.ToLower(job.Description)
	for _, kw := range c.ComplexKeywords {
		if strings.Contains(desc, kw) {
			score += c.ComplexWeight
		}
	}
	for _, kw := range c.SimpleKeywords {
		if strings.Contains(desc, kw) {
			score -= c.SimpleWeight
		}
	}

	// half-point scores round to the nearest even step, so 4.5 is a 4 and
	// 5.5 a 6
	n := int(math.RoundToEven(score))
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	return n
}

// SuggestTimeSlot finds the first gap in the technician's day, within the
// configured work-day bounds, large enough for the job's estimated duration.
// Returns ("", false, nil) when the day has no sufficient gap; errors are
// reserved for the directory and malformed work-day configuration.
func (a *Assistant) SuggestTimeSlot(ctx context.Context, tenantID string, job model.Job, technicianID, date string) (string, bool, error) {
	existing, err := a.dir.ListJobsForTechnician(ctx, tenantID, technicianID, date)
	if err != nil {
		return "", false, err
	}
	dayStart, err := ParseClock(a.cfg.WorkDayStart)
	if err != nil {
		return "", false, fmt.Errorf("work day start: %w", err)
	}
	dayEnd, err := ParseClock(a.cfg.WorkDayEnd)
	if err != nil {
		return "", false, fmt.Errorf("work day end: %w", err)
	}
	need := int(opt.JobDuration(job, a.cfg.DefaultJobHours).Minutes())

	sort.SliceStable(existing, func(i, j int) bool {
		return existing[i].ScheduledStart < existing[j].ScheduledStart
	})

	cur := dayStart
	for _, ex := range existing {
		if ex.ScheduledStart == "" {
			continue
		}
		start, err := ParseClock(ex.ScheduledStart)
		if err != nil {
			continue
		}
		if start-cur >= need {
			return FormatClock(cur), true, nil
		}
		if ex.ScheduledEnd != "" {
			if end, err := ParseClock(ex.ScheduledEnd); err == nil {
				cur = end
				continue
			}
		}
		// no explicit end: assume the job runs for its own estimated duration
		cur = start + int(opt.JobDuration(ex, a.cfg.DefaultJobHours).Minutes())
	}
	if dayEnd-cur >= need {
		return FormatClock(cur), true, nil
	}
	return "", false, nil
}

// ParseClock converts a zero-padded HH:MM string to minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as zero-padded HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
