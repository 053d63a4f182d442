// Package opt orders a technician's daily jobs to approximately minimize
// travel and reports route metrics. The heuristics are greedy, not globally
// optimal.
package opt

import (
	"context"
	"math"
	"time"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

// JobSource provides the day's assigned jobs for a technician (status
// scheduled or in_progress only).
type JobSource interface {
	ListJobsForTechnician(ctx context.Context, tenantID, technicianID, date string) ([]model.Job, error)
}

// Optimizer plans single-technician routes. It is stateless between calls;
// every call re-reads the job source.
type Optimizer struct {
	jobs JobSource
	cfg  config.Heuristics
	now  func() time.Time
}

func NewOptimizer(src JobSource, cfg config.Heuristics) *Optimizer {
	return &Optimizer{jobs: src, cfg: cfg, now: time.Now}
}

// OptimizeRoute orders the technician's jobs for the date by nearest-neighbor,
// anchored at the technician's last known location or the configured home
// base. A technician with no jobs yields an empty route and no error.
func (o *Optimizer) OptimizeRoute(ctx context.Context, tenantID string, tech model.Technician, date string) ([]model.Job, error) {
	jobs, err := o.jobs.ListJobsForTechnician(ctx, tenantID, tech.ID, date)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []model.Job{}, nil
	}
	startLat, startLng := o.Start(tech)
	return NearestNeighbor(jobs, startLat, startLng), nil
}

// Start resolves the route anchor for a technician.
func (o *Optimizer) Start(tech model.Technician) (float64, float64) {
	if tech.Location != nil {
		return tech.Location.Lat, tech.Location.Lng
	}
	return o.cfg.BaseLat, o.cfg.BaseLng
}

// Refine runs the configured number of 2-opt passes over an ordered route.
func (o *Optimizer) Refine(jobs []model.Job, startLat, startLng float64) []model.Job {
	return Refine2Opt(jobs, startLat, startLng, o.cfg.RefineIterations)
}

// NearestNeighbor repeatedly visits the closest remaining job with known
// coordinates. Jobs without coordinates cannot be ordered geometrically and
// are appended at the tail in their incoming order; this is the fallback
// policy, not an error. Distance ties keep the first candidate seen, so the
// result is deterministic for a fixed input order.
func NearestNeighbor(jobs []model.Job, startLat, startLng float64) []model.Job {
	route := make([]model.Job, 0, len(jobs))
	remaining := append([]model.Job(nil), jobs...)
	curLat, curLng := startLat, startLng
	for len(remaining) > 0 {
		best := -1
		bestDist := math.MaxFloat64
		for i, j := range remaining {
			if j.Location == nil {
				continue
			}
			if d := geo.Distance(curLat, curLng, j.Location.Lat, j.Location.Lng); d < bestDist {
				bestDist = d
				best = i
			}
		}
		if best < 0 {
			// only un-located jobs left
			route = append(route, remaining...)
			break
		}
		next := remaining[best]
		route = append(route, next)
		remaining = append(remaining[:best], remaining[best+1:]...)
		curLat, curLng = next.Location.Lat, next.Location.Lng
	}
	return route
}

// RouteMetrics walks an ordered route from the starting position, summing
// leg distances and on-site durations. Jobs without coordinates contribute
// duration but no distance. An empty route returns the zero value (all-zero,
// efficiency 0).
func (o *Optimizer) RouteMetrics(jobs []model.Job, startLat, startLng float64) model.RouteMetrics {
	if len(jobs) == 0 {
		return model.RouteMetrics{}
	}
	totalMiles := 0.0
	curLat, curLng := startLat, startLng
	var jobTime time.Duration
	for _, j := range jobs {
		if j.Location != nil {
			totalMiles += geo.Distance(curLat, curLng, j.Location.Lat, j.Location.Lng)
			curLat, curLng = j.Location.Lat, j.Location.Lng
		}
		jobTime += JobDuration(j, o.cfg.DefaultJobHours)
	}
	travel := geo.TravelTime(totalMiles, o.cfg.AvgSpeedMPH)
	// Zero travel scores 100: a single-stop or zero-distance day is all
	// productive time by this formula.
	eff := 100.0
	if travel > 0 {
		eff = jobTime.Seconds() / (jobTime.Seconds() + travel.Seconds()) * 100
	}
	return model.RouteMetrics{
		TotalDistanceMiles:  math.Round(totalMiles*100) / 100,
		TravelTimeSec:       int(travel.Seconds()),
		JobTimeSec:          int(jobTime.Seconds()),
		EfficiencyScore:     math.Round(eff*10) / 10,
		EstimatedCompletion: o.now().Add(jobTime + travel).UTC().Format(time.RFC3339),
	}
}

// JobDuration resolves a job's expected on-site duration using one ordered
// fallback chain for every call site: the service type's estimate, then the
// AI-suggested hours, then the supplied default.
func JobDuration(j model.Job, defaultHours float64) time.Duration {
	hours := defaultHours
	switch {
	case j.ServiceType != nil && j.ServiceType.EstimatedDurationHours > 0:
		hours = j.ServiceType.EstimatedDurationHours
	case j.AISuggestedHours > 0:
		hours = j.AISuggestedHours
	}
	return time.Duration(hours * float64(time.Hour))
}
