package model

// Core domain types consumed and produced by the scheduling core. These are
// projections of records owned by the surrounding job-management layer; the
// core reads them and returns derived recommendation data, it never mutates
// the persisted entities.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Skill levels form a hierarchy: a higher tier can fill any lower tier's
// requirement (apprentice < journeyman < master).
const (
	SkillApprentice = "apprentice"
	SkillJourneyman = "journeyman"
	SkillMaster     = "master"
)

// SkillRank maps a skill level to its position in the hierarchy. Unknown
// levels rank below apprentice.
func SkillRank(level string) int {
	switch level {
	case SkillApprentice:
		return 1
	case SkillJourneyman:
		return 2
	case SkillMaster:
		return 3
	}
	return 0
}

// SkillsAtOrAbove returns the levels that satisfy a required level. An
// unknown required level admits everyone.
func SkillsAtOrAbove(required string) []string {
	min := SkillRank(required)
	if min == 0 {
		min = 1
	}
	var out []string
	for _, level := range []string{SkillApprentice, SkillJourneyman, SkillMaster} {
		if SkillRank(level) >= min {
			out = append(out, level)
		}
	}
	return out
}

// Job statuses. Scheduled and in_progress jobs count toward a technician's
// working day; everything else is invisible to the scheduling core.
const (
	JobStatusPending    = "pending"
	JobStatusScheduled  = "scheduled"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
	JobStatusOnHold     = "on_hold"
)

const (
	PriorityLow       = "low"
	PriorityNormal    = "normal"
	PriorityHigh      = "high"
	PriorityEmergency = "emergency"
)

// ServiceType bounds a job's duration estimate and skill requirement.
type ServiceType struct {
	Name                   string  `json:"name"`
	SkillLevelRequired     string  `json:"skillLevelRequired,omitempty"`
	EstimatedDurationHours float64 `json:"estimatedDurationHours,omitempty"`
}

// Job is the read-only projection of a service job. Dates are YYYY-MM-DD and
// times of day are zero-padded HH:MM, both in the company's local zone.
type Job struct {
	ID               string       `json:"id"`
	TenantID         string       `json:"tenantId,omitempty"`
	JobNumber        string       `json:"jobNumber,omitempty"`
	Title            string       `json:"title,omitempty"`
	Description      string       `json:"description,omitempty"`
	Status           string       `json:"status"`
	Priority         string       `json:"priority,omitempty"`
	ServiceType      *ServiceType `json:"serviceType,omitempty"`
	Location         *GeoPoint    `json:"location,omitempty"`
	ScheduledDate    string       `json:"scheduledDate,omitempty"`
	ScheduledStart   string       `json:"scheduledStart,omitempty"`
	ScheduledEnd     string       `json:"scheduledEnd,omitempty"`
	TechnicianID     string       `json:"technicianId,omitempty"`
	AISuggestedHours float64      `json:"aiSuggestedHours,omitempty"`
}

type Technician struct {
	ID                    string    `json:"id"`
	TenantID              string    `json:"tenantId,omitempty"`
	Name                  string    `json:"name,omitempty"`
	SkillLevel            string    `json:"skillLevel"`
	Specialties           []string  `json:"specialties,omitempty"` // service type names
	Location              *GeoPoint `json:"location,omitempty"`
	IsAvailable           bool      `json:"isAvailable"`
	EmergencyAvailability bool      `json:"emergencyAvailability,omitempty"`
}

// ScoredTechnician pairs a candidate with its suggestion score.
type ScoredTechnician struct {
	Technician Technician `json:"technician"`
	Score      int        `json:"score"`
}

// RouteMetrics summarizes a planned route. The zero value is the "no jobs"
// result: all-zero with efficiency 0.
type RouteMetrics struct {
	TotalDistanceMiles  float64 `json:"totalDistanceMiles"`
	TravelTimeSec       int     `json:"travelTimeSec"`
	JobTimeSec          int     `json:"jobTimeSec"`
	EfficiencyScore     float64 `json:"efficiencyScore"`
	EstimatedCompletion string  `json:"estimatedCompletion,omitempty"`
}

// Conflict types recorded by the detector.
const (
	ConflictJobOverlap = "job_overlap"
)

type Conflict struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenantId,omitempty"`
	Type            string `json:"type"`
	Description     string `json:"description,omitempty"`
	JobID           string `json:"jobId"`
	OtherJobID      string `json:"otherJobId,omitempty"`
	TechnicianID    string `json:"technicianId"`
	Date            string `json:"date"`
	StartTime       string `json:"startTime,omitempty"`
	EndTime         string `json:"endTime,omitempty"`
	Resolved        bool   `json:"resolved"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
	DetectedAt      string `json:"detectedAt,omitempty"`
	ResolvedAt      string `json:"resolvedAt,omitempty"`
}

// OptimizationRun is the audit record persisted after a route optimization.
type OptimizationRun struct {
	ID                 string  `json:"id"`
	TenantID           string  `json:"tenantId,omitempty"`
	TechnicianID       string  `json:"technicianId"`
	TargetDate         string  `json:"targetDate"`
	JobsOptimized      int     `json:"jobsOptimized"`
	TotalDistanceMiles float64 `json:"totalDistanceMiles"`
	TravelTimeSec      int     `json:"travelTimeSec"`
	EfficiencyScore    float64 `json:"efficiencyScore"`
	Refined            bool    `json:"refined,omitempty"`
	CreatedAt          string  `json:"createdAt,omitempty"`
}

// API request bodies.

type OptimizeRequest struct {
	TechnicianID string `json:"technicianId"`
	Date         string `json:"date"`
	Refine       bool   `json:"refine,omitempty"`
}

type TimeSlotRequest struct {
	TechnicianID string `json:"technicianId"`
	Date         string `json:"date"`
}

type ConflictDetectRequest struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type LocationUpdate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  string  `json:"ts,omitempty"`
}

// Webhook subscriptions owned by the surrounding job-management layer.

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
