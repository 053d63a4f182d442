// Package config holds the heuristic constants the scheduling core runs on.
// Components take a Heuristics value at construction so tests can override
// work-day bounds, speeds, and scoring weights without touching globals.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Heuristics is the tunable policy surface of the scheduling core.
type Heuristics struct {
	// Route starting point when a technician has no last known location
	// (company home base, Philadelphia).
	BaseLat float64 `yaml:"baseLat"`
	BaseLng float64 `yaml:"baseLng"`

	// Average driving speed used for travel-time estimates.
	AvgSpeedMPH float64 `yaml:"avgSpeedMph"`

	// On-site duration assumed when neither the service type nor the AI
	// suggestion provides one.
	DefaultJobHours float64 `yaml:"defaultJobHours"`

	// Work-day bounds for time-slot suggestions, zero-padded HH:MM.
	WorkDayStart string `yaml:"workDayStart"`
	WorkDayEnd   string `yaml:"workDayEnd"`

	// Extra passes of 2-opt refinement when a caller asks for a refined route.
	RefineIterations int `yaml:"refineIterations"`

	Scoring    Scoring    `yaml:"scoring"`
	Complexity Complexity `yaml:"complexity"`
}

// Scoring weights for technician suggestion. Bonuses are summed per candidate.
type Scoring struct {
	ExactSkillMatch int     `yaml:"exactSkillMatch"`
	MasterFallback  int     `yaml:"masterFallback"` // master doing a lower-skill job
	SpecialtyMatch  int     `yaml:"specialtyMatch"`
	NearBonus       int     `yaml:"nearBonus"`
	MidBonus        int     `yaml:"midBonus"`
	NearRadiusMiles float64 `yaml:"nearRadiusMiles"`
	MidRadiusMiles  float64 `yaml:"midRadiusMiles"`
	IdleDayBonus    int     `yaml:"idleDayBonus"`  // no jobs yet that day
	LightDayBonus   int     `yaml:"lightDayBonus"` // up to LightDayMaxJobs
	LightDayMaxJobs int     `yaml:"lightDayMaxJobs"`
	MaxSuggestions  int     `yaml:"maxSuggestions"`
}

// Complexity drives the keyword-based job complexity estimate. The score
// starts at Base and is clamped to [1,10] after rounding.
type Complexity struct {
	Base            float64  `yaml:"base"`
	ComplexKeywords []string `yaml:"complexKeywords"`
	SimpleKeywords  []string `yaml:"simpleKeywords"`
	ComplexWeight   float64  `yaml:"complexWeight"`
	SimpleWeight    float64  `yaml:"simpleWeight"`
}

// Default returns the production heuristics.
func Default() Heuristics {
	return Heuristics{
		BaseLat:          39.9526,
		BaseLng:          -75.1652,
		AvgSpeedMPH:      35,
		DefaultJobHours:  2,
		WorkDayStart:     "08:00",
		WorkDayEnd:       "17:00",
		RefineIterations: 3,
		Scoring: Scoring{
			ExactSkillMatch: 10,
			MasterFallback:  5,
			SpecialtyMatch:  15,
			NearBonus:       10,
			MidBonus:        5,
			NearRadiusMiles: 5,
			MidRadiusMiles:  15,
			IdleDayBonus:    10,
			LightDayBonus:   5,
			LightDayMaxJobs: 2,
			MaxSuggestions:  5,
		},
		Complexity: Complexity{
			Base:            5,
			ComplexKeywords: []string{"rewire", "panel", "upgrade", "troubleshoot", "repair"},
			SimpleKeywords:  []string{"outlet", "switch", "fixture", "install"},
			ComplexWeight:   0.5,
			SimpleWeight:    0.3,
		},
	}
}

// Load reads a YAML overrides file on top of the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (Heuristics, error) {
	h := Default()
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("read heuristics config: %w", err)
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse heuristics config: %w", err)
	}
	return h, nil
}

// FromEnv loads heuristics from the file named by FIELDOPS_CONFIG, if set.
func FromEnv() (Heuristics, error) {
	return Load(os.Getenv("FIELDOPS_CONFIG"))
}
