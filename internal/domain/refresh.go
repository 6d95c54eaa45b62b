package domain

import (
	"fmt"
	"strings"
	"time"
)

// Partition is one refresh scope: a city with its tier assignment and the
// approximate coordinates configuration carries for it. Tier membership is
// configuration, never runtime state.
type Partition struct {
	Name    string  `json:"name" mapstructure:"name"`
	Region  string  `json:"region" mapstructure:"region"`
	Country string  `json:"country" mapstructure:"country"`
	Lat     float64 `json:"lat" mapstructure:"lat"`
	Lng     float64 `json:"lng" mapstructure:"lng"`
	Tier    string  `json:"tier" mapstructure:"-"`
}

// JobID derives the stable job identity from the partition identity.
func (p Partition) JobID() string {
	id := fmt.Sprintf("refresh_hotels_%s_%s_%s", p.Name, p.Region, p.Country)
	return strings.ToLower(strings.ReplaceAll(id, " ", "_"))
}

func (p Partition) Label() string {
	parts := []string{p.Name}
	if p.Region != "" {
		parts = append(parts, p.Region)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	return strings.Join(parts, ", ")
}

type Tier struct {
	ID         string
	Interval   time.Duration
	Partitions []Partition
}

// TierTable is the configured tier/cadence topology.
type TierTable struct {
	Tiers []Tier
}

// Find resolves a partition by name with optional region/country filters,
// case-insensitively. Used by the manual-trigger surface, which addresses
// partitions the way operators type them.
func (t TierTable) Find(name, region, country string) (Partition, Tier, bool) {
	for _, tier := range t.Tiers {
		for _, p := range tier.Partitions {
			if !strings.EqualFold(p.Name, name) {
				continue
			}
			if region != "" && !strings.EqualFold(p.Region, region) {
				continue
			}
			if country != "" && !strings.EqualFold(p.Country, country) {
				continue
			}
			return p, tier, true
		}
	}
	return Partition{}, Tier{}, false
}

func (t TierTable) Partitions() []Partition {
	var out []Partition
	for _, tier := range t.Tiers {
		out = append(out, tier.Partitions...)
	}
	return out
}

// Refresh job statuses. A job in the table is "idle" until its first run.
const (
	JobIdle      = "idle"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobError     = "error"
)

// RefreshResult is the outcome snapshot of one executor run. The executor
// never returns a Go error past this boundary; callers read Status.
type RefreshResult struct {
	JobID     string        `json:"job_id"`
	RunID     string        `json:"run_id"`
	Partition Partition     `json:"partition"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Amenities int           `json:"amenities"`
	Images    int           `json:"images"`
	Rates     int           `json:"rates"`
	Errors    []string      `json:"errors,omitempty"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
}

// JobSnapshot is the management view of one refresh job: identity plus the
// last execution's result and the cumulative counters the scheduler keeps.
type JobSnapshot struct {
	JobID        string        `json:"job_id"`
	Partition    Partition     `json:"partition"`
	Tier         string        `json:"tier"`
	Interval     time.Duration `json:"interval"`
	Status       string        `json:"status"`
	Runs         int           `json:"runs"`
	SkippedTicks int           `json:"skipped_ticks"`
	LastStart    time.Time     `json:"last_start"`
	LastDuration time.Duration `json:"last_duration"`
	Processed    int           `json:"processed"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Amenities    int           `json:"amenities"`
	Images       int           `json:"images"`
	Rates        int           `json:"rates"`
	LastErrors   []string      `json:"last_errors,omitempty"`
}

type SchedulerHealth struct {
	Running bool          `json:"running"`
	Jobs    int           `json:"jobs"`
	Detail  []JobSnapshot `json:"detail"`
}

type SchedulerStats struct {
	TotalJobs    int     `json:"total_jobs"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	NeverRun     int     `json:"never_run"`
	SuccessRate  float64 `json:"success_rate"`
	Processed    int     `json:"processed"`
	Created      int     `json:"created"`
	Updated      int     `json:"updated"`
	Amenities    int     `json:"amenities"`
	Images       int     `json:"images"`
	SkippedTicks int     `json:"skipped_ticks"`
}
