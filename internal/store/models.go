package store

import (
	"time"

	"lapfusion/internal/features"
	"lapfusion/internal/fusion"
	"lapfusion/internal/racecontrol"
)

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is one pipeline invocation for one session.
type Run struct {
	ID               string
	SessionKey       string
	SourceDir        string
	OutputDir        string
	Status           Status
	ErrorMessage     string
	StartedAt        time.Time
	FinishedAt       time.Time
	FusedRows        int
	LapCount         int
	SCIntervals      int
	VSCIntervals     int
	DroppedIntervals int
}

// Duration returns how long the run took, or zero if it never finished.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Artifacts are the outputs persisted alongside a completed run.
type Artifacts struct {
	Fused     []fusion.Sample
	Features  []features.Row
	Intervals racecontrol.Intervals
}
