package pipeline

import (
	"time"

	"clipmerge/internal/commit"
	"clipmerge/internal/planner"
)

// State is the process-level consolidation state.
type State int32

const (
	StateIdle State = iota
	StateConsolidating
)

func (s State) String() string {
	if s == StateConsolidating {
		return "consolidating"
	}
	return "idle"
}

// BatchReport is the result of one batch within a cycle.
type BatchReport struct {
	Label     string
	Category  string
	Key       string
	Mode      string
	Outcome   string
	Artifact  string
	Fragments int
	Archived  int
	Err       error
}

// CycleSummary describes one cycle.
type CycleSummary struct {
	ID             string
	Trigger        Trigger
	Scope          string
	StartedAt      time.Time
	Elapsed        time.Duration
	Recovered      int
	Discarded      int
	OrphansRemoved int
	Batches        []BatchReport
	Skipped        []planner.Skipped
	Compressed     []commit.CompressResult
}

// Count returns the number of batches with the given outcome.
func (s *CycleSummary) Count(outcome string) int {
	n := 0
	for _, b := range s.Batches {
		if b.Outcome == outcome {
			n++
		}
	}
	return n
}
