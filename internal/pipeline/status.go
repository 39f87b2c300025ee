package pipeline

import (
	"context"
	"time"
)

// StatusSnapshot is served on the status endpoint.
type StatusSnapshot struct {
	State     string         `json:"state"`
	Root      string         `json:"root"`
	LastCycle *CycleStatus   `json:"last_cycle,omitempty"`
	Ledger    map[string]int `json:"ledger"`
}

// CycleStatus is the JSON view of a CycleSummary.
type CycleStatus struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
	Seconds   float64   `json:"seconds"`
	Committed int       `json:"committed"`
	Failed    int       `json:"failed"`
	Blocked   int       `json:"blocked"`
	Deferred  int       `json:"deferred"`
}

// Status reports the current state and ledger counts.
func (r *Runner) Status(ctx context.Context) (any, error) {
	counts, err := r.ledger.Counts(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := StatusSnapshot{
		State:  r.State().String(),
		Root:   r.cfg.Paths.Root,
		Ledger: make(map[string]int, len(counts)),
	}
	for status, n := range counts {
		snapshot.Ledger[string(status)] = n
	}
	if last := r.LastCycle(); last != nil {
		snapshot.LastCycle = &CycleStatus{
			ID:        last.ID,
			Trigger:   string(last.Trigger),
			StartedAt: last.StartedAt,
			Seconds:   last.Elapsed.Seconds(),
			Committed: last.Count(OutcomeCommitted),
			Failed:    last.Count(OutcomeFailed),
			Blocked:   last.Count(OutcomeBlocked),
			Deferred:  last.Count(OutcomeDeferred),
		}
	}
	return snapshot, nil
}
