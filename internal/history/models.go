package history

import "time"

// Status is the journal state of a batch.
type Status string

const (
	// StatusPending: recorded, artifact not yet committed.
	StatusPending Status = "pending"
	// StatusCommitted: artifact renamed into place, fragments not yet archived.
	StatusCommitted Status = "committed"
	// StatusArchived: every fragment moved to the archive. Terminal.
	StatusArchived Status = "archived"
	// StatusFailed: aborted before the commit point; retried next cycle.
	StatusFailed Status = "failed"
	// StatusBlocked: aborted for a reason retries will not fix.
	StatusBlocked Status = "blocked"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusArchived, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// Batch is one journal entry.
type Batch struct {
	ID           string
	CycleID      string
	Category     string
	Scope        string
	Key          string
	Mode         string
	ArtifactPath string
	TempPath     string
	// TempIdentity is the device and inode of the temp file at Begin.
	TempIdentity string
	Status       Status
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Fragments    []Fragment
}

// Fragment records where one consumed fragment came from and where it goes.
type Fragment struct {
	Name        string
	SourcePath  string
	ArchivePath string
}

// FragmentCount returns the number of fragments recorded on the batch.
func (b *Batch) FragmentCount() int {
	if b == nil {
		return 0
	}
	return len(b.Fragments)
}
