// Package store defines the persistence layer for the Reporter's (C10)
// durable cycle history: one record per scheduler cycle, read back by the
// arc CLI companion and by fsck for "when did this last succeed" queries.
// It is separate from review state itself (spec.md's Non-goals forbid
// persisting review state outside git/the review service); this is an
// append log of what the daemon observed, not a cache of it.
package store

import (
	"context"
	"time"
)

// Store persists and retrieves cycle history.
type Store interface {
	// RecordCycle appends one cycle's outcome to the history log.
	RecordCycle(ctx context.Context, cycle CycleRecord) error

	// ListCycles retrieves the most recent cycle records, newest first,
	// limited by the given count.
	ListCycles(ctx context.Context, limit int) ([]CycleRecord, error)

	// ListCyclesForRepo retrieves the most recent cycle records in which
	// the named repo appeared, newest first.
	ListCyclesForRepo(ctx context.Context, repo string, limit int) ([]CycleRecord, error)

	Close() error
}

// CycleRecord is one scheduler cycle's durable summary: the status the
// Reporter held at cycle end, how long the cycle took, and the terminal
// repo-status each configured repo reached.
type CycleRecord struct {
	Timestamp    time.Time
	Status       string
	CycleSeconds float64
	RepoStatuses []RepoStatusRecord
}

// RepoStatusRecord is one repo's terminal status within a CycleRecord.
type RepoStatusRecord struct {
	Name       string
	RepoStatus string // "updating", "failed" or "ok"
	Err        string // empty unless RepoStatus == "failed"
}
