// Package memory keeps audit records in process memory so unit tests can
// assert on what the gateway emitted without a database.
package memory

import (
	"context"
	"sync"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/audit"
)

// Store is an in-memory audit sink.
type Store struct {
	mu      sync.Mutex
	records []audit.Record
}

// New creates an empty in-memory audit store.
func New() *Store {
	return &Store{}
}

// Record appends rec.
func (s *Store) Record(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of everything recorded so far.
func (s *Store) Records() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByActor returns the records emitted for one actor, oldest first.
func (s *Store) ByActor(actorID string) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, rec := range s.records {
		if rec.ActorID == actorID {
			out = append(out, rec)
		}
	}
	return out
}
