package store

import (
	"sync"

	"github.com/mpark1306/TempMate12/internal/models"
)

// Store is the ordered collection of readings awaiting delivery. Insertion
// order equals chronological order equals delivery order; nothing is
// reordered, deduplicated, or evicted. The store is unbounded while the
// collector is unreachable.
//
// The sampler appends from the controller loop while the status service may
// trigger a delivery pass from an HTTP goroutine, so access is guarded by a
// mutex.
type Store struct {
	mu       sync.Mutex
	readings []models.Reading
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Append adds a reading at the tail.
func (s *Store) Append(r models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
}

// Len returns the number of buffered readings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

// Snapshot returns a copy of the buffered readings in insertion order.
// A delivery pass iterates the snapshot so that readings appended while the
// pass is on the wire are untouched by the pass.
func (s *Store) Snapshot() []models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Drop removes the oldest n readings. Called by the delivery agent only
// after every reading of its snapshot was posted; a failed pass never calls
// it, so the buffer stays intact down to the items already transmitted.
func (s *Store) Drop(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= len(s.readings) {
		s.readings = nil
		return
	}
	s.readings = append(s.readings[:0], s.readings[n:]...)
}
