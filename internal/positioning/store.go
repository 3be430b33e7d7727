package positioning

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/geoalign/internal/alignment"
)

// ObservationStore is an ordered, concurrency-safe collection of
// alignment observations. The change callback runs after the store's lock
// is released, once per mutation that changed the size.
type ObservationStore struct {
	mu       sync.RWMutex
	obs      []alignment.Observation
	onChange func(n int)
}

// NewObservationStore returns an empty store. onChange may be nil.
func NewObservationStore(onChange func(n int)) *ObservationStore {
	return &ObservationStore{onChange: onChange}
}

func (s *ObservationStore) changed(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}

// Add appends o. Nil observations are ignored.
func (s *ObservationStore) Add(o alignment.Observation) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.obs = append(s.obs, o)
	n := len(s.obs)
	s.mu.Unlock()
	s.changed(n)
}

// AddAll appends every non-nil observation in order.
func (s *ObservationStore) AddAll(obs []alignment.Observation) {
	s.mu.Lock()
	before := len(s.obs)
	for _, o := range obs {
		if o != nil {
			s.obs = append(s.obs, o)
		}
	}
	n := len(s.obs)
	s.mu.Unlock()
	if n != before {
		s.changed(n)
	}
}

// Remove deletes the observation with the given ID and reports whether it
// was present.
func (s *ObservationStore) Remove(id uuid.UUID) bool {
	return s.RemoveAll([]uuid.UUID{id}) > 0
}

// RemoveAll deletes every observation whose ID is in ids and returns how
// many were removed.
func (s *ObservationStore) RemoveAll(ids []uuid.UUID) int {
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := s.obs[:0]
	for _, o := range s.obs {
		if _, ok := drop[o.ID()]; !ok {
			kept = append(kept, o)
		}
	}
	removed := len(s.obs) - len(kept)
	// Clear the tail so removed observations can be collected.
	for i := len(kept); i < len(s.obs); i++ {
		s.obs[i] = nil
	}
	s.obs = kept
	n := len(s.obs)
	s.mu.Unlock()

	if removed > 0 {
		s.changed(n)
	}
	return removed
}

// Find returns the observation with the given ID.
func (s *ObservationStore) Find(id uuid.UUID) (alignment.Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.obs {
		if o.ID() == id {
			return o, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of the current observations in insertion order.
func (s *ObservationStore) Snapshot() []alignment.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]alignment.Observation(nil), s.obs...)
}

// Len returns the number of stored observations.
func (s *ObservationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.obs)
}

// Clear removes every observation.
func (s *ObservationStore) Clear() {
	s.mu.Lock()
	had := len(s.obs) > 0
	s.obs = nil
	s.mu.Unlock()
	if had {
		s.changed(0)
	}
}

// HasPositionAndOrientation reports whether the store holds at least one
// position observation and one orientation observation, the minimum for a
// solve.
func (s *ObservationStore) HasPositionAndOrientation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pos, orient bool
	for _, o := range s.obs {
		switch k := o.Kind(); {
		case k.IsPosition():
			pos = true
		case k == alignment.KindOrientation:
			orient = true
		}
		if pos && orient {
			return true
		}
	}
	return false
}
