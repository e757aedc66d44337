package history

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and -sim runs. It satisfies
// the identical contract, including open records being hidden from Query.
type MemoryStore struct {
	mu      sync.Mutex
	records []Maneuver

	// AppendError, if set, will be returned by Append.
	AppendError error

	// FinalizeError, if set, will be returned by Finalize.
	FinalizeError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a new open record.
func (s *MemoryStore) Append(m Maneuver) error {
	if s.AppendError != nil {
		return s.AppendError
	}
	s.mu.Lock()
	s.records = append(s.records, m)
	s.mu.Unlock()
	return nil
}

// Finalize closes an open record.
func (s *MemoryStore) Finalize(id string, endedAt time.Time, end Levels, reason StopReason) error {
	if s.FinalizeError != nil {
		return s.FinalizeError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id && s.records[i].EndedAt == nil {
			t := endedAt
			s.records[i].EndedAt = &t
			s.records[i].EndLevels = end
			s.records[i].StopReason = reason
			return nil
		}
	}
	return ErrNotFound
}

// Query returns finalized records started at or after since, in start-time
// order.
func (s *MemoryStore) Query(since time.Time) ([]Maneuver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Maneuver
	for _, m := range s.records {
		if m.EndedAt != nil && !m.StartedAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// LastStartedAt returns the most recent start time across all records.
func (s *MemoryStore) LastStartedAt() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	for _, m := range s.records {
		if m.StartedAt.After(last) {
			last = m.StartedAt
		}
	}
	return last, !last.IsZero(), nil
}

// Prune deletes finalized records started before cutoff.
func (s *MemoryStore) Prune(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Maneuver
	var removed int64
	for _, m := range s.records {
		if m.EndedAt != nil && m.StartedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.records = kept
	return removed, nil
}

// Close marks the store as closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// All returns a copy of every record, open ones included. Test helper.
func (s *MemoryStore) All() []Maneuver {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Maneuver, len(s.records))
	copy(out, s.records)
	return out
}
