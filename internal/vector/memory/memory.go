package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/reqanswer/backend/internal/vector"
)

var errEmptyID = errors.New("record id must not be empty")

// Store keeps records in insertion order and searches them brute force.
type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]vector.Record
}

func NewStore() *Store {
	return &Store{records: make(map[string]vector.Record)}
}

func (s *Store) Upsert(_ context.Context, records []vector.Record) error {
	for _, r := range records {
		if r.ID == "" {
			return errEmptyID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if _, exists := s.records[r.ID]; !exists {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = clone(r)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.records[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *Store) Search(_ context.Context, embedding []float32, k int) ([]vector.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.order) == 0 {
		return []vector.Match{}, nil
	}

	matches := make([]vector.Match, 0, len(s.order))
	for _, id := range s.order {
		r := s.records[id]
		matches = append(matches, vector.Match{
			Record:   clone(r),
			Distance: vector.CosineDistance(embedding, r.Embedding),
		})
	}
	return vector.TopK(matches, k), nil
}

func (s *Store) Filter(_ context.Context, field, value string, limit int) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []vector.Record{}
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		r := s.records[id]
		if r.Metadata[field] == value {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (s *Store) Scan(_ context.Context) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]vector.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.records[id]))
	}
	return out, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.records = make(map[string]vector.Record)
	return nil
}

func (s *Store) Close() error { return nil }

func clone(r vector.Record) vector.Record {
	out := vector.Record{
		ID:        r.ID,
		Document:  r.Document,
		Embedding: append([]float32(nil), r.Embedding...),
		Metadata:  make(map[string]string, len(r.Metadata)),
	}
	for k, v := range r.Metadata {
		out.Metadata[k] = v
	}
	return out
}
