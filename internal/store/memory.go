package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

// MemoryStore implements Store with an insertion-ordered slice. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	listings []model.Listing
	index    map[string]int // id -> position in listings
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (s *MemoryStore) Count(_ context.Context, q filter.Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, l := range s.listings {
		if q.Match(l) {
			n++
		}
	}
	return q.Clamp(n), nil
}

func (s *MemoryStore) Page(_ context.Context, q filter.Query, offset, size int) ([]model.Listing, error) {
	rawOffset, n := q.Window(offset, size)
	if n == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Listing
	seen := 0
	for _, l := range s.listings {
		if !q.Match(l) {
			continue
		}
		if seen >= rawOffset {
			result = append(result, l)
			if len(result) == n {
				break
			}
		}
		seen++
	}
	return result, nil
}

func (s *MemoryStore) Insert(_ context.Context, l *model.Listing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = uuid.New().String()
	l.CreatedAt = time.Now().UTC()
	s.index[l.ID] = len(s.listings)
	s.listings = append(s.listings, *l)
	return l.ID, nil
}

func (s *MemoryStore) DeleteIfExists(_ context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	id = u.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	l := s.listings[pos]
	s.listings = append(s.listings[:pos], s.listings[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.listings); i++ {
		s.index[s.listings[i].ID] = i
	}
	return &l, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[u.String()]
	if !ok {
		return nil, ErrNotFound
	}
	l := s.listings[pos]
	return &l, nil
}
