package member

import (
	"context"
	"fmt"
	"sync"

	"github.com/creaturebot/market-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing and
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]*model.Member
}

// NewMemoryStore creates an empty in-memory member store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[string]*model.Member)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(m), nil
}

func (s *MemoryStore) Put(_ context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members[m.ID] = clone(m)
	return nil
}

func (s *MemoryStore) CreatureAt(_ context.Context, id string, index int) (model.Creature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return model.Creature{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if index < 0 || index >= len(m.Creatures) {
		return model.Creature{}, ErrNoSuchCreature
	}
	return m.Creatures[index], nil
}

func (s *MemoryStore) RemoveCreatureAt(_ context.Context, id string, index int, creatureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if index < 0 || index >= len(m.Creatures) {
		return ErrCollectionChanged
	}
	if m.Creatures[index].ID != creatureID {
		return ErrCollectionChanged
	}
	m.Creatures = append(m.Creatures[:index], m.Creatures[index+1:]...)
	m.Selected = AdjustSelected(m.Selected, index)
	return nil
}

func (s *MemoryStore) PushCreature(_ context.Context, id string, c model.Creature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.Creatures = append(m.Creatures, c)
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.Balance, nil
}

func (s *MemoryStore) Credit(_ context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.Balance += amount
	return nil
}

func (s *MemoryStore) Debit(_ context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if m.Balance < amount {
		return ErrInsufficientFunds
	}
	m.Balance -= amount
	return nil
}

// clone copies a member so callers never share the creature slice.
func clone(m *model.Member) *model.Member {
	c := *m
	c.Creatures = append([]model.Creature(nil), m.Creatures...)
	return &c
}
