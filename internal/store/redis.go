package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

// tombstone marks a listing id as resolved so a stale read cannot
// repopulate the cache after a delete.
const tombstone = "-"

// CachedStore wraps a primary Store with a Redis read-through cache for
// listing lookups. Searches and deletes always go to the primary; the
// primary's DeleteIfExists stays the single point that decides who wins.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) Insert(ctx context.Context, l *model.Listing) (string, error) {
	id, err := s.primary.Insert(ctx, l)
	if err != nil {
		return "", err
	}
	s.fill(ctx, l)
	return id, nil
}

func (s *CachedStore) DeleteIfExists(ctx context.Context, id string) (*model.Listing, error) {
	l, err := s.primary.DeleteIfExists(ctx, id)
	if err != nil {
		return nil, err
	}
	// Overwrite unconditionally; fill uses SETNX so it never clobbers this.
	if err := s.rdb.Set(ctx, listingKey(l.ID), tombstone, s.ttl).Err(); err != nil {
		slog.Warn("listing cache tombstone failed", "listing_id", l.ID, "err", err)
	}
	return l, nil
}

// --- Read-through ---

func (s *CachedStore) Get(ctx context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	id = u.String()

	data, err := s.rdb.Get(ctx, listingKey(id)).Bytes()
	switch {
	case err == nil && string(data) == tombstone:
		return nil, ErrNotFound
	case err == nil:
		var l model.Listing
		if json.Unmarshal(data, &l) == nil {
			return &l, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("listing cache read failed", "listing_id", id, "err", err)
	}

	l, err := s.primary.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, l)
	return l, nil
}

// --- Passthrough ---

func (s *CachedStore) Count(ctx context.Context, q filter.Query) (int, error) {
	return s.primary.Count(ctx, q)
}

func (s *CachedStore) Page(ctx context.Context, q filter.Query, offset, size int) ([]model.Listing, error) {
	return s.primary.Page(ctx, q, offset, size)
}

// --- Cache helpers ---

func (s *CachedStore) fill(ctx context.Context, l *model.Listing) {
	data, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := s.rdb.SetNX(ctx, listingKey(l.ID), data, s.ttl).Err(); err != nil {
		slog.Warn("listing cache fill failed", "listing_id", l.ID, "err", err)
	}
}

func listingKey(id string) string { return fmt.Sprintf("listing:%s", id) }
