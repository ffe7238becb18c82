// Package store defines the persistence interface for marketplace listings.
// Implementations include PostgreSQL and SQLite (sources of truth), Redis
// (read-through cache for listing lookups) and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

// ErrNotFound is returned for listings that are absent, already resolved,
// or whose id is not well-formed.
var ErrNotFound = errors.New("store: listing not found")

// Store is the listing persistence interface.
type Store interface {
	// Count returns how many live listings the compiled query yields,
	// after its skip and limit stages.
	Count(ctx context.Context, q filter.Query) (int, error)

	// Page returns up to size listings starting at offset within the
	// query's results, in insertion order.
	Page(ctx context.Context, q filter.Query, offset, size int) ([]model.Listing, error)

	// Insert persists a new listing, assigning its id and creation time.
	Insert(ctx context.Context, l *model.Listing) (string, error)

	// DeleteIfExists atomically removes a listing and returns it. Exactly
	// one concurrent caller observes the listing; the rest get ErrNotFound.
	DeleteIfExists(ctx context.Context, id string) (*model.Listing, error)

	// Get returns a listing without removing it.
	Get(ctx context.Context, id string) (*model.Listing, error)
}

// ParseID validates a listing id. Malformed ids are reported as
// ErrNotFound so callers cannot tell them apart from absent listings.
func ParseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return u, nil
}
