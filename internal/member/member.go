// Package member is the marketplace's view of the member/profile store: a
// per-member ordered creature collection and a coin balance. The market
// engine only mutates members through the atomic primitives declared here.
package member

import (
	"context"
	"errors"

	"github.com/creaturebot/market-engine/internal/model"
)

var (
	ErrNotFound          = errors.New("member: not found")
	ErrNoSuchCreature    = errors.New("member: no creature at that index")
	ErrCollectionChanged = errors.New("member: collection changed")
	ErrInsufficientFunds = errors.New("member: insufficient funds")
)

// Store is the member persistence interface.
type Store interface {
	// Get returns a member's profile.
	Get(ctx context.Context, id string) (*model.Member, error)

	// Put creates or replaces a member. Used for seeding.
	Put(ctx context.Context, m *model.Member) error

	// CreatureAt returns the creature at a collection index.
	CreatureAt(ctx context.Context, id string, index int) (model.Creature, error)

	// RemoveCreatureAt removes the creature at index, compacts the
	// collection and adjusts the selected pointer, in one atomic step. The
	// removal only happens if the creature there still has creatureID;
	// otherwise ErrCollectionChanged is returned.
	RemoveCreatureAt(ctx context.Context, id string, index int, creatureID string) error

	// PushCreature appends a creature to the end of the collection.
	PushCreature(ctx context.Context, id string, c model.Creature) error

	// Balance returns the member's coin balance.
	Balance(ctx context.Context, id string) (int64, error)

	// Credit atomically adds amount to the balance.
	Credit(ctx context.Context, id string, amount int64) error

	// Debit atomically subtracts amount if the balance covers it, else
	// returns ErrInsufficientFunds.
	Debit(ctx context.Context, id string, amount int64) error
}

// AdjustSelected returns the selected index after the creature at removed
// is taken out of the collection: creatures after the removed one shift
// down by one.
func AdjustSelected(selected, removed int) int {
	if removed < selected {
		return selected - 1
	}
	return selected
}
