package market

import (
	"context"
	"time"

	"github.com/creaturebot/market-engine/internal/model"
)

// Event types published to the EventSink.
const (
	EventListingCreated   = "listing_created"
	EventListingWithdrawn = "listing_withdrawn"
	EventListingSold      = "listing_sold"
)

// Event describes a listing state transition.
type Event struct {
	Type      string    `json:"type"`
	ListingID string    `json:"listing_id"`
	SellerID  string    `json:"seller_id"`
	BuyerID   string    `json:"buyer_id,omitempty"`
	Price     int64     `json:"price"`
	SpeciesID int       `json:"species_id"`
	Species   string    `json:"species"`
	Level     int       `json:"level"`
	Shiny     bool      `json:"shiny"`
	At        time.Time `json:"at"`
}

// EventSink receives listing events. Publish must not block.
type EventSink interface {
	Publish(ev Event)
}

// Sale is what a seller is told about a completed purchase.
type Sale struct {
	ListingID   string
	SellerID    string
	BuyerID     string
	Price       int64
	Creature    model.Creature
	SpeciesName string
}

// Notifier tells a seller their listing sold. Delivery is best-effort.
type Notifier interface {
	NotifySale(ctx context.Context, s Sale) error
}
