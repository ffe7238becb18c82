// Package market is the listing lifecycle and transaction engine. It owns
// the state machine NONE → ACTIVE → {SOLD, WITHDRAWN}; the listing store's
// conditional delete is the only concurrency guard.
package market

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/member"
	"github.com/creaturebot/market-engine/internal/metrics"
	"github.com/creaturebot/market-engine/internal/model"
	"github.com/creaturebot/market-engine/internal/pagination"
	"github.com/creaturebot/market-engine/internal/species"
	"github.com/creaturebot/market-engine/internal/store"
)

// Config holds engine policy.
type Config struct {
	// MaxPrice is the highest price a listing may ask. Zero means no cap.
	MaxPrice int64
	// PageSize is the number of rows per browse page.
	PageSize int
	// NotifyTimeout bounds one seller notification attempt.
	NotifyTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxPrice:      1_000_000_000,
		PageSize:      pagination.DefaultPageSize,
		NotifyTimeout: 10 * time.Second,
	}
}

// Engine executes marketplace operations. It holds no locks of its own and
// is safe for concurrent use.
type Engine struct {
	listings store.Store
	members  member.Store
	catalog  *species.Catalog
	compiler *filter.Compiler
	notifier Notifier  // optional
	events   EventSink // optional
	cfg      Config

	pending sync.WaitGroup // in-flight notifications
}

// NewEngine creates an engine. notifier and events may be nil.
func NewEngine(listings store.Store, members member.Store, catalog *species.Catalog,
	notifier Notifier, events EventSink, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &Engine{
		listings: listings,
		members:  members,
		catalog:  catalog,
		compiler: filter.NewCompiler(catalog),
		notifier: notifier,
		events:   events,
		cfg:      cfg,
	}
}

// Wait blocks until in-flight seller notifications finish.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// --- Requests and results ---

// BrowseRequest is a filter specification with its page number.
type BrowseRequest = filter.Spec

// ListRequest puts the creature at a collection index up for sale.
type ListRequest struct {
	Index int   `json:"index"`
	Price int64 `json:"price"`
}

// WithdrawRequest takes a listing off the market.
type WithdrawRequest struct {
	ListingID string `json:"listing_id"`
}

// PurchaseRequest buys a listing.
type PurchaseRequest struct {
	ListingID string `json:"listing_id"`
}

// InfoRequest asks for a listing's detail.
type InfoRequest struct {
	ListingID string `json:"listing_id"`
}

// ListResult confirms a new listing.
type ListResult struct {
	Listing     model.Listing `json:"listing"`
	SpeciesName string        `json:"species"`
	IV          string        `json:"iv"`
	Number      int           `json:"number"` // 1-based position the creature had
}

// ResolvedResult describes a withdrawn or sold listing.
type ResolvedResult struct {
	Listing     model.Listing `json:"listing"`
	SpeciesName string        `json:"species"`
	IV          string        `json:"iv"`
}

// InfoResult is the full detail of a listing.
type InfoResult struct {
	ListingID   string         `json:"listing_id"`
	SellerID    string         `json:"seller_id"`
	Price       int64          `json:"price"`
	SpeciesName string         `json:"species"`
	Types       []string       `json:"types"`
	Creature    model.Creature `json:"creature"`
	Stats       species.Stats  `json:"stats"`
	IV          string         `json:"iv"`
	XP          int            `json:"xp"`
	MaxXP       int            `json:"max_xp"`
	Nature      string         `json:"nature"`
	HeldItem    string         `json:"held_item,omitempty"`
}

// Row is one browse result line.
type Row struct {
	ListingID   string `json:"listing_id"`
	Price       int64  `json:"price"`
	DisplayLine string `json:"display_line"`
}

// BrowseResult is one rendered page of listings.
type BrowseResult struct {
	Rows     []Row             `json:"rows"`
	Total    int               `json:"total"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Page     int               `json:"page"` // 1-based
	NumPages int               `json:"num_pages"`
	Status   pagination.Status `json:"-"`
	Message  string            `json:"message,omitempty"`
	Footer   string            `json:"footer,omitempty"`
}

const (
	msgNoMatches  = "Found no creatures matching this search."
	msgEmptyPage  = "There are no creatures on this page!"
	msgNoListing  = "Couldn't find that listing!"
	msgNoCreature = "Couldn't find that creature!"
	msgStorage    = "The market is unavailable right now, please try again."
	msgNoProfile  = "Couldn't find your profile!"
	msgOwnListing = "You can't purchase your own listing!"
	msgNotSeller  = "You can only remove your own listings!"
	msgPoor       = "You don't have enough coins for that!"
	msgBadPrice   = "The price must be a whole number of coins"
)

// --- Operations ---

// List moves the creature at req.Index out of the seller's collection and
// onto the market. The listing is written before the creature is removed,
// so a crash in between duplicates the creature rather than losing it.
func (e *Engine) List(ctx context.Context, sellerID string, req ListRequest) (res *ListResult, err error) {
	start := time.Now()
	defer func() { observe("list", start, err) }()

	if req.Price < 0 {
		return nil, newError(KindValidation, msgBadPrice+" and can't be negative.")
	}
	if e.cfg.MaxPrice > 0 && req.Price > e.cfg.MaxPrice {
		return nil, newError(KindValidation, msgBadPrice+" no higher than "+FormatCoins(e.cfg.MaxPrice)+".")
	}

	c, err := e.members.CreatureAt(ctx, sellerID, req.Index)
	if errors.Is(err, member.ErrNoSuchCreature) || errors.Is(err, member.ErrNotFound) {
		return nil, wrapError(KindNotFound, msgNoCreature, err)
	}
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}

	l := &model.Listing{SellerID: sellerID, Price: req.Price, Creature: c}
	id, err := e.listings.Insert(ctx, l)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}

	err = e.members.RemoveCreatureAt(ctx, sellerID, req.Index, c.ID)
	if errors.Is(err, member.ErrCollectionChanged) || errors.Is(err, member.ErrNotFound) {
		// The slot no longer holds the snapshot we listed: take the listing back.
		if _, delErr := e.listings.DeleteIfExists(ctx, id); delErr != nil {
			slog.Error("list compensation failed",
				"listing_id", id, "seller_id", sellerID, "err", delErr)
		}
		return nil, wrapError(KindNotFound, msgNoCreature, err)
	}
	if err != nil {
		slog.Error("listing created but creature not removed",
			"listing_id", id, "seller_id", sellerID, "index", req.Index, "err", err)
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}

	name := e.catalog.Name(c.SpeciesID)
	slog.Info("listing created", "listing_id", id, "seller_id", sellerID, "price", req.Price)
	e.publish(EventListingCreated, *l, "", name)

	return &ListResult{
		Listing:     *l,
		SpeciesName: name,
		IV:          FormatIV(c),
		Number:      req.Index + 1,
	}, nil
}

// Withdraw returns an active listing's creature to its seller.
func (e *Engine) Withdraw(ctx context.Context, sellerID string, req WithdrawRequest) (res *ResolvedResult, err error) {
	start := time.Now()
	defer func() { observe("withdraw", start, err) }()

	l, err := e.get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, newError(KindForbidden, msgNotSeller)
	}

	// Commit point: only the caller that deletes the listing may restore it.
	l, err = e.resolve(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	if err := e.members.PushCreature(ctx, sellerID, l.Creature); err != nil {
		slog.Error("withdraw step failed",
			"step", "push_seller", "listing_id", l.ID, "seller_id", sellerID, "err", err)
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}

	name := e.catalog.Name(l.Creature.SpeciesID)
	slog.Info("listing withdrawn", "listing_id", l.ID, "seller_id", sellerID)
	e.publish(EventListingWithdrawn, *l, "", name)

	return &ResolvedResult{Listing: *l, SpeciesName: name, IV: FormatIV(l.Creature)}, nil
}

// Purchase transfers a listing's creature to the buyer and its price to
// the seller. Exactly one concurrent buyer wins the conditional delete.
// The guarded debit runs next; once it succeeds the remaining steps are
// continuation, never rolled back.
func (e *Engine) Purchase(ctx context.Context, buyerID string, req PurchaseRequest) (res *ResolvedResult, err error) {
	start := time.Now()
	defer func() { observe("purchase", start, err) }()

	l, err := e.get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID == buyerID {
		return nil, newError(KindForbidden, msgOwnListing)
	}

	balance, err := e.members.Balance(ctx, buyerID)
	if errors.Is(err, member.ErrNotFound) {
		return nil, wrapError(KindNotFound, msgNoProfile, err)
	}
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}
	if balance < l.Price {
		return nil, newError(KindInsufficientFunds, msgPoor)
	}

	l, err = e.resolve(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	var failed []error
	stepFailed := func(step string, err error) {
		slog.Error("purchase step failed", "step", step, "listing_id", l.ID,
			"buyer_id", buyerID, "seller_id", l.SellerID, "price", l.Price, "err", err)
		failed = append(failed, err)
	}

	// The balance read above is advisory; the guarded debit decides. A
	// refused debit means no sale happened, so the creature goes back to
	// the seller.
	if err := e.members.Debit(ctx, buyerID, l.Price); err != nil {
		if perr := e.members.PushCreature(ctx, l.SellerID, l.Creature); perr != nil {
			stepFailed("return_seller", perr)
		}
		if errors.Is(err, member.ErrInsufficientFunds) && len(failed) == 0 {
			slog.Info("purchase refused at debit, creature returned", "listing_id", l.ID,
				"buyer_id", buyerID, "seller_id", l.SellerID)
			e.publish(EventListingWithdrawn, *l, "", e.catalog.Name(l.Creature.SpeciesID))
			return nil, wrapError(KindInsufficientFunds, msgPoor, err)
		}
		stepFailed("debit_buyer", err)
		return nil, wrapError(KindStorageUnavailable, msgStorage, errors.Join(failed...))
	}

	if err := e.members.PushCreature(ctx, buyerID, l.Creature); err != nil {
		stepFailed("push_buyer", err)
	}
	if err := e.members.Credit(ctx, l.SellerID, l.Price); err != nil {
		stepFailed("credit_seller", err)
	} else {
		metrics.CoinsTransferred.Add(float64(l.Price))
	}
	if len(failed) > 0 {
		return nil, wrapError(KindStorageUnavailable, msgStorage, errors.Join(failed...))
	}

	name := e.catalog.Name(l.Creature.SpeciesID)
	slog.Info("listing sold", "listing_id", l.ID, "seller_id", l.SellerID,
		"buyer_id", buyerID, "price", l.Price)
	e.notifySale(Sale{
		ListingID:   l.ID,
		SellerID:    l.SellerID,
		BuyerID:     buyerID,
		Price:       l.Price,
		Creature:    l.Creature,
		SpeciesName: name,
	})
	e.publish(EventListingSold, *l, buyerID, name)

	return &ResolvedResult{Listing: *l, SpeciesName: name, IV: FormatIV(l.Creature)}, nil
}

// Info returns a listing's detail without changing it.
func (e *Engine) Info(ctx context.Context, req InfoRequest) (res *InfoResult, err error) {
	start := time.Now()
	defer func() { observe("info", start, err) }()

	l, err := e.get(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}

	c := l.Creature
	res = &InfoResult{
		ListingID:   l.ID,
		SellerID:    l.SellerID,
		Price:       l.Price,
		SpeciesName: e.catalog.Name(c.SpeciesID),
		Creature:    c,
		IV:          FormatIV(c),
		XP:          c.XP,
		MaxXP:       c.MaxXP(),
		Nature:      c.Nature,
	}
	if sp, ok := e.catalog.Species(c.SpeciesID); ok {
		res.Types = sp.Types
	}
	if stats, err := e.catalog.Stats(c); err == nil {
		res.Stats = stats
	} else {
		slog.Warn("listing has uncatalogued species", "listing_id", l.ID, "species_id", c.SpeciesID)
	}
	if c.HeldItem != 0 {
		if item, ok := e.catalog.Item(c.HeldItem); ok {
			res.HeldItem = item.Name
		}
	}
	return res, nil
}

// Browse compiles a filter specification and renders the requested page.
func (e *Engine) Browse(ctx context.Context, viewerID string, req BrowseRequest) (res *BrowseResult, err error) {
	start := time.Now()
	defer func() { observe("browse", start, err) }()

	q, err := e.compiler.Compile(req, viewerID)
	if err != nil {
		var ve *filter.ValidationError
		if errors.As(err, &ve) {
			return nil, wrapError(KindValidation, ve.Error(), err)
		}
		return nil, wrapError(KindValidation, err.Error(), err)
	}

	page, err := pagination.Render(ctx, e.listings, q, req.Page-1, e.cfg.PageSize)
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}

	res = &BrowseResult{
		Total:    page.Total,
		Start:    page.Start,
		End:      page.End,
		Page:     page.Page + 1,
		NumPages: page.NumPages,
		Status:   page.Status,
	}
	switch page.Status {
	case pagination.StatusNoMatches:
		res.Message = msgNoMatches
		return res, nil
	case pagination.StatusEmptyPage:
		res.Message = msgEmptyPage
		return res, nil
	}

	res.Rows = make([]Row, 0, len(page.Rows))
	for _, l := range page.Rows {
		res.Rows = append(res.Rows, Row{
			ListingID:   l.ID,
			Price:       l.Price,
			DisplayLine: DisplayLine(e.catalog.Name(l.Creature.SpeciesID), l),
		})
	}
	res.Footer = Footer(page.Start, page.End, page.Total)
	return res, nil
}

// --- Helpers ---

func (e *Engine) get(ctx context.Context, id string) (*model.Listing, error) {
	l, err := e.listings.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(KindNotFound, msgNoListing, err)
	}
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}
	return l, nil
}

// resolve performs the conditional delete that moves a listing into a
// terminal state.
func (e *Engine) resolve(ctx context.Context, id string) (*model.Listing, error) {
	l, err := e.listings.DeleteIfExists(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(KindNotFound, msgNoListing, err)
	}
	if err != nil {
		return nil, wrapError(KindStorageUnavailable, msgStorage, err)
	}
	return l, nil
}

func (e *Engine) notifySale(s Sale) {
	if e.notifier == nil {
		return
	}
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.NotifyTimeout)
		defer cancel()
		if err := e.notifier.NotifySale(ctx, s); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			slog.Warn("seller notification failed",
				"listing_id", s.ListingID, "seller_id", s.SellerID, "err", err)
			return
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}()
}

func (e *Engine) publish(typ string, l model.Listing, buyerID, name string) {
	if e.events == nil {
		return
	}
	e.events.Publish(Event{
		Type:      typ,
		ListingID: l.ID,
		SellerID:  l.SellerID,
		BuyerID:   buyerID,
		Price:     l.Price,
		SpeciesID: l.Creature.SpeciesID,
		Species:   name,
		Level:     l.Creature.Level,
		Shiny:     l.Creature.Shiny,
		At:        time.Now().UTC(),
	})
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(KindOf(err)))
	}
	metrics.ObserveTransaction(op, outcome, start)
}
