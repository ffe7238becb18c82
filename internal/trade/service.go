// Package trade is the HTTP command surface of the marketplace: it decodes
// requests into the engine's typed contracts and maps typed outcomes onto
// HTTP status codes. Caller identity is established upstream and arrives in
// the X-User-ID header.
package trade

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/market"
)

// UserHeader carries the authenticated caller's id.
const UserHeader = "X-User-ID"

// Service handles marketplace HTTP requests on top of the engine.
type Service struct {
	engine *market.Engine
	wsHub  *WSHub // optional WebSocket hub for the event feed
}

// NewService creates a new trade service.
// Pass nil for hub if the WebSocket feed is not needed.
func NewService(engine *market.Engine, hub *WSHub) *Service {
	return &Service{engine: engine, wsHub: hub}
}

// Routes mounts the marketplace endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/listings", s.CreateListing)
		r.Get("/listings/{listingID}", s.GetListing)
		r.Delete("/listings/{listingID}", s.WithdrawListing)
		r.Post("/listings/{listingID}/purchase", s.PurchaseListing)
	})
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// RangeParam is one numeric range filter, e.g. {"field": "atkiv", "value": "20-31"}.
type RangeParam struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SearchRequest is the JSON body for POST /market/search.
type SearchRequest struct {
	Page   *int         `json:"page"` // 1-based; omitted means the first page
	Flags  []string     `json:"flags"`
	Names  []string     `json:"names"`
	Types  []string     `json:"types"`
	Ranges []RangeParam `json:"ranges"`
	Skip   *int         `json:"skip"`
	Limit  *int         `json:"limit"`
	Mine   bool         `json:"mine"`
}

// SearchResponse is one rendered browse page.
type SearchResponse struct {
	market.BrowseResult
	Status string `json:"status"`
}

// CreateListingRequest is the JSON body for POST /market/listings.
type CreateListingRequest struct {
	Index int   `json:"index"` // 0-based position in the caller's collection
	Price int64 `json:"price"`
}

// toSpec turns the request into a typed filter specification. Malformed
// flags and ranges are rejected here, before the engine sees them.
func (req SearchRequest) toSpec() (market.BrowseRequest, error) {
	spec := market.BrowseRequest{
		Page:  1,
		Mine:  req.Mine,
		Skip:  req.Skip,
		Limit: req.Limit,
	}
	if req.Page != nil {
		spec.Page = *req.Page
	}
	for _, name := range req.Flags {
		f, err := filter.ParseFlag(name)
		if err != nil {
			return spec, err
		}
		spec.Predicates = append(spec.Predicates, f)
	}
	for _, name := range req.Names {
		spec.Predicates = append(spec.Predicates, filter.NameIs{Name: name})
	}
	for _, typ := range req.Types {
		spec.Predicates = append(spec.Predicates, filter.TypeIs{Type: typ})
	}
	for _, rp := range req.Ranges {
		r, err := filter.ParseRange(rp.Field, rp.Value)
		if err != nil {
			return spec, err
		}
		spec.Predicates = append(spec.Predicates, r)
	}
	return spec, nil
}

// --- HTTP Handlers ---

// Search handles POST /api/v1/market/search
func (s *Service) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID := r.Header.Get(UserHeader)
	if spec.Mine && userID == "" {
		writeError(w, "missing "+UserHeader+" header", http.StatusUnauthorized)
		return
	}

	res, err := s.engine.Browse(r.Context(), userID, spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{BrowseResult: *res, Status: res.Status.String()})
}

// CreateListing handles POST /api/v1/market/listings
func (s *Service) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req CreateListingRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := s.engine.List(r.Context(), userID, market.ListRequest{Index: req.Index, Price: req.Price})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetListing handles GET /api/v1/market/listings/{listingID}
func (s *Service) GetListing(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Info(r.Context(), market.InfoRequest{ListingID: chi.URLParam(r, "listingID")})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// WithdrawListing handles DELETE /api/v1/market/listings/{listingID}
func (s *Service) WithdrawListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Withdraw(r.Context(), userID, market.WithdrawRequest{ListingID: chi.URLParam(r, "listingID")})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PurchaseListing handles POST /api/v1/market/listings/{listingID}/purchase
func (s *Service) PurchaseListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := s.engine.Purchase(r.Context(), userID, market.PurchaseRequest{ListingID: chi.URLParam(r, "listingID")})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Helpers ---

func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(UserHeader)
	if id == "" {
		writeError(w, "missing "+UserHeader+" header", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps an engine error kind onto an HTTP status.
func statusFor(kind market.Kind) int {
	switch kind {
	case market.KindValidation:
		return http.StatusBadRequest
	case market.KindNotFound:
		return http.StatusNotFound
	case market.KindForbidden:
		return http.StatusForbidden
	case market.KindInsufficientFunds:
		return http.StatusPaymentRequired
	}
	return http.StatusServiceUnavailable
}

func writeEngineError(w http.ResponseWriter, err error) {
	kind := market.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	var me *market.Error
	if !errors.As(err, &me) {
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		slog.Error("market operation failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
