package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/creaturebot/market-engine/internal/market"
	"github.com/creaturebot/market-engine/internal/member"
	"github.com/creaturebot/market-engine/internal/model"
	"github.com/creaturebot/market-engine/internal/species"
	"github.com/creaturebot/market-engine/internal/store"
	"github.com/creaturebot/market-engine/internal/trade"
)

// newTestEnv creates a test Service with in-memory stores and a chi router.
func newTestEnv(t *testing.T, hub *trade.WSHub) (*member.MemoryStore, chi.Router) {
	t.Helper()
	members := member.NewMemoryStore()
	var sink market.EventSink
	if hub != nil {
		sink = hub
	}
	engine := market.NewEngine(store.NewMemoryStore(), members, species.MustLoad(), nil, sink, market.DefaultConfig())
	svc := trade.NewService(engine, hub)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return members, r
}

func seedMember(t *testing.T, ms *member.MemoryStore, id string, balance int64, speciesIDs ...int) {
	t.Helper()
	m := &model.Member{ID: id, Balance: balance}
	for i, sp := range speciesIDs {
		m.Creatures = append(m.Creatures, model.Creature{
			ID:        id + "-" + string(rune('a'+i)),
			SpeciesID: sp,
			Level:     30,
			Nature:    "Hardy",
			IVs:       model.IVs{HP: 20, Atk: 25, Def: 10, SpAtk: 31, SpDef: 5, Spd: 18},
		})
	}
	if err := ms.Put(context.Background(), m); err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}
}

func do(t *testing.T, router chi.Router, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(trade.UserHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createListing(t *testing.T, router chi.Router, user string, index int, price int64) string {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/market/listings", user, trade.CreateListingRequest{Index: index, Price: price})
	if w.Code != http.StatusCreated {
		t.Fatalf("create listing: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var res market.ListResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return res.Listing.ID
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

// --- Listing lifecycle ---

func TestCreateListing(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 25, 133)

	w := do(t, router, "POST", "/api/v1/market/listings", "seller", trade.CreateListingRequest{Index: 1, Price: 800})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var res market.ListResult
	json.NewDecoder(w.Body).Decode(&res)
	if res.SpeciesName != "Eevee" || res.Number != 2 || res.Listing.Price != 800 {
		t.Errorf("unexpected result: %+v", res)
	}

	m, _ := ms.Get(context.Background(), "seller")
	if len(m.Creatures) != 1 {
		t.Errorf("creature not removed from collection: %d left", len(m.Creatures))
	}
}

func TestCreateListing_Errors(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 25)

	cases := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"missing caller", "", trade.CreateListingRequest{Index: 0, Price: 10}, http.StatusUnauthorized},
		{"negative price", "seller", trade.CreateListingRequest{Index: 0, Price: -5}, http.StatusBadRequest},
		{"no such creature", "seller", trade.CreateListingRequest{Index: 4, Price: 10}, http.StatusNotFound},
		{"unknown field", "seller", `{"index": 0, "price": 10, "discount": 5}`, http.StatusBadRequest},
		{"malformed json", "seller", `{"index":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := do(t, router, "POST", "/api/v1/market/listings", tc.user, tc.body)
		if w.Code != tc.status {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.status, w.Code, w.Body.String())
		}
	}
}

func TestGetListing(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 6)
	id := createListing(t, router, "seller", 0, 4200)

	w := do(t, router, "GET", "/api/v1/market/listings/"+id, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var info market.InfoResult
	json.NewDecoder(w.Body).Decode(&info)
	if info.SpeciesName != "Charizard" || info.ListingID != id || info.Stats.HP == 0 {
		t.Errorf("unexpected info: %+v", info)
	}

	for _, bad := range []string{"nope", "00000000-0000-0000-0000-000000000000"} {
		w := do(t, router, "GET", "/api/v1/market/listings/"+bad, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", bad, w.Code)
		}
	}
}

func TestPurchaseListing(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 50, 25)
	seedMember(t, ms, "buyer", 1000)
	seedMember(t, ms, "poor", 10)
	id := createListing(t, router, "seller", 0, 300)
	path := "/api/v1/market/listings/" + id + "/purchase"

	if w := do(t, router, "POST", path, "seller", nil); w.Code != http.StatusForbidden {
		t.Errorf("own listing: expected 403, got %d", w.Code)
	}
	w := do(t, router, "POST", path, "poor", nil)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("poor buyer: expected 402, got %d", w.Code)
	}
	if body := errorBody(t, w); body["code"] != string(market.KindInsufficientFunds) {
		t.Errorf("error body = %v", body)
	}

	if w := do(t, router, "POST", path, "buyer", nil); w.Code != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if b, _ := ms.Balance(context.Background(), "buyer"); b != 700 {
		t.Errorf("buyer balance = %d, want 700", b)
	}
	if b, _ := ms.Balance(context.Background(), "seller"); b != 350 {
		t.Errorf("seller balance = %d, want 350", b)
	}

	if w := do(t, router, "POST", path, "buyer", nil); w.Code != http.StatusNotFound {
		t.Errorf("second purchase: expected 404, got %d", w.Code)
	}
}

func TestWithdrawListing(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 25)
	seedMember(t, ms, "other", 0)
	id := createListing(t, router, "seller", 0, 10)
	path := "/api/v1/market/listings/" + id

	if w := do(t, router, "DELETE", path, "other", nil); w.Code != http.StatusForbidden {
		t.Errorf("non-seller: expected 403, got %d", w.Code)
	}
	if w := do(t, router, "DELETE", path, "seller", nil); w.Code != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, router, "DELETE", path, "seller", nil); w.Code != http.StatusNotFound {
		t.Errorf("second withdraw: expected 404, got %d", w.Code)
	}
	m, _ := ms.Get(context.Background(), "seller")
	if len(m.Creatures) != 1 {
		t.Errorf("creature not returned: %d in collection", len(m.Creatures))
	}
}

// --- Search ---

func TestSearch(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 25, 4, 150, 151, 26)
	for i := 0; i < 5; i++ {
		createListing(t, router, "seller", 0, int64(100*(i+1)))
	}

	cases := []struct {
		name  string
		req   trade.SearchRequest
		total int
	}{
		{"all", trade.SearchRequest{}, 5},
		{"names OR", trade.SearchRequest{Names: []string{"pikachu", "Raichu"}}, 2},
		{"type", trade.SearchRequest{Types: []string{"psychic"}}, 2},
		{"name AND type", trade.SearchRequest{Names: []string{"pikachu"}, Types: []string{"psychic"}}, 0},
		{"legendary", trade.SearchRequest{Flags: []string{"legendary"}}, 1},
		{"level", trade.SearchRequest{Ranges: []trade.RangeParam{{Field: "level", Value: "30"}}}, 5},
		{"limit", trade.SearchRequest{Limit: intp(3)}, 3},
		{"mine", trade.SearchRequest{Mine: true}, 5},
	}
	for _, tc := range cases {
		w := do(t, router, "POST", "/api/v1/market/search", "seller", tc.req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", tc.name, w.Code, w.Body.String())
		}
		var res trade.SearchResponse
		json.NewDecoder(w.Body).Decode(&res)
		if res.Total != tc.total {
			t.Errorf("%s: total = %d, want %d", tc.name, res.Total, tc.total)
		}
	}
}

func TestSearch_Statuses(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedMember(t, ms, "seller", 0, 25)
	createListing(t, router, "seller", 0, 100)

	w := do(t, router, "POST", "/api/v1/market/search", "", trade.SearchRequest{Page: intp(2)})
	var res trade.SearchResponse
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != "empty_page" || res.Message == "" {
		t.Errorf("page 2: %+v", res)
	}

	w = do(t, router, "POST", "/api/v1/market/search", "", trade.SearchRequest{Flags: []string{"mythical"}})
	res = trade.SearchResponse{}
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != "no_matches" {
		t.Errorf("mythical: %+v", res)
	}

	w = do(t, router, "POST", "/api/v1/market/search", "", trade.SearchRequest{})
	res = trade.SearchResponse{}
	json.NewDecoder(w.Body).Decode(&res)
	if res.Status != "ok" || len(res.Rows) != 1 || !strings.HasSuffix(res.Rows[0].DisplayLine, "100 pc") {
		t.Errorf("page 1: %+v", res)
	}
}

func TestSearch_Validation(t *testing.T) {
	_, router := newTestEnv(t, nil)

	cases := []struct {
		name  string
		user  string
		body  any
		want  int
		field string
	}{
		{"inverted range", "", trade.SearchRequest{Ranges: []trade.RangeParam{{Field: "atkiv", Value: "20-10"}}}, http.StatusBadRequest, "atkiv"},
		{"not a number", "", trade.SearchRequest{Ranges: []trade.RangeParam{{Field: "level", Value: "high"}}}, http.StatusBadRequest, "level"},
		{"unknown field", "", trade.SearchRequest{Ranges: []trade.RangeParam{{Field: "weight", Value: "1"}}}, http.StatusBadRequest, "weight"},
		{"unknown flag", "", trade.SearchRequest{Flags: []string{"sparkly"}}, http.StatusBadRequest, "flags"},
		{"unknown name", "", trade.SearchRequest{Names: []string{"Notamon"}}, http.StatusBadRequest, "name"},
		{"negative page", "", trade.SearchRequest{Page: intp(-1)}, http.StatusBadRequest, "page"},
		{"zero page", "", trade.SearchRequest{Page: intp(0)}, http.StatusBadRequest, "page"},
		{"mine without caller", "", trade.SearchRequest{Mine: true}, http.StatusUnauthorized, ""},
		{"unknown json field", "", `{"page": 1, "sort": "price"}`, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		w := do(t, router, "POST", "/api/v1/market/search", tc.user, tc.body)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
			continue
		}
		if tc.field != "" {
			if body := errorBody(t, w); !strings.Contains(body["error"], tc.field) {
				t.Errorf("%s: error %q does not name %q", tc.name, body["error"], tc.field)
			}
		}
	}
}

// --- WebSocket feed ---

func TestWebSocketFeed(t *testing.T) {
	hub := trade.NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ms, router := newTestEnv(t, hub)
	seedMember(t, ms, "seller", 0, 25)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	id := createListing(t, router, "seller", 0, 250)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev market.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != market.EventListingCreated || ev.ListingID != id || ev.Price != 250 || ev.Species != "Pikachu" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func intp(v int) *int { return &v }
