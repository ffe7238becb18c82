package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creaturebot/market-engine/internal/database"
	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
	"github.com/creaturebot/market-engine/internal/store"
)

func openSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewSQLiteStore(db)
}

// backends returns every store that runs without external services.
func backends(t *testing.T) map[string]store.Store {
	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"sqlite": openSQLite(t),
	}
}

func listing(seller string, species, level int, shiny bool, ivs model.IVs) *model.Listing {
	return &model.Listing{
		SellerID: seller,
		Price:    100,
		Creature: model.Creature{
			ID:        "c-" + seller,
			SpeciesID: species,
			Level:     level,
			Nature:    "Hardy",
			Shiny:     shiny,
			IVs:       ivs,
		},
	}
}

func seed(t *testing.T, s store.Store, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		l := listing("seller", 25, i+1, i%2 == 0, model.IVs{HP: i % 32})
		id, err := s.Insert(context.Background(), l)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestInsertGetDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := listing("alice", 133, 12, true, model.IVs{HP: 31, Atk: 2, Spd: 17})
			id, err := s.Insert(ctx, in)
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
			if id == "" || in.ID != id {
				t.Fatalf("id not assigned: %q / %q", id, in.ID)
			}

			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.SellerID != "alice" || got.Creature != in.Creature {
				t.Errorf("round trip mismatch: %+v", got)
			}

			deleted, err := s.DeleteIfExists(ctx, id)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if deleted.ID != id || deleted.Creature.SpeciesID != 133 {
				t.Errorf("deleted listing = %+v", deleted)
			}
			if _, err := s.DeleteIfExists(ctx, id); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("second delete err = %v, want ErrNotFound", err)
			}
			if _, err := s.Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("get after delete err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "abc", "12345", "not-a-uuid-at-all"} {
				if _, err := s.Get(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Get(%q) err = %v", id, err)
				}
				if _, err := s.DeleteIfExists(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("DeleteIfExists(%q) err = %v", id, err)
				}
			}
		})
	}
}

func TestConcurrentDeleteHasOneWinner(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ids := seed(t, s, 1)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.DeleteIfExists(context.Background(), ids[0])
					switch {
					case err == nil:
						wins.Add(1)
					case !errors.Is(err, store.ErrNotFound):
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if got := wins.Load(); got != 1 {
				t.Fatalf("winners = %d, want 1", got)
			}
		})
	}
}

func TestPageOrderAndWindow(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ids := seed(t, s, 45)

			n, err := s.Count(ctx, filter.All())
			if err != nil || n != 45 {
				t.Fatalf("count = %d, %v", n, err)
			}

			page, err := s.Page(ctx, filter.All(), 40, 20)
			if err != nil {
				t.Fatalf("page: %v", err)
			}
			if len(page) != 5 {
				t.Fatalf("last page len = %d, want 5", len(page))
			}
			for i, l := range page {
				if l.ID != ids[40+i] {
					t.Errorf("page[%d] = %s, want %s", i, l.ID, ids[40+i])
				}
			}

			q := filter.Query{Skip: 10, Limit: 15}
			if n, _ := s.Count(ctx, q); n != 15 {
				t.Errorf("windowed count = %d, want 15", n)
			}
			page, _ = s.Page(ctx, q, 0, 20)
			if len(page) != 15 || page[0].ID != ids[10] || page[14].ID != ids[24] {
				t.Errorf("windowed page len=%d", len(page))
			}
			if page, _ := s.Page(ctx, q, 20, 20); len(page) != 0 {
				t.Errorf("page past limit len = %d", len(page))
			}
		})
	}
}

func TestCountWithConditions(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, 10)
			other := listing("bob", 150, 70, false, model.IVs{HP: 31, Atk: 31, Def: 31, SpAtk: 31, SpDef: 31, Spd: 31})
			if _, err := s.Insert(ctx, other); err != nil {
				t.Fatal(err)
			}

			cases := []struct {
				name  string
				conds []filter.Cond
				want  int
			}{
				{"shiny", []filter.Cond{{Field: filter.FieldShiny, Op: filter.OpEq, Bool: true}}, 5},
				{"species", []filter.Cond{{Field: filter.FieldSpecies, Op: filter.OpIn, IDs: []int{150, 151}}}, 1},
				{"empty set", []filter.Cond{{Field: filter.FieldSpecies, Op: filter.OpIn}}, 0},
				{"seller", []filter.Cond{{Field: filter.FieldSeller, Op: filter.OpEq, Text: "bob"}}, 1},
				{"level", []filter.Cond{{Field: filter.FieldLevel, Op: filter.OpBetween, Min: 3, Max: 6}}, 4},
				{"iv total", []filter.Cond{{Field: filter.FieldIVTotal, Op: filter.OpBetween, Min: 168, Max: 186}}, 1},
				{"and", []filter.Cond{
					{Field: filter.FieldSpecies, Op: filter.OpIn, IDs: []int{25}},
					{Field: filter.FieldShiny, Op: filter.OpEq, Bool: false},
					{Field: filter.FieldHPIV, Op: filter.OpBetween, Min: 0, Max: 4},
				}, 2},
			}
			for _, tc := range cases {
				q := filter.Query{Conds: tc.conds, Limit: filter.NoLimit}
				got, err := s.Count(ctx, q)
				if err != nil {
					t.Fatalf("%s: %v", tc.name, err)
				}
				if got != tc.want {
					t.Errorf("%s: count = %d, want %d", tc.name, got, tc.want)
				}
			}
		})
	}
}

func TestCachedStoreTombstone(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	s := store.NewCachedStore(store.NewMemoryStore(), rdb, time.Minute)
	id, err := s.Insert(ctx, listing("alice", 1, 5, false, model.IVs{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if _, err := s.DeleteIfExists(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
}
