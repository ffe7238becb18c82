package store

import (
	"reflect"
	"testing"

	"github.com/creaturebot/market-engine/internal/filter"
)

func TestRenderWhere(t *testing.T) {
	q := filter.Query{
		Conds: []filter.Cond{
			{Field: filter.FieldShiny, Op: filter.OpEq, Bool: true},
			{Field: filter.FieldSpecies, Op: filter.OpIn, IDs: []int{4, 6}},
			{Field: filter.FieldIVTotal, Op: filter.OpBetween, Min: 168, Max: 186},
			{Field: filter.FieldSeller, Op: filter.OpEq, Text: "u1"},
		},
		Limit: filter.NoLimit,
	}

	where, args, err := renderWhere(dialectPostgres, q)
	if err != nil {
		t.Fatal(err)
	}
	want := " WHERE shiny = $1 AND species_id = ANY($2) AND iv_total BETWEEN $3 AND $4 AND seller_id = $5"
	if where != want {
		t.Errorf("postgres where\n got %q\nwant %q", where, want)
	}
	wantArgs := []any{true, []int32{4, 6}, 168, 186, "u1"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("postgres args = %#v", args)
	}

	where, args, err = renderWhere(dialectSQLite, q)
	if err != nil {
		t.Fatal(err)
	}
	want = " WHERE shiny = ? AND species_id IN (?, ?) AND iv_total BETWEEN ? AND ? AND seller_id = ?"
	if where != want {
		t.Errorf("sqlite where\n got %q\nwant %q", where, want)
	}
	if len(args) != 6 {
		t.Errorf("sqlite args len = %d, want 6", len(args))
	}
}

func TestRenderWhereEmpty(t *testing.T) {
	where, args, err := renderWhere(dialectPostgres, filter.All())
	if err != nil || where != "" || args != nil {
		t.Fatalf("got %q %v %v", where, args, err)
	}
}

func TestPageSQLAppendsWindow(t *testing.T) {
	q := filter.Query{
		Conds: []filter.Cond{{Field: filter.FieldLevel, Op: filter.OpBetween, Min: 1, Max: 50}},
		Limit: filter.NoLimit,
	}
	query, args, err := pageSQL(dialectPostgres, q, "id", 40, 20)
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT id FROM listings WHERE level BETWEEN $1 AND $2 ORDER BY seq LIMIT $3 OFFSET $4"
	if query != want {
		t.Errorf("query\n got %q\nwant %q", query, want)
	}
	if !reflect.DeepEqual(args, []any{1, 50, 20, 40}) {
		t.Errorf("args = %v", args)
	}
}

func TestRenderWhereUnknownField(t *testing.T) {
	q := filter.Query{Conds: []filter.Cond{{Field: filter.FieldIV, Op: filter.OpBetween}}}
	if _, _, err := renderWhere(dialectSQLite, q); err == nil {
		t.Fatal("expected error for uncompiled field")
	}
}
