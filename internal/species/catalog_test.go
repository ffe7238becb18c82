package species

import (
	"errors"
	"reflect"
	"testing"

	"github.com/creaturebot/market-engine/internal/model"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, ok := c.Species(25)
	if !ok {
		t.Fatal("expected species 25")
	}
	if s.Name != "Pikachu" {
		t.Errorf("name = %q, want Pikachu", s.Name)
	}
}

func TestLookupIgnoresCaseAndSpacing(t *testing.T) {
	c := MustLoad()

	for _, name := range []string{"pikachu", "PIKACHU", "  Pikachu "} {
		s, ok := c.Lookup(name)
		if !ok || s.ID != 25 {
			t.Errorf("Lookup(%q) = %v, %v", name, s.ID, ok)
		}
	}
	s, ok := c.Lookup("alolan   raichu")
	if !ok || s.ID != 10100 {
		t.Errorf("Lookup(alolan raichu) = %v, %v", s.ID, ok)
	}
	if _, ok := c.Lookup("missingno"); ok {
		t.Error("expected unknown species")
	}
}

func TestTypeIDsSorted(t *testing.T) {
	c := MustLoad()

	ids, ok := c.TypeIDs("Electric")
	if !ok {
		t.Fatal("expected electric type")
	}
	want := []int{25, 26, 145, 796, 10100}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("electric ids = %v, want %v", ids, want)
	}
	if _, ok := c.TypeIDs("plasma"); ok {
		t.Error("expected unknown type")
	}
}

func TestCategoryIDs(t *testing.T) {
	c := MustLoad()

	tests := []struct {
		cat  Category
		want []int
	}{
		{Mythical, []int{151, 251, 385, 491, 493}},
		{UltraBeast, []int{793, 794, 795, 796}},
		{Alolan, []int{10100, 10103, 10107}},
	}
	for _, tt := range tests {
		got := c.CategoryIDs(tt.cat)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CategoryIDs(%s) = %v, want %v", tt.cat, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	c := MustLoad()

	cr := model.Creature{
		SpeciesID: 25,
		Level:     50,
		Nature:    "Timid",
		IVs:       model.IVs{HP: 31, Atk: 31, Def: 31, SpAtk: 31, SpDef: 31, Spd: 31},
	}
	got, err := c.Stats(cr)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{HP: 110, Atk: 67, Def: 60, SpAtk: 70, SpDef: 70, Spd: 121}
	if got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestStatsUnknownSpecies(t *testing.T) {
	c := MustLoad()

	_, err := c.Stats(model.Creature{SpeciesID: 9999, Level: 5})
	if !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("err = %v, want ErrUnknownSpecies", err)
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	data := []byte("species:\n  - {id: 1, name: A}\n  - {id: 1, name: B}\n")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected duplicate id error")
	}
}
