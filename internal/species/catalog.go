// Package species holds the reference data the marketplace needs about
// creatures: species names, types, rarity categories, base stats, natures
// and held items. The data ships embedded as YAML.
package species

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/creaturebot/market-engine/internal/model"
)

//go:embed catalog.yaml
var embedded []byte

// Category is a rarity or form grouping used by boolean filter flags.
type Category string

const (
	Mythical   Category = "mythical"
	Legendary  Category = "legendary"
	UltraBeast Category = "ultra_beast"
	Alolan     Category = "alolan"
	Mega       Category = "mega"
)

var ErrUnknownSpecies = errors.New("species: unknown species")

// BaseStats are the per-species base values used in stat computation.
type BaseStats struct {
	HP    int `yaml:"hp"`
	Atk   int `yaml:"atk"`
	Def   int `yaml:"def"`
	SpAtk int `yaml:"satk"`
	SpDef int `yaml:"sdef"`
	Spd   int `yaml:"spd"`
}

// Species is one entry of the catalog.
type Species struct {
	ID         int       `yaml:"id"`
	Name       string    `yaml:"name"`
	Types      []string  `yaml:"types"`
	Mythical   bool      `yaml:"mythical"`
	Legendary  bool      `yaml:"legendary"`
	UltraBeast bool      `yaml:"ultra_beast"`
	Alolan     bool      `yaml:"alolan"`
	Mega       bool      `yaml:"mega"`
	Base       BaseStats `yaml:"base"`
}

// In reports whether the species belongs to the category.
func (s Species) In(c Category) bool {
	switch c {
	case Mythical:
		return s.Mythical
	case Legendary:
		return s.Legendary
	case UltraBeast:
		return s.UltraBeast
	case Alolan:
		return s.Alolan
	case Mega:
		return s.Mega
	}
	return false
}

// Nature raises one stat by 10% and lowers another by 10%. Neutral natures
// leave Up and Down empty.
type Nature struct {
	Name string `yaml:"name"`
	Up   string `yaml:"up"`
	Down string `yaml:"down"`
}

// Item is a held item.
type Item struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

type document struct {
	Species []Species `yaml:"species"`
	Natures []Nature  `yaml:"natures"`
	Items   []Item    `yaml:"items"`
}

// Catalog indexes the reference data. It is read-only after Load and safe
// for concurrent use.
type Catalog struct {
	byID    map[int]Species
	byName  map[string]Species
	byType  map[string][]int
	natures map[string]Nature
	items   map[int]Item
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// MustLoad parses the embedded catalog or panics.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("species: parse catalog: %w", err)
	}

	c := &Catalog{
		byID:    make(map[int]Species, len(doc.Species)),
		byName:  make(map[string]Species, len(doc.Species)),
		byType:  make(map[string][]int),
		natures: make(map[string]Nature, len(doc.Natures)),
		items:   make(map[int]Item, len(doc.Items)),
	}
	for _, s := range doc.Species {
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("species: duplicate id %d", s.ID)
		}
		c.byID[s.ID] = s
		c.byName[normalize(s.Name)] = s
		for _, t := range s.Types {
			t = normalize(t)
			c.byType[t] = append(c.byType[t], s.ID)
		}
	}
	for t := range c.byType {
		sort.Ints(c.byType[t])
	}
	for _, n := range doc.Natures {
		c.natures[normalize(n.Name)] = n
	}
	for _, it := range doc.Items {
		c.items[it.ID] = it
	}
	return c, nil
}

// Species returns the species with the given id.
func (c *Catalog) Species(id int) (Species, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Name returns the display name for a species id, or "Unknown".
func (c *Catalog) Name(id int) string {
	if s, ok := c.byID[id]; ok {
		return s.Name
	}
	return "Unknown"
}

// Lookup finds a species by name, ignoring case and repeated whitespace.
func (c *Catalog) Lookup(name string) (Species, bool) {
	s, ok := c.byName[normalize(name)]
	return s, ok
}

// TypeIDs returns the sorted species ids having the given type. The second
// result is false when no species has that type.
func (c *Catalog) TypeIDs(typ string) ([]int, bool) {
	ids, ok := c.byType[normalize(typ)]
	if !ok {
		return nil, false
	}
	out := make([]int, len(ids))
	copy(out, ids)
	return out, true
}

// CategoryIDs returns the sorted species ids in a category.
func (c *Catalog) CategoryIDs(cat Category) []int {
	var ids []int
	for id, s := range c.byID {
		if s.In(cat) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Nature looks up a nature by name.
func (c *Catalog) Nature(name string) (Nature, bool) {
	n, ok := c.natures[normalize(name)]
	return n, ok
}

// Item looks up a held item by id.
func (c *Catalog) Item(id int) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Stats are the computed battle stats of a creature.
type Stats struct {
	HP    int `json:"hp"`
	Atk   int `json:"atk"`
	Def   int `json:"def"`
	SpAtk int `json:"satk"`
	SpDef int `json:"sdef"`
	Spd   int `json:"spd"`
}

// Stats computes a creature's stats from its species base stats, IVs, level
// and nature.
func (c *Catalog) Stats(cr model.Creature) (Stats, error) {
	s, ok := c.byID[cr.SpeciesID]
	if !ok {
		return Stats{}, fmt.Errorf("%w: %d", ErrUnknownSpecies, cr.SpeciesID)
	}
	nature, _ := c.Nature(cr.Nature)

	other := func(key string, base, iv int) int {
		v := (2*base+iv)*cr.Level/100 + 5
		switch key {
		case nature.Up:
			return v * 11 / 10
		case nature.Down:
			return v * 9 / 10
		}
		return v
	}

	return Stats{
		HP:    (2*s.Base.HP+cr.IVs.HP)*cr.Level/100 + cr.Level + 10,
		Atk:   other("atk", s.Base.Atk, cr.IVs.Atk),
		Def:   other("def", s.Base.Def, cr.IVs.Def),
		SpAtk: other("satk", s.Base.SpAtk, cr.IVs.SpAtk),
		SpDef: other("sdef", s.Base.SpDef, cr.IVs.SpDef),
		Spd:   other("spd", s.Base.Spd, cr.IVs.Spd),
	}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
