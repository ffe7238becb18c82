package filter

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/creaturebot/market-engine/internal/model"
	"github.com/creaturebot/market-engine/internal/species"
)

var flagCategory = map[Flag]species.Category{
	FlagAlolan:     species.Alolan,
	FlagMythical:   species.Mythical,
	FlagLegendary:  species.Legendary,
	FlagUltraBeast: species.UltraBeast,
	FlagMega:       species.Mega,
}

// Compiler resolves names, types and categories against a species catalog.
type Compiler struct {
	catalog *species.Catalog
}

// NewCompiler creates a compiler backed by catalog.
func NewCompiler(catalog *species.Catalog) *Compiler {
	return &Compiler{catalog: catalog}
}

// Compile validates spec and translates it into a Query. viewerID scopes
// the query when spec.Mine is set.
//
// Conditions are emitted in a fixed order (flags, names, types, ranges by
// field, scope) so equal specs compile to equal queries.
func (c *Compiler) Compile(spec Spec, viewerID string) (Query, error) {
	if spec.Page < 1 {
		return Query{}, invalid("page", "page must be positive")
	}

	var (
		flags  = make(map[Flag]bool)
		names  []int
		types  []int
		ranges = make(map[Field][]RangeOn)
	)

	for _, p := range spec.Predicates {
		switch p := p.(type) {
		case BoolFlag:
			if _, err := ParseFlag(string(p.Kind)); err != nil {
				return Query{}, err
			}
			flags[p.Kind] = true
		case NameIs:
			s, ok := c.catalog.Lookup(p.Name)
			if !ok {
				return Query{}, invalid("name", "unknown species %q", p.Name)
			}
			names = append(names, s.ID)
		case TypeIs:
			ids, ok := c.catalog.TypeIDs(p.Type)
			if !ok {
				return Query{}, invalid("type", "unknown type %q", p.Type)
			}
			types = append(types, ids...)
		case RangeOn:
			if err := p.validate(); err != nil {
				return Query{}, err
			}
			ranges[p.Field] = append(ranges[p.Field], p)
		default:
			return Query{}, invalid("predicate", "unsupported predicate %T", p)
		}
	}

	var q Query
	for _, f := range flagOrder {
		if !flags[f] {
			continue
		}
		if f == FlagShiny {
			q.Conds = append(q.Conds, Cond{Field: FieldShiny, Op: OpEq, Bool: true})
			continue
		}
		q.Conds = append(q.Conds, Cond{
			Field: FieldSpecies,
			Op:    OpIn,
			IDs:   c.catalog.CategoryIDs(flagCategory[f]),
		})
	}
	if len(names) > 0 {
		q.Conds = append(q.Conds, Cond{Field: FieldSpecies, Op: OpIn, IDs: uniqueSorted(names)})
	}
	if len(types) > 0 {
		q.Conds = append(q.Conds, Cond{Field: FieldSpecies, Op: OpIn, IDs: uniqueSorted(types)})
	}
	for _, f := range rangeFields {
		for _, r := range ranges[f] {
			cond, err := rangeCond(r)
			if err != nil {
				return Query{}, err
			}
			q.Conds = append(q.Conds, cond)
		}
	}
	if spec.Mine {
		q.Conds = append(q.Conds, Cond{Field: FieldSeller, Op: OpEq, Text: viewerID})
	}

	q.Limit = NoLimit
	if spec.Skip != nil && *spec.Skip > 0 {
		q.Skip = *spec.Skip
	}
	if spec.Limit != nil {
		q.Limit = max(*spec.Limit, 0)
	}
	return q, nil
}

var (
	hundred  = decimal.NewFromInt(100)
	ivTotals = decimal.NewFromInt(model.MaxIVTotal)
)

func rangeCond(r RangeOn) (Cond, error) {
	if r.Field != FieldIV {
		return Cond{
			Field: r.Field,
			Op:    OpBetween,
			Min:   int(r.Min.IntPart()),
			Max:   int(r.Max.IntPart()),
		}, nil
	}
	// Percentages become IV-total bounds: the smallest total at or above
	// min% and the largest at or below max%.
	lo := r.Min.Mul(ivTotals).Div(hundred).Ceil()
	hi := r.Max.Mul(ivTotals).Div(hundred).Floor()
	if hi.LessThan(lo) {
		return Cond{}, invalid(string(FieldIV), "no IV total falls between %s%% and %s%%", r.Min, r.Max)
	}
	return Cond{
		Field: FieldIVTotal,
		Op:    OpBetween,
		Min:   int(lo.IntPart()),
		Max:   int(hi.IntPart()),
	}, nil
}

func uniqueSorted(ids []int) []int {
	sort.Ints(ids)
	out := ids[:0]
	for _, id := range ids {
		if len(out) == 0 || out[len(out)-1] != id {
			out = append(out, id)
		}
	}
	return out
}
