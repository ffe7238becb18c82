package filter

import (
	"sort"

	"github.com/creaturebot/market-engine/internal/model"
)

// Op is the comparison a compiled condition performs.
type Op int

const (
	// OpIn tests species_id against a sorted id set.
	OpIn Op = iota + 1
	// OpEq tests a boolean or string attribute for equality.
	OpEq
	// OpBetween tests a numeric attribute against inclusive bounds.
	OpBetween
)

// NoLimit marks a query without a limit stage.
const NoLimit = -1

// Cond is one compiled match condition.
type Cond struct {
	Field Field
	Op    Op
	IDs   []int  // OpIn
	Bool  bool   // OpEq on shiny
	Text  string // OpEq on seller_id
	Min   int    // OpBetween
	Max   int    // OpBetween
}

// Query is a compiled filter: conditions that must all hold, followed by
// skip and limit stages over the insertion-ordered matches.
type Query struct {
	Conds []Cond
	Skip  int
	Limit int
}

// All matches every listing.
func All() Query {
	return Query{Limit: NoLimit}
}

// Match evaluates the conditions against a listing.
func (q Query) Match(l model.Listing) bool {
	for _, c := range q.Conds {
		if !c.match(l) {
			return false
		}
	}
	return true
}

func (c Cond) match(l model.Listing) bool {
	switch c.Op {
	case OpIn:
		i := sort.SearchInts(c.IDs, l.Creature.SpeciesID)
		return i < len(c.IDs) && c.IDs[i] == l.Creature.SpeciesID
	case OpEq:
		switch c.Field {
		case FieldShiny:
			return l.Creature.Shiny == c.Bool
		case FieldSeller:
			return l.SellerID == c.Text
		}
	case OpBetween:
		v, ok := numeric(c.Field, l.Creature)
		return ok && v >= c.Min && v <= c.Max
	}
	return false
}

func numeric(f Field, c model.Creature) (int, bool) {
	switch f {
	case FieldLevel:
		return c.Level, true
	case FieldHPIV:
		return c.IVs.HP, true
	case FieldAtkIV:
		return c.IVs.Atk, true
	case FieldDefIV:
		return c.IVs.Def, true
	case FieldSpAtkIV:
		return c.IVs.SpAtk, true
	case FieldSpDefIV:
		return c.IVs.SpDef, true
	case FieldSpdIV:
		return c.IVs.Spd, true
	case FieldIVTotal:
		return c.IVTotal(), true
	}
	return 0, false
}

// Clamp converts a raw match count into the count visible through the skip
// and limit stages.
func (q Query) Clamp(matches int) int {
	n := matches - q.Skip
	if n < 0 {
		n = 0
	}
	if q.Limit >= 0 && n > q.Limit {
		n = q.Limit
	}
	return n
}

// Window maps a page window (offset, size) over the visible results onto
// the raw ordered matches. It returns the raw offset and how many rows to
// read; n is zero when the window lies past the limit.
func (q Query) Window(offset, size int) (rawOffset, n int) {
	if offset < 0 {
		offset = 0
	}
	n = size
	if q.Limit >= 0 && offset+n > q.Limit {
		n = q.Limit - offset
	}
	if n < 0 {
		n = 0
	}
	return q.Skip + offset, n
}
