// Package filter turns a user's browse request into a compiled query the
// listing stores can execute. Compilation is pure: it validates and
// translates, and never touches storage.
package filter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field names a numeric creature attribute a range predicate can target,
// or an attribute a compiled condition tests.
type Field string

// Range predicate fields, as the command surface spells them.
const (
	FieldLevel   Field = "level"
	FieldHPIV    Field = "hpiv"
	FieldAtkIV   Field = "atkiv"
	FieldDefIV   Field = "defiv"
	FieldSpAtkIV Field = "spatkiv"
	FieldSpDefIV Field = "spdefiv"
	FieldSpdIV   Field = "spdiv"
	FieldIV      Field = "iv" // aggregate IV percentage, 0-100
)

// Fields that only appear in compiled conditions.
const (
	FieldSpecies Field = "species_id"
	FieldShiny   Field = "shiny"
	FieldSeller  Field = "seller_id"
	FieldIVTotal Field = "iv_total"
)

// rangeFields lists the range predicate fields in compilation order.
var rangeFields = []Field{
	FieldLevel, FieldHPIV, FieldAtkIV, FieldDefIV,
	FieldSpAtkIV, FieldSpDefIV, FieldSpdIV, FieldIV,
}

func isRangeField(f Field) bool {
	for _, rf := range rangeFields {
		if rf == f {
			return true
		}
	}
	return false
}

// Flag is a boolean filter.
type Flag string

const (
	FlagShiny      Flag = "shiny"
	FlagAlolan     Flag = "alolan"
	FlagMythical   Flag = "mythical"
	FlagLegendary  Flag = "legendary"
	FlagUltraBeast Flag = "ub"
	FlagMega       Flag = "mega"
)

var flagOrder = []Flag{
	FlagShiny, FlagAlolan, FlagMythical, FlagLegendary, FlagUltraBeast, FlagMega,
}

// Predicate is one user-specified filter term. The concrete variants are
// NameIs, TypeIs, RangeOn and BoolFlag.
type Predicate interface {
	predicate()
}

// NameIs matches a species by name. Several NameIs predicates match any of
// the names.
type NameIs struct {
	Name string
}

// TypeIs matches species having a type. Several TypeIs predicates match any
// of the types.
type TypeIs struct {
	Type string
}

// RangeOn bounds a numeric field inclusively. Repeated ranges on the same
// field must all hold.
type RangeOn struct {
	Field Field
	Min   decimal.Decimal
	Max   decimal.Decimal
}

// BoolFlag requires a categorical attribute.
type BoolFlag struct {
	Kind Flag
}

func (NameIs) predicate()   {}
func (TypeIs) predicate()   {}
func (RangeOn) predicate()  {}
func (BoolFlag) predicate() {}

// Spec is one browse request: predicates plus paging and scope. It lives for
// a single request and is never persisted.
type Spec struct {
	Page       int
	Mine       bool
	Skip       *int
	Limit      *int
	Predicates []Predicate
}

// ValidationError reports a malformed filter, naming the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseFlag resolves a flag name such as "shiny" or "ub".
func ParseFlag(name string) (BoolFlag, error) {
	f := Flag(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range flagOrder {
		if f == known {
			return BoolFlag{Kind: f}, nil
		}
	}
	return BoolFlag{}, invalid("flags", "unknown flag %q", name)
}

// ParseRange parses a range token for field. A token is either a single
// value ("31") or "min-max" ("20-31"). Only the aggregate iv field accepts
// fractional values.
func ParseRange(field, token string) (RangeOn, error) {
	f := Field(strings.ToLower(strings.TrimSpace(field)))
	if !isRangeField(f) {
		return RangeOn{}, invalid(field, "unknown field")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return RangeOn{}, invalid(string(f), "empty value")
	}

	parts := strings.Split(token, "-")
	if len(parts) > 2 {
		return RangeOn{}, invalid(string(f), "malformed range %q", token)
	}
	lo, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return RangeOn{}, invalid(string(f), "%q is not a number", parts[0])
	}
	hi := lo
	if len(parts) == 2 {
		hi, err = decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return RangeOn{}, invalid(string(f), "%q is not a number", parts[1])
		}
	}

	r := RangeOn{Field: f, Min: lo, Max: hi}
	if err := r.validate(); err != nil {
		return RangeOn{}, err
	}
	return r, nil
}

func (r RangeOn) validate() error {
	if !isRangeField(r.Field) {
		return invalid(string(r.Field), "unknown field")
	}
	if r.Min.IsNegative() || r.Max.IsNegative() {
		return invalid(string(r.Field), "values must not be negative")
	}
	if r.Field != FieldIV && (!r.Min.IsInteger() || !r.Max.IsInteger()) {
		return invalid(string(r.Field), "values must be whole numbers")
	}
	if r.Max.LessThan(r.Min) {
		return invalid(string(r.Field), "max %s is less than min %s", r.Max, r.Min)
	}
	return nil
}
