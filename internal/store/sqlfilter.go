package store

import (
	"fmt"
	"strings"

	"github.com/creaturebot/market-engine/internal/filter"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// columns maps compiled condition fields onto listings table columns.
var columns = map[filter.Field]string{
	filter.FieldSpecies: "species_id",
	filter.FieldShiny:   "shiny",
	filter.FieldSeller:  "seller_id",
	filter.FieldLevel:   "level",
	filter.FieldHPIV:    "iv_hp",
	filter.FieldAtkIV:   "iv_atk",
	filter.FieldDefIV:   "iv_def",
	filter.FieldSpAtkIV: "iv_satk",
	filter.FieldSpDefIV: "iv_sdef",
	filter.FieldSpdIV:   "iv_spd",
	filter.FieldIVTotal: "iv_total",
}

// whereClause accumulates bind arguments while rendering conditions.
type whereClause struct {
	d    dialect
	args []any
}

func (w *whereClause) bind(v any) string {
	w.args = append(w.args, v)
	if w.d == dialectPostgres {
		return fmt.Sprintf("$%d", len(w.args))
	}
	return "?"
}

// renderWhere renders a query's conditions as a WHERE clause. The clause is
// empty when the query has no conditions.
func renderWhere(d dialect, q filter.Query) (string, []any, error) {
	w := &whereClause{d: d}
	var parts []string
	for _, c := range q.Conds {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("no column for field %q", c.Field)
		}
		switch c.Op {
		case filter.OpIn:
			parts = append(parts, w.in(col, c.IDs))
		case filter.OpEq:
			if c.Field == filter.FieldShiny {
				parts = append(parts, col+" = "+w.bind(c.Bool))
			} else {
				parts = append(parts, col+" = "+w.bind(c.Text))
			}
		case filter.OpBetween:
			parts = append(parts, fmt.Sprintf("%s BETWEEN %s AND %s", col, w.bind(c.Min), w.bind(c.Max)))
		default:
			return "", nil, fmt.Errorf("unsupported op %d on %q", c.Op, c.Field)
		}
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), w.args, nil
}

func (w *whereClause) in(col string, ids []int) string {
	if len(ids) == 0 {
		return "1 = 0"
	}
	if w.d == dialectPostgres {
		arr := make([]int32, len(ids))
		for i, id := range ids {
			arr[i] = int32(id)
		}
		return col + " = ANY(" + w.bind(arr) + ")"
	}
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = w.bind(id)
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")"
}

// countSQL renders the raw match count of q. Callers apply Query.Clamp.
func countSQL(d dialect, q filter.Query) (string, []any, error) {
	where, args, err := renderWhere(d, q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM listings" + where, args, nil
}

// pageSQL renders a page read in insertion order. The window must already
// be mapped through Query.Window.
func pageSQL(d dialect, q filter.Query, selectCols string, rawOffset, n int) (string, []any, error) {
	where, args, err := renderWhere(d, q)
	if err != nil {
		return "", nil, err
	}
	w := &whereClause{d: d, args: args}
	query := "SELECT " + selectCols + " FROM listings" + where +
		" ORDER BY seq LIMIT " + w.bind(n) + " OFFSET " + w.bind(rawOffset)
	return query, w.args, nil
}
