// Package pagination slices a compiled query's results into fixed-size
// pages and reports the footer arithmetic the presentation layer shows.
package pagination

import (
	"context"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

// DefaultPageSize is the number of listings per browse page.
const DefaultPageSize = 20

// MaxPageSize bounds caller-chosen page sizes.
const MaxPageSize = 100

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg PageSizeConfig) int {
	pageSize := value
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Source is the subset of the listing store a page render reads.
type Source interface {
	Count(ctx context.Context, q filter.Query) (int, error)
	Page(ctx context.Context, q filter.Query, offset, size int) ([]model.Listing, error)
}

// Status classifies a rendered page.
type Status int

const (
	// StatusOK means the page has rows.
	StatusOK Status = iota
	// StatusNoMatches means the query matched nothing at all.
	StatusNoMatches
	// StatusEmptyPage means there are matches but none on this page.
	StatusEmptyPage
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoMatches:
		return "no_matches"
	case StatusEmptyPage:
		return "empty_page"
	}
	return "unknown"
}

// Result is one rendered page. Start and End are zero-based and half-open:
// rows cover matches [Start, End) of Total.
type Result struct {
	Rows     []model.Listing
	Total    int
	Start    int
	End      int
	Page     int // zero-based
	PageSize int
	NumPages int
	Status   Status
}

// Render counts the query's matches and reads page pageIndex (zero-based)
// of size pageSize.
func Render(ctx context.Context, src Source, q filter.Query, pageIndex, pageSize int) (*Result, error) {
	if pageIndex < 0 {
		pageIndex = 0
	}
	pageSize = ClampPageSize(pageSize, PageSizeConfig{Default: DefaultPageSize, Max: MaxPageSize})

	total, err := src.Count(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Total:    total,
		Start:    pageIndex * pageSize,
		Page:     pageIndex,
		PageSize: pageSize,
		NumPages: (total + pageSize - 1) / pageSize,
	}
	res.End = min(res.Start+pageSize, total)

	if total == 0 {
		res.Status = StatusNoMatches
		res.End = 0
		return res, nil
	}
	if res.Start >= total {
		res.Status = StatusEmptyPage
		res.End = res.Start
		return res, nil
	}

	rows, err := src.Page(ctx, q, res.Start, pageSize)
	if err != nil {
		return nil, err
	}
	res.Rows = rows
	if len(rows) == 0 {
		// Listings resolved between the count and the read.
		res.Status = StatusEmptyPage
		res.End = res.Start
		return res, nil
	}
	res.End = res.Start + len(rows)
	return res, nil
}
