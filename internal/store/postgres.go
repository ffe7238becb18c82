package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

// pgListingCols is the column list every listing read scans, in scanPgListing order.
const pgListingCols = `id::TEXT, seller_id, price, creature, created_at`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The creature snapshot is kept as JSONB; its filterable attributes are
// denormalised into indexed columns at insert time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Count(ctx context.Context, q filter.Query) (int, error) {
	query, args, err := countSQL(dialectPostgres, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return q.Clamp(n), nil
}

func (s *PostgresStore) Page(ctx context.Context, q filter.Query, offset, size int) ([]model.Listing, error) {
	rawOffset, n := q.Window(offset, size)
	if n == 0 {
		return nil, nil
	}
	query, args, err := pageSQL(dialectPostgres, q, pgListingCols, rawOffset, n)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("page listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, l *model.Listing) (string, error) {
	data, err := json.Marshal(l.Creature)
	if err != nil {
		return "", fmt.Errorf("encode creature: %w", err)
	}
	id := uuid.New().String()
	createdAt := time.Now().UTC()
	c := l.Creature
	_, err = s.pool.Exec(ctx,
		`INSERT INTO listings (id, seller_id, price, species_id, level, shiny,
		                       iv_hp, iv_atk, iv_def, iv_satk, iv_sdef, iv_spd, iv_total,
		                       creature, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::JSONB, $15)`,
		id, l.SellerID, l.Price, c.SpeciesID, c.Level, c.Shiny,
		c.IVs.HP, c.IVs.Atk, c.IVs.Def, c.IVs.SpAtk, c.IVs.SpDef, c.IVs.Spd, c.IVTotal(),
		string(data), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert listing: %w", err)
	}
	l.ID = id
	l.CreatedAt = createdAt
	return id, nil
}

func (s *PostgresStore) DeleteIfExists(ctx context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`DELETE FROM listings WHERE id = $1 RETURNING `+pgListingCols, u.String())
	l, err := scanPgListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete listing %s: %w", id, err)
	}
	return l, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgListingCols+` FROM listings WHERE id = $1`, u.String())
	l, err := scanPgListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

func scanPgListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var raw []byte
	if err := row.Scan(&l.ID, &l.SellerID, &l.Price, &raw, &l.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &l.Creature); err != nil {
		return nil, fmt.Errorf("decode listing %s creature: %w", l.ID, err)
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}
