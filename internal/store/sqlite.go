package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/creaturebot/market-engine/internal/filter"
	"github.com/creaturebot/market-engine/internal/model"
)

const sqliteListingCols = `id, seller_id, price, creature, created_at`

// SQLiteStore implements Store on an embedded SQLite database, for
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a listing store on an open, migrated SQLite handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Count(ctx context.Context, q filter.Query) (int, error) {
	query, args, err := countSQL(dialectSQLite, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return q.Clamp(n), nil
}

func (s *SQLiteStore) Page(ctx context.Context, q filter.Query, offset, size int) ([]model.Listing, error) {
	rawOffset, n := q.Window(offset, size)
	if n == 0 {
		return nil, nil
	}
	query, args, err := pageSQL(dialectSQLite, q, sqliteListingCols, rawOffset, n)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("page listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) Insert(ctx context.Context, l *model.Listing) (string, error) {
	data, err := json.Marshal(l.Creature)
	if err != nil {
		return "", fmt.Errorf("encode creature: %w", err)
	}
	id := uuid.New().String()
	createdAt := time.Now().UTC()
	c := l.Creature
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings (id, seller_id, price, species_id, level, shiny,
		                       iv_hp, iv_atk, iv_def, iv_satk, iv_sdef, iv_spd, iv_total,
		                       creature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.SellerID, l.Price, c.SpeciesID, c.Level, c.Shiny,
		c.IVs.HP, c.IVs.Atk, c.IVs.Def, c.IVs.SpAtk, c.IVs.SpDef, c.IVs.Spd, c.IVTotal(),
		string(data), createdAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert listing: %w", err)
	}
	l.ID = id
	l.CreatedAt = time.UnixMilli(createdAt.UnixMilli()).UTC()
	return id, nil
}

func (s *SQLiteStore) DeleteIfExists(ctx context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM listings WHERE id = ? RETURNING `+sqliteListingCols, u.String())
	l, err := scanSQLiteListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete listing %s: %w", id, err)
	}
	return l, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Listing, error) {
	u, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteListingCols+` FROM listings WHERE id = ?`, u.String())
	l, err := scanSQLiteListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row rowScanner) (*model.Listing, error) {
	var l model.Listing
	var raw string
	var createdAt int64
	if err := row.Scan(&l.ID, &l.SellerID, &l.Price, &raw, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &l.Creature); err != nil {
		return nil, fmt.Errorf("decode listing %s creature: %w", l.ID, err)
	}
	l.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &l, nil
}
