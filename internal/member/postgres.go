package member

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creaturebot/market-engine/internal/model"
)

// PostgresStore implements Store on the members table. The collection is a
// JSONB array so removal, compaction and the selected adjustment happen in
// a single UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed member store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, balance, selected, creatures FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.Balance, &m.Selected, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &m.Creatures); err != nil {
		return nil, fmt.Errorf("decode member %s creatures: %w", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) Put(ctx context.Context, m *model.Member) error {
	creatures := m.Creatures
	if creatures == nil {
		creatures = []model.Creature{}
	}
	data, err := json.Marshal(creatures)
	if err != nil {
		return fmt.Errorf("encode member %s creatures: %w", m.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO members (id, balance, selected, creatures)
		 VALUES ($1, $2, $3, $4::JSONB)
		 ON CONFLICT (id) DO UPDATE
		 SET balance = EXCLUDED.balance, selected = EXCLUDED.selected, creatures = EXCLUDED.creatures`,
		m.ID, m.Balance, m.Selected, string(data))
	return err
}

func (s *PostgresStore) CreatureAt(ctx context.Context, id string, index int) (model.Creature, error) {
	if index < 0 {
		return model.Creature{}, ErrNoSuchCreature
	}
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT creatures -> $2::INT FROM members WHERE id = $1`, id, index).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Creature{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Creature{}, fmt.Errorf("get creature %s[%d]: %w", id, index, err)
	}
	if raw == nil {
		return model.Creature{}, ErrNoSuchCreature
	}
	var c model.Creature
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Creature{}, fmt.Errorf("decode creature %s[%d]: %w", id, index, err)
	}
	return c, nil
}

func (s *PostgresStore) RemoveCreatureAt(ctx context.Context, id string, index int, creatureID string) error {
	if index < 0 {
		return ErrCollectionChanged
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE members
		 SET creatures = creatures - $2::INT,
		     selected = CASE WHEN $2::INT < selected THEN selected - 1 ELSE selected END
		 WHERE id = $1 AND creatures -> $2::INT ->> 'id' = $3`,
		id, index, creatureID)
	if err != nil {
		return fmt.Errorf("remove creature %s[%d]: %w", id, index, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.exists(ctx, id); err != nil {
			return err
		}
		return ErrCollectionChanged
	}
	return nil
}

func (s *PostgresStore) PushCreature(ctx context.Context, id string, c model.Creature) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode creature: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE members SET creatures = creatures || jsonb_build_array($2::JSONB) WHERE id = $1`,
		id, string(data))
	if err != nil {
		return fmt.Errorf("push creature %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM members WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", id, err)
	}
	return balance, nil
}

func (s *PostgresStore) Credit(ctx context.Context, id string, amount int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE members SET balance = balance + $2 WHERE id = $1`, id, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Debit(ctx context.Context, id string, amount int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE members SET balance = balance - $2 WHERE id = $1 AND balance >= $2`, id, amount)
	if err != nil {
		return fmt.Errorf("debit %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.exists(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (s *PostgresStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM members WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
