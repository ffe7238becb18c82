package member

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creaturebot/market-engine/internal/model"
)

// SQLiteStore implements Store on SQLite using its JSON1 functions over a
// TEXT collection column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a member store on an open, migrated SQLite handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func elemPath(index int) string {
	return fmt.Sprintf("$[%d]", index)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Member, error) {
	var m model.Member
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balance, selected, creatures FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Balance, &m.Selected, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(raw), &m.Creatures); err != nil {
		return nil, fmt.Errorf("decode member %s creatures: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) Put(ctx context.Context, m *model.Member) error {
	creatures := m.Creatures
	if creatures == nil {
		creatures = []model.Creature{}
	}
	data, err := json.Marshal(creatures)
	if err != nil {
		return fmt.Errorf("encode member %s creatures: %w", m.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO members (id, balance, selected, creatures) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET balance = excluded.balance, selected = excluded.selected, creatures = excluded.creatures`,
		m.ID, m.Balance, m.Selected, string(data))
	return err
}

func (s *SQLiteStore) CreatureAt(ctx context.Context, id string, index int) (model.Creature, error) {
	if index < 0 {
		return model.Creature{}, ErrNoSuchCreature
	}
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT json_extract(creatures, ?) FROM members WHERE id = ?`, elemPath(index), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Creature{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Creature{}, fmt.Errorf("get creature %s[%d]: %w", id, index, err)
	}
	if !raw.Valid {
		return model.Creature{}, ErrNoSuchCreature
	}
	var c model.Creature
	if err := json.Unmarshal([]byte(raw.String), &c); err != nil {
		return model.Creature{}, fmt.Errorf("decode creature %s[%d]: %w", id, index, err)
	}
	return c, nil
}

func (s *SQLiteStore) RemoveCreatureAt(ctx context.Context, id string, index int, creatureID string) error {
	if index < 0 {
		return ErrCollectionChanged
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE members
		 SET creatures = json_remove(creatures, ?1),
		     selected = CASE WHEN ?2 < selected THEN selected - 1 ELSE selected END
		 WHERE id = ?3 AND json_extract(creatures, ?1 || '.id') = ?4`,
		elemPath(index), index, id, creatureID)
	if err != nil {
		return fmt.Errorf("remove creature %s[%d]: %w", id, index, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := s.exists(ctx, id); err != nil {
			return err
		}
		return ErrCollectionChanged
	}
	return nil
}

func (s *SQLiteStore) PushCreature(ctx context.Context, id string, c model.Creature) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode creature: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET creatures = json_insert(creatures, '$[#]', json(?)) WHERE id = ?`,
		string(data), id)
	if err != nil {
		return fmt.Errorf("push creature %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Balance(ctx context.Context, id string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM members WHERE id = ?`, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", id, err)
	}
	return balance, nil
}

func (s *SQLiteStore) Credit(ctx context.Context, id string, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET balance = balance + ? WHERE id = ?`, amount, id)
	if err != nil {
		return fmt.Errorf("credit %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Debit(ctx context.Context, id string, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET balance = balance - ?1 WHERE id = ?2 AND balance >= ?1`, amount, id)
	if err != nil {
		return fmt.Errorf("debit %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := s.exists(ctx, id); err != nil {
			return err
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (s *SQLiteStore) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM members WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
