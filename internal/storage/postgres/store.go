// Package postgres persists cart slots in a single jsonb-backed table. One
// row per slot, upserted on every write-through.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freshcart/cart-service-go/internal/cart"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context, key string) ([]cart.Item, error) {
	const query = `SELECT items FROM cart_slots WHERE slot_key = $1`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cart.ErrSlotEmpty
		}
		return nil, fmt.Errorf("select cart slot: %w", err)
	}

	var items []cart.Item
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", cart.ErrCorruptSlot, err)
	}
	return items, nil
}

func (s *Store) Save(ctx context.Context, key string, items []cart.Item) error {
	if items == nil {
		items = []cart.Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart slot: %w", err)
	}

	const upsert = `
INSERT INTO cart_slots (slot_key, items, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (slot_key) DO UPDATE
SET items = EXCLUDED.items, updated_at = NOW()
`
	if _, err := s.db.ExecContext(ctx, upsert, key, payload); err != nil {
		return fmt.Errorf("upsert cart slot: %w", err)
	}
	return nil
}
