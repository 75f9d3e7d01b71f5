package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store is the single source of truth for one user's cart. Every mutation is
// written through to the backing slot immediately, so a reload observes the
// last committed state. A failed write keeps the in-memory mutation applied
// and is returned as a non-fatal error the caller may log and move on from.
type Store struct {
	mu     sync.Mutex
	items  []Item
	isOpen bool

	storage Storage
	slotKey string
	logger  *slog.Logger
}

// NewStore hydrates a store from its slot. An absent or corrupt slot yields
// an empty cart without error. Hydration reads only; it never writes back, so
// a valid slot cannot be clobbered by an empty cart during startup.
func NewStore(ctx context.Context, storage Storage, slotKey string, logger *slog.Logger) *Store {
	s := &Store{storage: storage, slotKey: slotKey, logger: logger}

	items, err := storage.Load(ctx, slotKey)
	switch {
	case err == nil:
		s.items = sanitize(items)
	case errors.Is(err, ErrSlotEmpty):
		// first visit, nothing persisted yet
	case errors.Is(err, ErrCorruptSlot):
		logger.Warn("discarding corrupt cart slot", "slot", slotKey)
	default:
		logger.Warn("cart hydration failed, starting empty", "slot", slotKey, "error", err)
	}
	return s
}

// AddItem merges a catalog product into the cart: an existing id gains one
// more unit, a new id is appended with quantity 1. Stock bounds are not
// enforced here; the display layer disables its increment control instead.
// The cart is marked open so the display layer presents it.
func (s *Store) AddItem(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := false
	for i := range s.items {
		if s.items[i].ID == p.ID {
			s.items[i].Quantity++
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, p.asItem())
	}
	s.isOpen = true

	return s.persist(ctx)
}

// RemoveItem drops the item with the given id. Removing an absent id is a
// no-op, not an error.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)
	return s.persist(ctx)
}

// UpdateQuantity sets the quantity of the matching item. A quantity of 0 or
// below removes the item entirely; an unknown id is a silent no-op.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(id)
		return s.persist(ctx)
	}

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Quantity = quantity
			break
		}
	}
	return s.persist(ctx)
}

// Clear empties the item list. The isOpen flag is left untouched.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.persist(ctx)
}

// Open marks the cart visible. The flag is transient and never persisted.
func (s *Store) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = true
}

// Close marks the cart hidden.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = false
}

// IsOpen reports the transient visibility flag.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// Items returns a copy of the ordered item list.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// TotalItems is the sum of quantities across all items.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, it := range s.items {
		total += it.Quantity
	}
	return total
}

// TotalPrice is the sum of price*quantity across all items.
func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0.0
	for _, it := range s.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func (s *Store) removeLocked(id string) {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// persist writes the item list through to storage. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	if err := s.storage.Save(ctx, s.slotKey, s.items); err != nil {
		s.logger.Warn("cart write-through failed", "slot", s.slotKey, "error", err)
		return fmt.Errorf("persist cart %s: %w", s.slotKey, err)
	}
	return nil
}

// sanitize drops persisted entries that violate the quantity invariant, e.g.
// slots written by hand or by an older build.
func sanitize(items []Item) []Item {
	out := items[:0]
	for _, it := range items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
