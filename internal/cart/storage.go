package cart

import (
	"context"
	"errors"
)

// Storage persists the serialized item list under a named slot. The slot is
// the only persisted artifact of a cart; the isOpen flag never reaches it.
type Storage interface {
	Load(ctx context.Context, key string) ([]Item, error)
	Save(ctx context.Context, key string, items []Item) error
}

var (
	// ErrSlotEmpty is returned by Load when nothing has been persisted under
	// the key yet.
	ErrSlotEmpty = errors.New("cart storage: slot empty")

	// ErrCorruptSlot is returned by Load when the persisted payload cannot be
	// decoded. The store treats it the same as an empty slot.
	ErrCorruptSlot = errors.New("cart storage: corrupt slot")
)
