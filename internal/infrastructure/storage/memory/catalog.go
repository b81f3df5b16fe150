package memory

import (
	"context"
	"slices"

	"stockflow/internal/core/id"
	"stockflow/internal/domain/audit"
	"stockflow/internal/domain/document"
)

// Catalog implements document.MasterData over registered codes.
type Catalog struct {
	store *Store
}

// AddWarehouses registers warehouse codes.
func (c *Catalog) AddWarehouses(ctx context.Context, codes ...string) error {
	return c.store.write(ctx, func(st *state) error {
		for _, code := range codes {
			st.warehouses[code] = true
		}
		return nil
	})
}

// AddItems registers item keys of one kind.
func (c *Catalog) AddItems(ctx context.Context, kind document.ItemKind, keys ...string) error {
	return c.store.write(ctx, func(st *state) error {
		for _, key := range keys {
			st.items[key] = kind
		}
		return nil
	})
}

func (c *Catalog) WarehouseExists(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := c.store.read(ctx, func(st *state) error {
		ok = st.warehouses[code]
		return nil
	})
	return ok, err
}

func (c *Catalog) ItemKind(ctx context.Context, itemKey string) (document.ItemKind, bool, error) {
	var (
		kind document.ItemKind
		ok   bool
	)
	err := c.store.read(ctx, func(st *state) error {
		kind, ok = st.items[itemKey]
		return nil
	})
	return kind, ok, err
}

// Sequences implements numerator.Sequencer. Values roll back with the transaction.
type Sequences struct {
	store *Store
}

func (s *Sequences) NextValue(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.store.write(ctx, func(st *state) error {
		st.sequences[key]++
		n = st.sequences[key]
		return nil
	})
	return n, err
}

// History implements audit.Recorder.
type History struct {
	store *Store
}

func (h *History) Record(ctx context.Context, entry audit.Entry) error {
	return h.store.write(ctx, func(st *state) error {
		st.history = append(st.history, entry)
		return nil
	})
}

func (h *History) List(ctx context.Context, documentID id.ID) ([]audit.Entry, error) {
	var out []audit.Entry
	err := h.store.read(ctx, func(st *state) error {
		for _, e := range st.history {
			if e.DocumentID == documentID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// Outbox implements audit.Publisher by keeping committed events in order.
type Outbox struct {
	store *Store
}

func (o *Outbox) Publish(ctx context.Context, event audit.Event) error {
	return o.store.write(ctx, func(st *state) error {
		st.events = append(st.events, event)
		return nil
	})
}

// Events returns committed events, optionally filtered by type.
func (o *Outbox) Events(ctx context.Context, eventTypes ...string) ([]audit.Event, error) {
	var out []audit.Event
	err := o.store.read(ctx, func(st *state) error {
		for _, e := range st.events {
			if len(eventTypes) == 0 || slices.Contains(eventTypes, e.EventType) {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
