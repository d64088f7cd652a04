package subscription

import (
	"sync"

	"github.com/vmaark/storesync/types"
)

// Callback receives the delta of one applied batch. It is only called with
// non-empty deltas.
type Callback func(types.Delta)

// Hooks is a registry of delta callbacks, called in registration order.
type Hooks struct {
	mu     sync.RWMutex
	nextID uint64
	ids    []uint64
	byID   map[uint64]Callback
}

func NewHooks() *Hooks {
	return &Hooks{byID: map[uint64]Callback{}}
}

// Add registers cb and returns an id for Remove.
func (h *Hooks) Add(cb Callback) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byID == nil {
		h.byID = map[uint64]Callback{}
	}
	id := h.nextID
	h.nextID++
	h.ids = append(h.ids, id)
	h.byID[id] = cb
	return id
}

func (h *Hooks) Remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[id]; !ok {
		return
	}
	delete(h.byID, id)
	for i, existing := range h.ids {
		if existing == id {
			h.ids = append(h.ids[:i:i], h.ids[i+1:]...)
			break
		}
	}
}

func (h *Hooks) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

// Emit calls every registered callback with delta. Empty deltas are ignored.
func (h *Hooks) Emit(delta types.Delta) {
	if h == nil || delta.Empty() {
		return
	}
	h.mu.RLock()
	callbacks := make([]Callback, 0, len(h.ids))
	for _, id := range h.ids {
		callbacks = append(callbacks, h.byID[id])
	}
	h.mu.RUnlock()

	for _, cb := range callbacks {
		cb(delta)
	}
}

// ForTables wraps cb so it only sees ids of the given tables, and is skipped
// when none remain.
func ForTables(cb Callback, tables ...types.TableID) Callback {
	want := make(map[types.TableID]struct{}, len(tables))
	for _, t := range tables {
		want[t] = struct{}{}
	}
	keep := func(ids []types.RowID) []types.RowID {
		var out []types.RowID
		for _, id := range ids {
			table, err := id.TableID()
			if err != nil {
				continue
			}
			if _, ok := want[table]; ok {
				out = append(out, id)
			}
		}
		return out
	}
	return func(delta types.Delta) {
		filtered := types.Delta{
			BlockNumber: delta.BlockNumber,
			Updated:     keep(delta.Updated),
			Deleted:     keep(delta.Deleted),
		}
		if filtered.Empty() {
			return
		}
		cb(filtered)
	}
}
