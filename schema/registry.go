package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vmaark/storesync/types"
)

// Registry resolves table ids to schemas.
type Registry interface {
	Lookup(id types.TableID) (*Table, bool)
}

// MapRegistry is an in-memory Registry safe for concurrent use.
type MapRegistry struct {
	mu     sync.RWMutex
	tables map[types.TableID]*Table
}

func NewRegistry(tables ...*Table) (*MapRegistry, error) {
	r := &MapRegistry{tables: make(map[types.TableID]*Table, len(tables))}
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a validated table. Registering a second schema under the same
// id is an error; schemas do not change during a session.
func (r *MapRegistry) Register(t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables == nil {
		r.tables = map[types.TableID]*Table{}
	}
	if _, ok := r.tables[t.ID]; ok {
		return fmt.Errorf("table %s (%s) is already registered", t.Label(), t.ID)
	}
	r.tables[t.ID] = t
	return nil
}

func (r *MapRegistry) Lookup(id types.TableID) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// Tables returns the registered tables sorted by label.
func (r *MapRegistry) Tables() []*Table {
	r.mu.RLock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}

// IDs returns the ids of all registered tables.
func (r *MapRegistry) IDs() []types.TableID {
	tables := r.Tables()
	out := make([]types.TableID, len(tables))
	for i, t := range tables {
		out[i] = t.ID
	}
	return out
}
