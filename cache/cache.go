package cache

import (
	"sync"
	"sync/atomic"

	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/record"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/subscription"
	"github.com/vmaark/storesync/types"
)

// Store holds the raw rows of a synced store and their decoded records, and
// applies event batches atomically. Batches are applied one at a time; readers
// never block and always see a whole batch or none of it.
type Store struct {
	registry schema.Registry
	diag     diag.Sink
	hooks    *subscription.Hooks

	writeMu sync.Mutex
	state   atomic.Pointer[Snapshot]
}

type Option func(*Store)

// WithDiagnostics sets the sink for per-row failures. Defaults to diag.Discard.
func WithDiagnostics(sink diag.Sink) Option {
	return func(s *Store) {
		if sink != nil {
			s.diag = sink
		}
	}
}

// WithHooks sets the registry notified with each non-empty delta.
func WithHooks(hooks *subscription.Hooks) Option {
	return func(s *Store) {
		s.hooks = hooks
	}
}

func NewStore(registry schema.Registry, opts ...Option) *Store {
	store := &Store{
		registry: registry,
		diag:     diag.Discard,
	}
	for _, opt := range opts {
		opt(store)
	}
	store.state.Store(emptySnapshot())
	return store
}

// ApplyBatch applies batch in event order and publishes the result as one
// snapshot. An empty delta publishes nothing. Hooks run after publication,
// on the calling goroutine, and must not call ApplyBatch.
func (s *Store) ApplyBatch(batch events.Batch) types.Delta {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.state.Load()
	raw := cloneRows(current.raw)

	a := applier{registry: s.registry, diag: s.diag, block: batch.BlockNumber, rows: raw}
	for _, e := range batch.Events {
		a.apply(e)
	}
	delta := a.delta.Build(batch.BlockNumber)
	if delta.Empty() {
		return delta
	}

	p := projector{registry: s.registry, diag: s.diag, block: batch.BlockNumber}
	records := p.project(current.records, raw, delta)

	s.state.Store(&Snapshot{raw: raw, records: records, block: batch.BlockNumber})
	s.hooks.Emit(delta)
	return delta
}

// Reset drops all rows and records.
func (s *Store) Reset() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.state.Store(emptySnapshot())
}

// Snapshot returns the latest published state. It never changes afterwards.
func (s *Store) Snapshot() *Snapshot {
	return s.state.Load()
}

func (s *Store) Get(id types.RowID) (*record.Record, bool) {
	return s.Snapshot().Record(id)
}

func (s *Store) Raw(id types.RowID) (types.RawRow, bool) {
	return s.Snapshot().Raw(id)
}

func cloneRows(src map[types.RowID]*types.RawRow) map[types.RowID]*types.RawRow {
	next := make(map[types.RowID]*types.RawRow, len(src))
	for id, row := range src {
		next[id] = row
	}
	return next
}
