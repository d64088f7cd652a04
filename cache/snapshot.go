package cache

import (
	"sort"

	"github.com/vmaark/storesync/record"
	"github.com/vmaark/storesync/types"
)

// Snapshot is one published state of a Store. Its maps are never modified
// after publication, so it can be read from any goroutine. Records handed out
// are shared between readers and must be treated as read-only.
type Snapshot struct {
	raw     map[types.RowID]*types.RawRow
	records map[types.RowID]*record.Record
	block   uint64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		raw:     map[types.RowID]*types.RawRow{},
		records: map[types.RowID]*record.Record{},
	}
}

// BlockNumber is the block of the last batch that changed the store.
func (s *Snapshot) BlockNumber() uint64 {
	return s.block
}

// Len is the number of decoded records.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// RawLen is the number of raw rows, including rows that could not be decoded.
func (s *Snapshot) RawLen() int {
	return len(s.raw)
}

func (s *Snapshot) Record(id types.RowID) (*record.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Raw returns a copy of the raw row for id.
func (s *Snapshot) Raw(id types.RowID) (types.RawRow, bool) {
	row, ok := s.raw[id]
	if !ok {
		return types.RawRow{}, false
	}
	return row.Clone(), true
}

// Records returns a copy of the id to record mapping.
func (s *Snapshot) Records() map[types.RowID]*record.Record {
	out := make(map[types.RowID]*record.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// RawRows returns a copy of every raw row keyed by id.
func (s *Snapshot) RawRows() map[types.RowID]types.RawRow {
	out := make(map[types.RowID]types.RawRow, len(s.raw))
	for id, row := range s.raw {
		out[id] = row.Clone()
	}
	return out
}

// TableRecords returns the records of one table ordered by id.
func (s *Snapshot) TableRecords(table types.TableID) []*record.Record {
	var out []*record.Record
	for _, rec := range s.records {
		if rec.Table.ID == table {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
