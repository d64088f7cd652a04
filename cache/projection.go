package cache

import (
	"errors"

	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/record"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/types"
)

// projector rebuilds the decoded records after a batch: previous records
// minus deleted ids, with every updated id decoded again from its raw row.
// An id that cannot be decoded is dropped from the records, not retried.
type projector struct {
	registry schema.Registry
	diag     diag.Sink
	block    uint64
}

func (p projector) project(
	prev map[types.RowID]*record.Record,
	raw map[types.RowID]*types.RawRow,
	delta types.Delta,
) map[types.RowID]*record.Record {
	next := make(map[types.RowID]*record.Record, len(prev)+len(delta.Updated))
	for id, rec := range prev {
		next[id] = rec
	}
	for _, id := range delta.Deleted {
		delete(next, id)
	}

	for _, id := range delta.Updated {
		delete(next, id)

		row, ok := raw[id]
		if !ok {
			p.report(diag.CodeMissingRawRow, types.TableID{}, id, errors.New("updated id has no raw row"))
			continue
		}
		table, ok := p.registry.Lookup(row.TableID)
		if !ok {
			p.report(diag.CodeUnknownTable, row.TableID, id, errors.New("no table for raw row"))
			continue
		}
		rec, err := record.Decode(*row, table)
		if err != nil {
			p.report(diag.CodeDecodeFailed, row.TableID, id, err)
			continue
		}
		next[id] = rec
	}
	return next
}

func (p projector) report(code diag.Code, table types.TableID, id types.RowID, err error) {
	p.diag.Report(&diag.Error{
		Code:  code,
		Op:    "project",
		Table: table,
		ID:    id,
		Block: p.block,
		Err:   err,
	})
}
