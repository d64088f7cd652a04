package cache

import (
	"fmt"

	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/splice"
	"github.com/vmaark/storesync/types"
)

// applier applies the events of one batch to a private copy of the raw rows.
// Rows in the map are replaced, never modified, so the previous snapshot that
// shares them stays intact.
type applier struct {
	registry schema.Registry
	diag     diag.Sink
	block    uint64
	rows     map[types.RowID]*types.RawRow
	delta    types.DeltaBuilder
}

func (a *applier) apply(e events.Event) {
	table, ok := a.registry.Lookup(e.Table())
	if !ok {
		a.report(diag.CodeUnknownTable, e, "", fmt.Errorf("table %s (%s) is not registered", e.Table().Label(), e.Table()))
		return
	}
	id := events.RowID(e)

	switch e := e.(type) {
	case events.SetRecord:
		a.setRecord(id, e)
	case *events.SetRecord:
		a.setRecord(id, *e)
	case events.SpliceStaticData:
		a.spliceStatic(id, table, e)
	case *events.SpliceStaticData:
		a.spliceStatic(id, table, *e)
	case events.SpliceDynamicData:
		a.spliceDynamic(id, e)
	case *events.SpliceDynamicData:
		a.spliceDynamic(id, *e)
	case events.DeleteRecord:
		a.deleteRecord(id)
	case *events.DeleteRecord:
		a.deleteRecord(id)
	}
}

func (a *applier) setRecord(id types.RowID, e events.SetRecord) {
	a.rows[id] = &types.RawRow{
		ID:             id,
		TableID:        e.TableID,
		KeyTuple:       e.KeyTuple.Clone(),
		StaticData:     cloneBytes(e.StaticData),
		EncodedLengths: cloneBytes(e.EncodedLengths),
		DynamicData:    cloneBytes(e.DynamicData),
	}
	a.delta.MarkUpdated(id)
}

func (a *applier) spliceStatic(id types.RowID, table *schema.Table, e events.SpliceStaticData) {
	prev := a.current(id, e.TableID, e.KeyTuple)
	limit := table.StaticByteLength()
	static := prev.StaticData
	if e.Start > uint64(len(static)) && e.Start <= uint64(limit) {
		// Writing a later field of a row whose earlier fields were never set.
		padded := make([]byte, e.Start)
		copy(padded, static)
		static = padded
	}
	static, err := splice.Overwrite(static, e.Start, e.Data)
	if err != nil {
		a.report(diag.CodeSpliceRange, e, id, err)
		return
	}
	if len(static) > limit {
		a.report(diag.CodeStaticOverflow, e, id,
			fmt.Errorf("splice at %d of %d bytes grows static data to %d bytes, schema allows %d", e.Start, len(e.Data), len(static), limit))
		return
	}

	next := prev
	next.StaticData = static
	a.rows[id] = &next
	a.delta.MarkUpdated(id)
}

func (a *applier) spliceDynamic(id types.RowID, e events.SpliceDynamicData) {
	prev := a.current(id, e.TableID, e.KeyTuple)
	dynamic, err := splice.Bytes(prev.DynamicData, e.Start, e.DeleteCount, e.Data)
	if err != nil {
		a.report(diag.CodeSpliceRange, e, id, err)
		return
	}

	next := prev
	next.DynamicData = dynamic
	next.EncodedLengths = cloneBytes(e.EncodedLengths)
	a.rows[id] = &next
	a.delta.MarkUpdated(id)
}

func (a *applier) deleteRecord(id types.RowID) {
	delete(a.rows, id)
	a.delta.MarkDeleted(id)
}

// current returns the row to splice into: the existing row, or the empty
// placeholder when the id has not been seen.
func (a *applier) current(id types.RowID, table types.TableID, key types.KeyTuple) types.RawRow {
	if row, ok := a.rows[id]; ok {
		return *row
	}
	return types.PlaceholderRow(table, key)
}

func (a *applier) report(code diag.Code, e events.Event, id types.RowID, err error) {
	a.diag.Report(&diag.Error{
		Code:  code,
		Op:    string(e.Kind()),
		Table: e.Table(),
		ID:    id,
		Block: a.block,
		Err:   err,
	})
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	cloned := make([]byte, len(value))
	copy(cloned, value)
	return cloned
}
