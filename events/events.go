// Package events defines the store mutation events a log delivers, one Go type
// per event, and the ordered batch they arrive in.
package events

import "github.com/vmaark/storesync/types"

type Kind string

const (
	KindSetRecord         Kind = "Store_SetRecord"
	KindSpliceStaticData  Kind = "Store_SpliceStaticData"
	KindSpliceDynamicData Kind = "Store_SpliceDynamicData"
	KindDeleteRecord      Kind = "Store_DeleteRecord"
)

// Event is implemented by SetRecord, SpliceStaticData, SpliceDynamicData and
// DeleteRecord only.
type Event interface {
	Kind() Kind
	Table() types.TableID
	Key() types.KeyTuple
	isEvent()
}

// SetRecord replaces a row wholesale.
type SetRecord struct {
	TableID        types.TableID
	KeyTuple       types.KeyTuple
	StaticData     []byte
	EncodedLengths []byte
	DynamicData    []byte
}

// SpliceStaticData overwrites len(Data) bytes of static data at Start.
type SpliceStaticData struct {
	TableID  types.TableID
	KeyTuple types.KeyTuple
	Start    uint64
	Data     []byte
}

// SpliceDynamicData replaces DeleteCount bytes of dynamic data at Start with
// Data. EncodedLengths is the row's new length table.
type SpliceDynamicData struct {
	TableID        types.TableID
	KeyTuple       types.KeyTuple
	Start          uint64
	DeleteCount    uint64
	Data           []byte
	EncodedLengths []byte
}

// DeleteRecord removes a row.
type DeleteRecord struct {
	TableID  types.TableID
	KeyTuple types.KeyTuple
}

func (SetRecord) Kind() Kind         { return KindSetRecord }
func (SpliceStaticData) Kind() Kind  { return KindSpliceStaticData }
func (SpliceDynamicData) Kind() Kind { return KindSpliceDynamicData }
func (DeleteRecord) Kind() Kind      { return KindDeleteRecord }

func (e SetRecord) Table() types.TableID         { return e.TableID }
func (e SpliceStaticData) Table() types.TableID  { return e.TableID }
func (e SpliceDynamicData) Table() types.TableID { return e.TableID }
func (e DeleteRecord) Table() types.TableID      { return e.TableID }

func (e SetRecord) Key() types.KeyTuple         { return e.KeyTuple }
func (e SpliceStaticData) Key() types.KeyTuple  { return e.KeyTuple }
func (e SpliceDynamicData) Key() types.KeyTuple { return e.KeyTuple }
func (e DeleteRecord) Key() types.KeyTuple      { return e.KeyTuple }

func (SetRecord) isEvent()         {}
func (SpliceStaticData) isEvent()  {}
func (SpliceDynamicData) isEvent() {}
func (DeleteRecord) isEvent()      {}

// RowID derives the id of the row an event targets.
func RowID(e Event) types.RowID {
	return types.NewRowID(e.Table(), e.Key())
}

// Batch is one ordered unit of events, tagged with the block it came from.
type Batch struct {
	BlockNumber uint64
	Events      []Event
}
