package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/types"
)

// LogsPayload is the payload shape for the "logs" server message: the store
// events of one block, in log order. Byte fields are 0x-prefixed hex.
type LogsPayload struct {
	BlockNumber uint64    `json:"block_number"`
	Logs        []LogJSON `json:"logs"`
}

// LogJSON is one store event. Which fields are meaningful depends on Event.
type LogJSON struct {
	Event          string   `json:"event"`
	TableID        string   `json:"table_id"`
	KeyTuple       []string `json:"key_tuple"`
	StaticData     string   `json:"static_data,omitempty"`
	EncodedLengths string   `json:"encoded_lengths,omitempty"`
	DynamicData    string   `json:"dynamic_data,omitempty"`
	Start          uint64   `json:"start,omitempty"`
	DeleteCount    uint64   `json:"delete_count,omitempty"`
	Data           string   `json:"data,omitempty"`
}

func decodeLogs(raw json.RawMessage) (events.Batch, error) {
	var p LogsPayload
	if len(raw) == 0 {
		return events.Batch{}, fmt.Errorf("logs message has no payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return events.Batch{}, fmt.Errorf("decode logs payload: %w", err)
	}
	return p.Batch()
}

// Batch converts the payload into typed events. Any malformed log fails the
// whole batch.
func (p LogsPayload) Batch() (events.Batch, error) {
	batch := events.Batch{
		BlockNumber: p.BlockNumber,
		Events:      make([]events.Event, 0, len(p.Logs)),
	}
	for i, l := range p.Logs {
		e, err := l.event()
		if err != nil {
			return events.Batch{}, fmt.Errorf("block %d log %d: %w", p.BlockNumber, i, err)
		}
		batch.Events = append(batch.Events, e)
	}
	return batch, nil
}

func (l LogJSON) event() (events.Event, error) {
	table, err := types.ParseTableID(l.TableID)
	if err != nil {
		return nil, err
	}
	key := make(types.KeyTuple, len(l.KeyTuple))
	for i, entry := range l.KeyTuple {
		if key[i], err = types.DecodeHex(entry); err != nil {
			return nil, fmt.Errorf("key_tuple[%d]: %w", i, err)
		}
	}

	var hexErr error
	decode := func(field, raw string) []byte {
		b, err := types.DecodeHex(raw)
		if err != nil && hexErr == nil {
			hexErr = fmt.Errorf("%s: %w", field, err)
		}
		return b
	}

	var e events.Event
	switch events.Kind(l.Event) {
	case events.KindSetRecord:
		e = events.SetRecord{
			TableID:        table,
			KeyTuple:       key,
			StaticData:     decode("static_data", l.StaticData),
			EncodedLengths: decode("encoded_lengths", l.EncodedLengths),
			DynamicData:    decode("dynamic_data", l.DynamicData),
		}
	case events.KindSpliceStaticData:
		e = events.SpliceStaticData{
			TableID:  table,
			KeyTuple: key,
			Start:    l.Start,
			Data:     decode("data", l.Data),
		}
	case events.KindSpliceDynamicData:
		e = events.SpliceDynamicData{
			TableID:        table,
			KeyTuple:       key,
			Start:          l.Start,
			DeleteCount:    l.DeleteCount,
			Data:           decode("data", l.Data),
			EncodedLengths: decode("encoded_lengths", l.EncodedLengths),
		}
	case events.KindDeleteRecord:
		e = events.DeleteRecord{TableID: table, KeyTuple: key}
	default:
		return nil, fmt.Errorf("unknown store event %q", l.Event)
	}
	if hexErr != nil {
		return nil, hexErr
	}
	return e, nil
}

// NewLogsPayload encodes batch in the wire shape of a logs message payload.
func NewLogsPayload(batch events.Batch) LogsPayload {
	out := LogsPayload{
		BlockNumber: batch.BlockNumber,
		Logs:        make([]LogJSON, 0, len(batch.Events)),
	}
	for _, e := range batch.Events {
		l := LogJSON{
			Event:   string(e.Kind()),
			TableID: e.Table().String(),
		}
		for _, entry := range e.Key() {
			l.KeyTuple = append(l.KeyTuple, types.EncodeHex(entry))
		}
		switch e := e.(type) {
		case events.SetRecord:
			l.StaticData = types.EncodeHex(e.StaticData)
			l.EncodedLengths = types.EncodeHex(e.EncodedLengths)
			l.DynamicData = types.EncodeHex(e.DynamicData)
		case events.SpliceStaticData:
			l.Start = e.Start
			l.Data = types.EncodeHex(e.Data)
		case events.SpliceDynamicData:
			l.Start = e.Start
			l.DeleteCount = e.DeleteCount
			l.Data = types.EncodeHex(e.Data)
			l.EncodedLengths = types.EncodeHex(e.EncodedLengths)
		}
		out.Logs = append(out.Logs, l)
	}
	return out
}
