package protocol

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/types"
)

func TestJSONMessageDecoderLifecycleKinds(t *testing.T) {
	cases := []struct {
		body string
		kind MessageKind
		err  string
	}{
		{body: `{"kind":"subscribe_applied","query_id":2}`, kind: MessageKindSubscribeApplied},
		{body: `{"kind":"unsubscribe_applied","query_id":2,"payload":{}}`, kind: MessageKindUnsubscribeApplied},
		{body: `{"kind":"subscription_error","query_id":2,"payload":{"message":"unknown table"}}`, kind: MessageKindSubscriptionError, err: "unknown table"},
		{body: `{"kind":"subscription_error","query_id":2}`, kind: MessageKindSubscriptionError, err: "subscription rejected"},
	}
	for _, tc := range cases {
		msg, err := JSONMessageDecoder([]byte(tc.body))
		if err != nil {
			t.Fatalf("decode %s: %v", tc.body, err)
		}
		if msg.Kind != tc.kind || msg.QueryID == nil || *msg.QueryID != 2 {
			t.Fatalf("unexpected message for %s: %+v", tc.body, msg)
		}
		if msg.Error != tc.err {
			t.Fatalf("unexpected error text for %s: %q", tc.body, msg.Error)
		}
		if msg.Batch != nil || msg.Initial != nil {
			t.Fatalf("lifecycle message should carry no payload: %+v", msg)
		}
	}
}

func TestJSONMessageDecoderInitialConnection(t *testing.T) {
	msg, err := JSONMessageDecoder([]byte(`{"kind":"initial_connection","payload":{"connection_id":"cid","chain_id":31337,"head_block":12}}`))
	if err != nil {
		t.Fatalf("decode initial connection: %v", err)
	}
	want := InitialConnectionPayload{ConnectionID: "cid", ChainID: 31337, HeadBlock: 12}
	if msg.Initial == nil || *msg.Initial != want {
		t.Fatalf("unexpected initial payload: %+v", msg.Initial)
	}

	for _, body := range []string{
		`{"kind":"initial_connection"}`,
		`{"kind":"initial_connection","payload":{"chain_id":1}}`,
		`{"kind":"initial_connection","payload":{"connection_id":"cid"}}`,
	} {
		if _, err := JSONMessageDecoder([]byte(body)); err == nil {
			t.Fatalf("expected %s to fail", body)
		}
	}
}

func TestJSONMessageDecoderUnknownKind(t *testing.T) {
	msg, err := JSONMessageDecoder([]byte(`{"kind":"chain_reorg","payload":{}}`))
	if err != nil {
		t.Fatalf("decode unknown kind: %v", err)
	}
	if msg.Kind != MessageKindUnknown {
		t.Fatalf("unexpected kind: %s", msg.Kind)
	}
}

func TestJSONMessageDecoderRejectsMalformedEnvelopes(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"kind":"subscribe_applied"}`,
		`{"kind":"logs"}`,
	} {
		if _, err := JSONMessageDecoder([]byte(body)); err == nil {
			t.Fatalf("expected %q to fail", body)
		}
	}
}

func TestMessageKindTerminal(t *testing.T) {
	cases := map[MessageKind]bool{
		MessageKindSubscribeApplied:   false,
		MessageKindLogs:               false,
		MessageKindUnsubscribeApplied: true,
		MessageKindSubscriptionError:  true,
		MessageKindInitialConnection:  false,
	}
	for kind, want := range cases {
		if got := kind.Terminal(); got != want {
			t.Fatalf("%s: got %v want %v", kind, got, want)
		}
	}
}

func TestJSONMessageDecoderLogs(t *testing.T) {
	table := types.NewTableID(types.KindTable, "app", "Counter")
	payload := fmt.Sprintf(`{"kind":"logs","query_id":1,"payload":{"block_number":42,"logs":[
		{"event":"Store_SetRecord","table_id":%[1]q,"key_tuple":["0x01"],"static_data":"0x0000002a01","encoded_lengths":"0x","dynamic_data":"0x"},
		{"event":"Store_SpliceStaticData","table_id":%[1]q,"key_tuple":["0x01"],"start":4,"data":"0x00"},
		{"event":"Store_SpliceDynamicData","table_id":%[1]q,"key_tuple":["0x01"],"start":1,"delete_count":2,"data":"0xbeef","encoded_lengths":"0x00"},
		{"event":"Store_DeleteRecord","table_id":%[1]q,"key_tuple":["0x01"]}
	]}}`, table.String())

	msg, err := JSONMessageDecoder([]byte(payload))
	if err != nil {
		t.Fatalf("decode logs message: %v", err)
	}
	if msg.Kind != MessageKindLogs || msg.Batch == nil {
		t.Fatalf("expected logs message with batch, got %+v", msg)
	}

	batch := msg.Batch
	if batch.BlockNumber != 42 || len(batch.Events) != 4 {
		t.Fatalf("unexpected batch: block=%d events=%d", batch.BlockNumber, len(batch.Events))
	}

	set, ok := batch.Events[0].(events.SetRecord)
	if !ok {
		t.Fatalf("event 0 is %T", batch.Events[0])
	}
	if set.TableID != table || !bytes.Equal(set.KeyTuple[0], []byte{0x01}) {
		t.Fatalf("unexpected identity: %+v", set)
	}
	if !bytes.Equal(set.StaticData, []byte{0, 0, 0, 0x2a, 0x01}) || len(set.EncodedLengths) != 0 || len(set.DynamicData) != 0 {
		t.Fatalf("unexpected set record data: %+v", set)
	}

	static, ok := batch.Events[1].(events.SpliceStaticData)
	if !ok || static.Start != 4 || !bytes.Equal(static.Data, []byte{0}) {
		t.Fatalf("unexpected static splice: %#v", batch.Events[1])
	}

	dynamic, ok := batch.Events[2].(events.SpliceDynamicData)
	if !ok || dynamic.Start != 1 || dynamic.DeleteCount != 2 || !bytes.Equal(dynamic.Data, []byte{0xbe, 0xef}) {
		t.Fatalf("unexpected dynamic splice: %#v", batch.Events[2])
	}
	if !bytes.Equal(dynamic.EncodedLengths, []byte{0}) {
		t.Fatalf("unexpected dynamic encoded lengths: %x", dynamic.EncodedLengths)
	}

	if _, ok := batch.Events[3].(events.DeleteRecord); !ok {
		t.Fatalf("event 3 is %T", batch.Events[3])
	}
}

func TestJSONMessageDecoderRejectsMalformedLogs(t *testing.T) {
	table := types.NewTableID(types.KindTable, "app", "Counter").String()
	cases := map[string]string{
		"unknown event":  fmt.Sprintf(`{"event":"Store_Ephemeral","table_id":%q,"key_tuple":[]}`, table),
		"short table id": `{"event":"Store_DeleteRecord","table_id":"0x7462","key_tuple":[]}`,
		"bad key hex":    fmt.Sprintf(`{"event":"Store_DeleteRecord","table_id":%q,"key_tuple":["0xzz"]}`, table),
		"bad data hex":   fmt.Sprintf(`{"event":"Store_SpliceStaticData","table_id":%q,"key_tuple":[],"data":"0x1"}`, table),
	}
	for name, log := range cases {
		t.Run(name, func(t *testing.T) {
			payload := fmt.Sprintf(`{"kind":"logs","payload":{"block_number":1,"logs":[%s]}}`, log)
			if _, err := JSONMessageDecoder([]byte(payload)); err == nil {
				t.Fatalf("expected malformed log to fail")
			}
		})
	}
}
