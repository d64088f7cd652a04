package protocol

import (
	"encoding/json"
	"testing"
)

func TestJSONMessageEncoderEncodesExpectedFields(t *testing.T) {
	qid := uint32(9)
	from := uint64(1200)
	encoded, err := JSONMessageEncoder(ClientMessage{
		Kind:      ClientMessageSubscribe,
		RequestID: 7,
		QueryID:   &qid,
		TableIDs:  []string{"0x7462"},
		FromBlock: &from,
	})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode encoded json: %v", err)
	}

	if got, ok := decoded["kind"].(string); !ok || got != string(ClientMessageSubscribe) {
		t.Fatalf("unexpected kind: %#v", decoded["kind"])
	}
	if got, ok := decoded["request_id"].(float64); !ok || got != 7 {
		t.Fatalf("unexpected request_id: %#v", decoded["request_id"])
	}
	if got, ok := decoded["query_id"].(float64); !ok || got != 9 {
		t.Fatalf("unexpected query_id: %#v", decoded["query_id"])
	}
	if got, ok := decoded["from_block"].(float64); !ok || got != 1200 {
		t.Fatalf("unexpected from_block: %#v", decoded["from_block"])
	}
	tables, ok := decoded["table_ids"].([]any)
	if !ok || len(tables) != 1 || tables[0] != "0x7462" {
		t.Fatalf("unexpected table_ids: %#v", decoded["table_ids"])
	}
}

func TestJSONMessageEncoderOmitsOptionalFields(t *testing.T) {
	encoded, err := JSONMessageEncoder(ClientMessage{
		Kind:      ClientMessageUnsubscribe,
		RequestID: 1,
	})
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode encoded json: %v", err)
	}

	for _, field := range []string{"query_id", "table_ids", "from_block"} {
		if _, exists := decoded[field]; exists {
			t.Fatalf("%s should be omitted when unset", field)
		}
	}
}
