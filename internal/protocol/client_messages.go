package protocol

import "encoding/json"

type ClientMessageKind string

const (
	ClientMessageSubscribe   ClientMessageKind = "subscribe"
	ClientMessageUnsubscribe ClientMessageKind = "unsubscribe"
)

// ClientMessage is sent to the server. TableIDs are 0x-prefixed hex table ids;
// an empty list subscribes to every table.
type ClientMessage struct {
	Kind      ClientMessageKind `json:"kind"`
	RequestID uint32            `json:"request_id"`
	QueryID   *uint32           `json:"query_id,omitempty"`
	TableIDs  []string          `json:"table_ids,omitempty"`
	FromBlock *uint64           `json:"from_block,omitempty"`
}

type MessageEncoder func(ClientMessage) ([]byte, error)

func JSONMessageEncoder(message ClientMessage) ([]byte, error) {
	return json.Marshal(message)
}
