package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmaark/storesync/events"
)

type MessageKind string

const (
	MessageKindInitialConnection  MessageKind = "initial_connection"
	MessageKindSubscribeApplied   MessageKind = "subscribe_applied"
	MessageKindUnsubscribeApplied MessageKind = "unsubscribe_applied"
	MessageKindSubscriptionError  MessageKind = "subscription_error"
	MessageKindLogs               MessageKind = "logs"
	MessageKindUnknown            MessageKind = "unknown"
)

// Terminal reports whether a message of this kind ends its subscription.
func (k MessageKind) Terminal() bool {
	return k == MessageKindUnsubscribeApplied || k == MessageKindSubscriptionError
}

// ServerMessage is one decoded server frame. Initial is set for
// initial_connection, Batch for logs and Error for subscription_error.
type ServerMessage struct {
	Kind    MessageKind
	QueryID *uint32
	Initial *InitialConnectionPayload
	Batch   *events.Batch
	Error   string
}

type MessageDecoder func(body []byte) (ServerMessage, error)

type serverEnvelope struct {
	Kind    MessageKind     `json:"kind"`
	QueryID *uint32         `json:"query_id"`
	Payload json.RawMessage `json:"payload"`
}

type subscriptionErrorPayload struct {
	Message string `json:"message"`
}

// JSONMessageDecoder decodes {"kind":..., "query_id":..., "payload":...}.
// Kinds this client does not know decode as MessageKindUnknown so newer
// servers do not break the stream.
func JSONMessageDecoder(body []byte) (ServerMessage, error) {
	var env serverEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ServerMessage{}, fmt.Errorf("decode server message: %w", err)
	}
	if env.Kind == "" {
		return ServerMessage{}, errors.New("server message has no kind")
	}

	switch env.Kind {
	case MessageKindSubscribeApplied, MessageKindUnsubscribeApplied, MessageKindSubscriptionError:
		if env.QueryID == nil {
			return ServerMessage{}, fmt.Errorf("%s message has no query_id", env.Kind)
		}
	}

	msg := ServerMessage{Kind: env.Kind, QueryID: env.QueryID}
	switch env.Kind {
	case MessageKindInitialConnection:
		initial, err := decodeInitialConnection(env.Payload)
		if err != nil {
			return ServerMessage{}, err
		}
		msg.Initial = &initial
	case MessageKindLogs:
		batch, err := decodeLogs(env.Payload)
		if err != nil {
			return ServerMessage{}, err
		}
		msg.Batch = &batch
	case MessageKindSubscriptionError:
		var p subscriptionErrorPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return ServerMessage{}, fmt.Errorf("decode subscription_error payload: %w", err)
			}
		}
		msg.Error = p.Message
		if msg.Error == "" {
			msg.Error = "subscription rejected"
		}
	case MessageKindSubscribeApplied, MessageKindUnsubscribeApplied:
	default:
		msg.Kind = MessageKindUnknown
	}
	return msg, nil
}
