package connection

import (
	"errors"

	"github.com/gorilla/websocket"

	"github.com/vmaark/storesync/internal/protocol"
	"github.com/vmaark/storesync/types"
)

type SubscriptionStatus string

const (
	SubscriptionApplied SubscriptionStatus = "applied"
	SubscriptionEnded   SubscriptionStatus = "ended"
	SubscriptionFailed  SubscriptionStatus = "failed"
)

// SubscriptionUpdate reports a state change of one subscription. Err is set
// exactly when Status is SubscriptionFailed. Ended and failed are final.
type SubscriptionUpdate struct {
	QueryID uint32
	Status  SubscriptionStatus
	Err     error
}

// SubscriptionCallback runs on the read loop.
type SubscriptionCallback func(SubscriptionUpdate)

// Subscribe asks the server to stream logs of tables starting at fromBlock.
// No tables means every table of the store. The logs themselves go to
// OnBatch; callback only sees the subscription's state.
func (c *Connection) Subscribe(tables []types.TableID, fromBlock uint64, callback SubscriptionCallback) (uint32, error) {
	ids := make([]string, len(tables))
	for i, table := range tables {
		if table == (types.TableID{}) {
			return 0, errorf(ErrorInvalidArgument, "subscribe", "table %d has a zero id", i)
		}
		ids[i] = table.String()
	}

	queryID := c.queryIDs.Add(1) - 1
	if callback != nil {
		c.subsMu.Lock()
		c.subs[queryID] = callback
		c.subsMu.Unlock()
	}

	err := c.send("subscribe", protocol.ClientMessage{
		Kind:      protocol.ClientMessageSubscribe,
		RequestID: c.requestIDs.Add(1) - 1,
		QueryID:   &queryID,
		TableIDs:  ids,
		FromBlock: &fromBlock,
	})
	if err != nil {
		c.takeSubscription(queryID)
		return queryID, err
	}
	return queryID, nil
}

// Unsubscribe asks the server to end a subscription. The callback sees
// SubscriptionEnded once the server confirms.
func (c *Connection) Unsubscribe(queryID uint32) error {
	return c.send("unsubscribe", protocol.ClientMessage{
		Kind:      protocol.ClientMessageUnsubscribe,
		RequestID: c.requestIDs.Add(1) - 1,
		QueryID:   &queryID,
	})
}

func (c *Connection) send(op string, message protocol.ClientMessage) error {
	payload, err := c.encoder(message)
	if err != nil {
		return wrapError(ErrorEncodeFailed, op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return &Error{Code: ErrorConnectionClosed, Op: op, Err: errors.New("connection is closed")}
	}
	return wrapError(ErrorSendFailed, op, c.ws.WriteMessage(websocket.BinaryMessage, payload))
}

// settle reports a lifecycle message to its subscription and forgets the
// subscription when the message ends it.
func (c *Connection) settle(msg protocol.ServerMessage) {
	id := *msg.QueryID
	var callback SubscriptionCallback
	if msg.Kind.Terminal() {
		callback = c.takeSubscription(id)
	} else {
		c.subsMu.Lock()
		callback = c.subs[id]
		c.subsMu.Unlock()
	}
	if callback == nil {
		return
	}

	update := SubscriptionUpdate{QueryID: id}
	switch msg.Kind {
	case protocol.MessageKindSubscribeApplied:
		update.Status = SubscriptionApplied
	case protocol.MessageKindUnsubscribeApplied:
		update.Status = SubscriptionEnded
	case protocol.MessageKindSubscriptionError:
		update.Status = SubscriptionFailed
		update.Err = &Error{Code: ErrorSubscription, Op: "subscribe", Err: errors.New(msg.Error)}
	}
	callback(update)
}

func (c *Connection) takeSubscription(id uint32) SubscriptionCallback {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	callback := c.subs[id]
	delete(c.subs, id)
	return callback
}

// failSubscriptions ends every open subscription with err.
func (c *Connection) failSubscriptions(err error) {
	c.subsMu.Lock()
	open := c.subs
	c.subs = map[uint32]SubscriptionCallback{}
	c.subsMu.Unlock()

	cause := wrapError(ErrorConnectionClosed, "read", err)
	for id, callback := range open {
		callback(SubscriptionUpdate{QueryID: id, Status: SubscriptionFailed, Err: cause})
	}
}
