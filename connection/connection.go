package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/internal/protocol"
)

// Connection is one store log stream. Server frames are handled on a single
// read goroutine, so callbacks never run concurrently with each other and
// batches reach OnBatch in stream order.
type Connection struct {
	ws       *websocket.Conn
	id       string
	endpoint string

	decoder      protocol.MessageDecoder
	encoder      protocol.MessageEncoder
	onDisconnect func(error)
	onBatch      func(events.Batch)
	onStaleBatch func(events.Batch, uint64)

	requestIDs atomic.Uint32
	queryIDs   atomic.Uint32

	subsMu sync.Mutex
	subs   map[uint32]SubscriptionCallback

	gate    blockGate
	initial atomic.Pointer[protocol.InitialConnectionPayload]

	writeMu        sync.Mutex
	closed         atomic.Bool
	disconnectOnce sync.Once
	done           chan struct{}
}

func newConnection(ws *websocket.Conn, id, endpoint string, b *Builder) *Connection {
	return &Connection{
		ws:           ws,
		id:           id,
		endpoint:     endpoint,
		decoder:      b.decoder,
		encoder:      b.encoder,
		onDisconnect: b.onDisconnect,
		onBatch:      b.onBatch,
		onStaleBatch: b.onStaleBatch,
		subs:         map[uint32]SubscriptionCallback{},
		done:         make(chan struct{}),
	}
}

// ConnectionID is the id this client announced in the subscribe URL.
func (c *Connection) ConnectionID() string {
	return c.id
}

// Endpoint is the subscribe URL without its query string.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// Initial returns what the server announced in its initial_connection
// message, once it has arrived.
func (c *Connection) Initial() (protocol.InitialConnectionPayload, bool) {
	p := c.initial.Load()
	if p == nil {
		return protocol.InitialConnectionPayload{}, false
	}
	return *p, true
}

// LastBlock returns the block of the last batch handed to OnBatch.
func (c *Connection) LastBlock() (uint64, bool) {
	return c.gate.lastBlock()
}

func (c *Connection) IsActive() bool {
	return !c.closed.Load()
}

// Done is closed when the read loop has exited. No callback runs after that.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Disconnect closes the stream. It does not wait for the read loop; use Done
// for that.
func (c *Connection) Disconnect() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second))
	return c.ws.Close()
}

func (c *Connection) readLoop() {
	defer close(c.done)
	defer func() { _ = c.Disconnect() }()

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.notifyDisconnect(err)
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := c.handleFrame(frame); err != nil {
			c.notifyDisconnect(err)
			return
		}
	}
}

func (c *Connection) handleFrame(frame []byte) error {
	body, err := protocol.DecodeFrame(frame)
	if err != nil {
		return wrapError(ErrorBadFrame, "read", err)
	}
	msg, err := c.decoder(body)
	if err != nil {
		return wrapError(ErrorBadFrame, "decode", err)
	}
	c.dispatch(msg)
	return nil
}

// dispatch handles one decoded message. Kinds this client does not know are
// skipped.
func (c *Connection) dispatch(msg protocol.ServerMessage) {
	switch msg.Kind {
	case protocol.MessageKindInitialConnection:
		if msg.Initial != nil {
			c.initial.Store(msg.Initial)
		}
	case protocol.MessageKindLogs:
		if msg.Batch != nil {
			c.deliver(*msg.Batch)
		}
	case protocol.MessageKindSubscribeApplied,
		protocol.MessageKindUnsubscribeApplied,
		protocol.MessageKindSubscriptionError:
		if msg.QueryID != nil {
			c.settle(msg)
		}
	}
}

// deliver passes batch to OnBatch unless its block is below the last one
// delivered.
func (c *Connection) deliver(batch events.Batch) {
	if last, ok := c.gate.admit(batch.BlockNumber); !ok {
		if c.onStaleBatch != nil {
			c.onStaleBatch(batch, last)
		}
		return
	}
	if c.onBatch != nil {
		c.onBatch(batch)
	}
}

func (c *Connection) notifyDisconnect(err error) {
	c.disconnectOnce.Do(func() {
		c.failSubscriptions(err)
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
	})
}

// blockGate admits batches in non-decreasing block order. One block may
// arrive as several batches.
type blockGate struct {
	mu   sync.Mutex
	seen bool
	last uint64
}

func (g *blockGate) admit(block uint64) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen && block < g.last {
		return g.last, false
	}
	g.seen = true
	g.last = block
	return block, true
}

func (g *blockGate) lastBlock() (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.seen
}
