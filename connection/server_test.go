package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/internal/protocol"
)

const waitTimeout = 2 * time.Second

// fakeStore is a log server that hands each accepted stream to the test.
type fakeStore struct {
	t      *testing.T
	server *httptest.Server
	conns  chan *websocket.Conn
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	f := &fakeStore{t: t, conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{Subprotocols: []string{protocol.WSSubprotocolV1}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- ws
	}))
	t.Cleanup(f.server.Close)
	return f
}

// connect builds a Connection against the store and returns the server end.
func (f *fakeStore) connect(b *Builder) (*Connection, *storeConn) {
	f.t.Helper()
	c, err := b.
		WithURI(f.server.URL).
		WithStoreAddress(testStoreAddress).
		WithUseWebsocketToken(false).
		Build(context.Background())
	if err != nil {
		f.t.Fatalf("build connection: %v", err)
	}
	f.t.Cleanup(func() { _ = c.Disconnect() })

	select {
	case ws := <-f.conns:
		f.t.Cleanup(func() { _ = ws.Close() })
		return c, &storeConn{t: f.t, ws: ws}
	case <-time.After(waitTimeout):
		f.t.Fatalf("server never accepted the stream")
		return nil, nil
	}
}

type storeConn struct {
	t  *testing.T
	ws *websocket.Conn
}

func (s *storeConn) send(kind protocol.MessageKind, queryID *uint32, payload any) {
	s.t.Helper()
	envelope := map[string]any{"kind": kind}
	if queryID != nil {
		envelope["query_id"] = *queryID
	}
	if payload != nil {
		envelope["payload"] = payload
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		s.t.Fatalf("encode envelope: %v", err)
	}
	frame, err := protocol.EncodeFrame(protocol.CompressionGzip, body)
	if err != nil {
		s.t.Fatalf("encode frame: %v", err)
	}
	s.sendFrame(frame)
}

func (s *storeConn) sendFrame(frame []byte) {
	s.t.Helper()
	if err := s.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.t.Fatalf("write frame: %v", err)
	}
}

func (s *storeConn) sendBatch(batch events.Batch) {
	s.t.Helper()
	s.send(protocol.MessageKindLogs, nil, protocol.NewLogsPayload(batch))
}

func (s *storeConn) read() protocol.ClientMessage {
	s.t.Helper()
	_ = s.ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, raw, err := s.ws.ReadMessage()
	if err != nil {
		s.t.Fatalf("read client message: %v", err)
	}
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.t.Fatalf("decode client message: %v", err)
	}
	return msg
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %T", *new(T))
		var zero T
		return zero
	}
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("read loop did not exit")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in %s", waitTimeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
