package storesync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/vmaark/storesync/connection"
	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/internal/protocol"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/types"
)

const testStoreAddress = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

var counterTable = schema.NewTable(types.KindTable, "app", "Counter",
	[]schema.Field{{Name: "id", Type: schema.Uint8}},
	[]schema.Field{{Name: "value", Type: schema.Uint8}},
)

func testRegistry(t *testing.T) *schema.MapRegistry {
	t.Helper()
	registry, err := schema.NewRegistry(counterTable)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return registry
}

func setCounter(block uint64, id, value byte) events.Batch {
	return events.Batch{BlockNumber: block, Events: []events.Event{
		events.SetRecord{TableID: counterTable.ID, KeyTuple: types.KeyTuple{{id}}, StaticData: []byte{value}, EncodedLengths: []byte{}, DynamicData: []byte{}},
	}}
}

func TestSessionContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &Session{}

	if _, err := session.Subscribe(ctx, nil, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Subscribe, got: %v", err)
	}
	if err := session.Unsubscribe(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Unsubscribe, got: %v", err)
	}
}

func TestSessionNotConnected(t *testing.T) {
	session := &Session{}
	if _, err := session.Subscribe(context.Background(), nil, 0); !connection.IsCode(err, connection.ErrorConnectionClosed) {
		t.Fatalf("expected connection_closed, got: %v", err)
	}
	if session.IsActive() {
		t.Fatalf("unconnected session should not be active")
	}
	if err := session.Disconnect(); err != nil {
		t.Fatalf("disconnect without connection: %v", err)
	}
	select {
	case <-session.Done():
	default:
		t.Fatalf("unconnected session should report done")
	}
}

func TestSessionBuilderRequiresRegistry(t *testing.T) {
	_, err := NewSessionBuilder().
		WithURI("http://127.0.0.1:1").
		WithStoreAddress(testStoreAddress).
		Build(context.Background())
	if err == nil {
		t.Fatalf("expected missing registry error")
	}
}

func TestSessionBuilderConnectRetryAttempts(t *testing.T) {
	var connectErrors atomic.Int32
	log, _ := logtest.NewNullLogger()

	_, err := NewSessionBuilder().
		WithURI("http://127.0.0.1:1").
		WithStoreAddress(testStoreAddress).
		WithRegistry(testRegistry(t)).
		WithLogger(log).
		WithConnectRetry(3, 0).
		OnConnectError(func(error) {
			connectErrors.Add(1)
		}).
		Build(context.Background())
	if err == nil {
		t.Fatalf("expected build to fail")
	}
	if got := connectErrors.Load(); got != 3 {
		t.Fatalf("expected 3 connect-error callbacks, got %d", got)
	}
}

func TestSessionBuilderConnectRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	log, _ := logtest.NewNullLogger()
	_, err := NewSessionBuilder().
		WithURI("http://127.0.0.1:1").
		WithStoreAddress(testStoreAddress).
		WithRegistry(testRegistry(t)).
		WithLogger(log).
		WithConnectRetry(10, 250*time.Millisecond).
		Build(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
}

func TestSessionReportsStaleBatches(t *testing.T) {
	recorder := &diag.Recorder{}
	log, _ := logtest.NewNullLogger()
	session := newSession(testRegistry(t), recorder, log)

	session.applyBatch(setCounter(5, 1, 10))
	session.reportStale(setCounter(4, 1, 99), 5)

	if recorder.Count(diag.CodeStaleBatch) != 1 {
		t.Fatalf("expected one stale batch diagnostic, got %v", recorder.Errors())
	}
	var stale *diag.Error
	if !errors.As(recorder.Errors()[0], &stale) || stale.Block != 4 {
		t.Fatalf("unexpected diagnostic: %v", recorder.Errors()[0])
	}
	rec, ok := session.Store().Get(types.NewRowID(counterTable.ID, types.KeyTuple{{1}}))
	if !ok || rec.Value["value"] != uint8(10) {
		t.Fatalf("stale batch was applied: %v", rec)
	}
}

func TestSessionLogsDiagnosticsByDefault(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	session := newSession(testRegistry(t), nil, log)

	session.applyBatch(events.Batch{BlockNumber: 1, Events: []events.Event{
		events.SpliceStaticData{TableID: counterTable.ID, KeyTuple: types.KeyTuple{{1}}, Start: 3, Data: []byte{1}},
	}})

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["code"] == string(diag.CodeSpliceRange) {
			found = true
			if entry.Data["session"] != session.ID().String() {
				t.Fatalf("diagnostic missing session field: %v", entry.Data)
			}
		}
	}
	if !found {
		t.Fatalf("expected a splice_range log entry")
	}
}

func TestSessionAppliesSubscribedLogs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	upgrader := websocket.Upgrader{
		Subprotocols: []string{protocol.WSSubprotocolV1},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.ClientMessage
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Kind != protocol.ClientMessageSubscribe {
				continue
			}
			writeFrame(t, conn, map[string]any{"kind": "subscribe_applied", "query_id": *msg.QueryID})
			from := *msg.FromBlock
			for _, b := range []events.Batch{setCounter(from, 1, 1), setCounter(from+1, 1, 2), setCounter(from-1, 1, 9)} {
				writeFrame(t, conn, map[string]any{"kind": "logs", "query_id": *msg.QueryID, "payload": protocol.NewLogsPayload(b)})
			}
		}
	}))
	defer server.Close()

	log, _ := logtest.NewNullLogger()
	deltas := make(chan types.Delta, 4)
	stale := make(chan error, 1)
	session, err := NewSessionBuilder().
		WithURI(server.URL).
		WithStoreAddress(testStoreAddress).
		WithCompression(protocol.CompressionNone).
		WithRegistry(testRegistry(t)).
		WithDiagnostics(diag.SinkFunc(func(err error) {
			if diag.IsCode(err, diag.CodeStaleBatch) {
				stale <- err
			}
		})).
		WithLogger(log).
		OnDelta(func(d types.Delta) { deltas <- d }).
		Build(ctx)
	if err != nil {
		t.Fatalf("build session: %v", err)
	}
	defer func() {
		_ = session.Disconnect()
		<-session.Done()
	}()

	if session.ID().String() == "" || !session.IsActive() {
		t.Fatalf("expected an active session with an id")
	}
	if _, err := session.Subscribe(ctx, []types.TableID{counterTable.ID}, 40); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, want := range []uint64{40, 41} {
		select {
		case d := <-deltas:
			if d.BlockNumber != want || len(d.Updated) != 1 {
				t.Fatalf("unexpected delta: %+v", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for block %d", want)
		}
	}

	select {
	case err := <-stale:
		if !diag.IsCode(err, diag.CodeStaleBatch) {
			t.Fatalf("unexpected diagnostic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the stale batch diagnostic")
	}

	rec, ok := session.Snapshot().Record(types.NewRowID(counterTable.ID, types.KeyTuple{{1}}))
	if !ok || rec.Value["value"] != uint8(2) {
		t.Fatalf("unexpected record after stream: %v", rec)
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, envelope map[string]any) {
	t.Helper()
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Errorf("marshal frame: %v", err)
		return
	}
	frame, err := protocol.EncodeFrame(protocol.CompressionNone, body)
	if err != nil {
		t.Errorf("encode frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Errorf("write frame: %v", err)
	}
}
