// Package storesync keeps a local, decoded replica of an on-chain table store
// in sync with the store's event log.
package storesync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vmaark/storesync/cache"
	"github.com/vmaark/storesync/connection"
	"github.com/vmaark/storesync/diag"
	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/internal/protocol"
	"github.com/vmaark/storesync/schema"
	"github.com/vmaark/storesync/subscription"
	"github.com/vmaark/storesync/types"
)

type ConnectCallback func(*Session)
type ConnectErrorCallback func(error)
type DisconnectCallback func(*Session, error)

// Session owns one log stream and the store it feeds. Batches are applied on
// the connection's read loop in arrival order.
type Session struct {
	id    uuid.UUID
	conn  *connection.Connection
	store *cache.Store
	hooks *subscription.Hooks
	diag  diag.Sink
	log   logrus.FieldLogger
}

// newSession builds an unconnected session. A nil sink logs diagnostics on
// the session logger.
func newSession(registry schema.Registry, sink diag.Sink, log logrus.FieldLogger) *Session {
	id := uuid.New()
	log = log.WithField("session", id.String())
	if sink == nil {
		// NewLogSink only fails on bad options.
		sink, _ = diag.NewLogSink(log)
	}
	hooks := subscription.NewHooks()
	return &Session{
		id:    id,
		store: cache.NewStore(registry, cache.WithDiagnostics(sink), cache.WithHooks(hooks)),
		hooks: hooks,
		diag:  sink,
		log:   log,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Store returns the store the session applies batches to.
func (s *Session) Store() *cache.Store {
	return s.store
}

// Snapshot is shorthand for Store().Snapshot().
func (s *Session) Snapshot() *cache.Snapshot {
	return s.store.Snapshot()
}

// Raw returns the underlying connection, or nil before Build succeeds.
func (s *Session) Raw() *connection.Connection {
	if s == nil {
		return nil
	}
	return s.conn
}

func (s *Session) IsActive() bool {
	return s != nil && s.conn != nil && s.conn.IsActive()
}

// OnDelta registers cb for every non-empty delta and returns an id for RemoveDelta.
func (s *Session) OnDelta(cb subscription.Callback) uint64 {
	return s.hooks.Add(cb)
}

func (s *Session) RemoveDelta(id uint64) {
	s.hooks.Remove(id)
}

// Disconnect closes the stream without waiting for in-flight batches. Wait on
// Done before releasing anything the callbacks use.
func (s *Session) Disconnect() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Disconnect()
}

// Done is closed once no more batches will be applied.
func (s *Session) Done() <-chan struct{} {
	if s == nil || s.conn == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.conn.Done()
}

// Subscribe streams logs of tables from fromBlock into the store. No tables
// means every table the server knows.
func (s *Session) Subscribe(ctx context.Context, tables []types.TableID, fromBlock uint64) (uint32, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if s == nil || s.conn == nil {
		return 0, notConnectedError("subscribe")
	}

	log := s.log.WithField("from_block", fromBlock)
	return s.conn.Subscribe(tables, fromBlock, func(update connection.SubscriptionUpdate) {
		log := log.WithField("query_id", update.QueryID)
		switch update.Status {
		case connection.SubscriptionApplied:
			log.Info("subscription applied")
		case connection.SubscriptionEnded:
			log.Info("subscription ended")
		case connection.SubscriptionFailed:
			log.WithError(update.Err).Warn("subscription failed")
		}
	})
}

func (s *Session) Unsubscribe(ctx context.Context, queryID uint32) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if s == nil || s.conn == nil {
		return notConnectedError("unsubscribe")
	}
	return s.conn.Unsubscribe(queryID)
}

// applyBatch runs on the read loop, which already dropped out-of-order
// batches.
func (s *Session) applyBatch(batch events.Batch) {
	delta := s.store.ApplyBatch(batch)
	s.log.WithFields(logrus.Fields{
		"block":   batch.BlockNumber,
		"events":  len(batch.Events),
		"updated": len(delta.Updated),
		"deleted": len(delta.Deleted),
	}).Debug("applied batch")
}

func (s *Session) reportStale(batch events.Batch, lastBlock uint64) {
	s.diag.Report(&diag.Error{
		Code:  diag.CodeStaleBatch,
		Op:    "apply",
		Block: batch.BlockNumber,
		Err:   fmt.Errorf("block %d arrived after block %d", batch.BlockNumber, lastBlock),
	})
}

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func notConnectedError(op string) error {
	return &connection.Error{
		Code: connection.ErrorConnectionClosed,
		Op:   op,
		Err:  errors.New("storesync session is not connected"),
	}
}

// SessionBuilder is the public entry point: it wires a connection to a store.
type SessionBuilder struct {
	inner *connection.Builder

	registry schema.Registry
	diag     diag.Sink
	log      logrus.FieldLogger

	onConnect      ConnectCallback
	onConnectError ConnectErrorCallback
	onDisconnect   DisconnectCallback
	onDelta        []subscription.Callback

	connectRetryMaxAttempts int
	connectRetryBackoff     time.Duration
}

func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{
		inner:                   connection.NewBuilder(),
		connectRetryMaxAttempts: 1,
	}
}

func (b *SessionBuilder) WithURI(uri string) *SessionBuilder {
	b.inner.WithURI(uri)
	return b
}

func (b *SessionBuilder) WithStoreAddress(address string) *SessionBuilder {
	b.inner.WithStoreAddress(address)
	return b
}

func (b *SessionBuilder) WithToken(token string) *SessionBuilder {
	b.inner.WithToken(token)
	return b
}

func (b *SessionBuilder) WithCompression(compression protocol.Compression) *SessionBuilder {
	b.inner.WithCompression(compression)
	return b
}

func (b *SessionBuilder) WithUseWebsocketToken(enabled bool) *SessionBuilder {
	b.inner.WithUseWebsocketToken(enabled)
	return b
}

func (b *SessionBuilder) WithHTTPClient(client *http.Client) *SessionBuilder {
	b.inner.WithHTTPClient(client)
	return b
}

func (b *SessionBuilder) WithMaxMessageSize(n int64) *SessionBuilder {
	b.inner.WithMaxMessageSize(n)
	return b
}

func (b *SessionBuilder) WithMessageDecoder(decoder protocol.MessageDecoder) *SessionBuilder {
	b.inner.WithMessageDecoder(decoder)
	return b
}

func (b *SessionBuilder) WithMessageEncoder(encoder protocol.MessageEncoder) *SessionBuilder {
	b.inner.WithMessageEncoder(encoder)
	return b
}

// WithRegistry sets the table schemas used to decode rows. Required.
func (b *SessionBuilder) WithRegistry(registry schema.Registry) *SessionBuilder {
	b.registry = registry
	return b
}

// WithDiagnostics sets where per-row failures go. Defaults to a LogSink on
// the session logger.
func (b *SessionBuilder) WithDiagnostics(sink diag.Sink) *SessionBuilder {
	b.diag = sink
	return b
}

func (b *SessionBuilder) WithLogger(log logrus.FieldLogger) *SessionBuilder {
	b.log = log
	return b
}

func (b *SessionBuilder) OnConnect(cb ConnectCallback) *SessionBuilder {
	b.onConnect = cb
	return b
}

func (b *SessionBuilder) OnConnectError(cb ConnectErrorCallback) *SessionBuilder {
	b.onConnectError = cb
	return b
}

func (b *SessionBuilder) OnDisconnect(cb DisconnectCallback) *SessionBuilder {
	b.onDisconnect = cb
	return b
}

// OnDelta registers cb on the built session. May be called more than once.
func (b *SessionBuilder) OnDelta(cb subscription.Callback) *SessionBuilder {
	if cb != nil {
		b.onDelta = append(b.onDelta, cb)
	}
	return b
}

// WithConnectRetry configures retries for initial Build connection attempts.
//
// maxAttempts includes the first attempt.
// - maxAttempts <= 0 is treated as 1.
// - backoff <= 0 performs retries without sleeping.
func (b *SessionBuilder) WithConnectRetry(maxAttempts int, backoff time.Duration) *SessionBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	b.connectRetryMaxAttempts = maxAttempts
	b.connectRetryBackoff = backoff
	return b
}

func (b *SessionBuilder) Build(ctx context.Context) (*Session, error) {
	if b.registry == nil {
		return nil, errors.New("schema registry is required")
	}

	log := b.log
	if log == nil {
		log = logrus.StandardLogger()
	}
	session := newSession(b.registry, b.diag, log)
	for _, cb := range b.onDelta {
		session.OnDelta(cb)
	}

	b.inner.OnBatch(session.applyBatch)
	b.inner.OnStaleBatch(session.reportStale)
	b.inner.OnConnect(func(conn *connection.Connection) {
		session.conn = conn
		session.log.WithField("connection_id", conn.ConnectionID()).Info("connected")
		if b.onConnect != nil {
			b.onConnect(session)
		}
	})
	b.inner.OnConnectError(func(err error) {
		session.log.WithError(err).Warn("connect failed")
		if b.onConnectError != nil {
			b.onConnectError(err)
		}
	})
	b.inner.OnDisconnect(func(err error) {
		session.log.WithError(err).Info("disconnected")
		if b.onDisconnect != nil {
			b.onDisconnect(session, err)
		}
	})

	attempts := b.connectRetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := b.connectRetryBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := validateContext(ctx); err != nil {
			return nil, err
		}

		conn, err := b.inner.Build(ctx)
		if err == nil {
			session.conn = conn
			return session, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if backoff <= 0 {
			continue
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}
