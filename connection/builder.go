package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/vmaark/storesync/events"
	"github.com/vmaark/storesync/internal/protocol"
	"github.com/vmaark/storesync/types"
)

// Builder configures and opens a Connection to one store's log stream.
type Builder struct {
	uri               string
	storeAddress      string
	token             string
	compression       protocol.Compression
	useWebsocketToken bool
	httpClient        *http.Client
	maxMessageSize    int64
	decoder           protocol.MessageDecoder
	encoder           protocol.MessageEncoder

	onConnect      func(*Connection)
	onConnectError func(error)
	onDisconnect   func(error)
	onBatch        func(events.Batch)
	onStaleBatch   func(batch events.Batch, lastBlock uint64)
}

func NewBuilder() *Builder {
	return &Builder{
		compression:       protocol.CompressionGzip,
		useWebsocketToken: true,
		maxMessageSize:    DefaultMaxMessageSize,
		decoder:           protocol.JSONMessageDecoder,
		encoder:           protocol.JSONMessageEncoder,
	}
}

// WithURI sets the log server base URI, e.g. https://logs.example.com.
func (b *Builder) WithURI(uri string) *Builder {
	b.uri = uri
	return b
}

// WithStoreAddress sets the 0x-prefixed address of the store whose logs are
// streamed.
func (b *Builder) WithStoreAddress(address string) *Builder {
	b.storeAddress = address
	return b
}

func (b *Builder) WithToken(token string) *Builder {
	b.token = token
	return b
}

func (b *Builder) WithCompression(compression protocol.Compression) *Builder {
	b.compression = compression
	return b
}

// WithUseWebsocketToken chooses between exchanging the token for a
// websocket token (the default) and sending it as an Authorization header.
func (b *Builder) WithUseWebsocketToken(enabled bool) *Builder {
	b.useWebsocketToken = enabled
	return b
}

func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithMaxMessageSize limits the size of one incoming frame. Zero or less
// removes the limit.
func (b *Builder) WithMaxMessageSize(n int64) *Builder {
	b.maxMessageSize = n
	return b
}

func (b *Builder) WithMessageDecoder(decoder protocol.MessageDecoder) *Builder {
	if decoder != nil {
		b.decoder = decoder
	}
	return b
}

func (b *Builder) WithMessageEncoder(encoder protocol.MessageEncoder) *Builder {
	if encoder != nil {
		b.encoder = encoder
	}
	return b
}

func (b *Builder) OnConnect(cb func(*Connection)) *Builder {
	b.onConnect = cb
	return b
}

func (b *Builder) OnConnectError(cb func(error)) *Builder {
	b.onConnectError = cb
	return b
}

// OnDisconnect is called once, from the read loop, when the stream ends.
func (b *Builder) OnDisconnect(cb func(error)) *Builder {
	b.onDisconnect = cb
	return b
}

// OnBatch receives every admitted batch on the read loop, in stream order.
func (b *Builder) OnBatch(cb func(events.Batch)) *Builder {
	b.onBatch = cb
	return b
}

// OnStaleBatch receives batches dropped because their block is below the
// last admitted one.
func (b *Builder) OnStaleBatch(cb func(batch events.Batch, lastBlock uint64)) *Builder {
	b.onStaleBatch = cb
	return b
}

func (b *Builder) Build(ctx context.Context) (*Connection, error) {
	endpoint, host, err := b.endpoint()
	if err != nil {
		return nil, err
	}

	d := dialer{http: b.httpClient, maxMessageSize: b.maxMessageSize}
	header := http.Header{}
	if b.token != "" {
		if b.useWebsocketToken {
			wsToken, err := d.websocketToken(ctx, host, b.token)
			if err != nil {
				return nil, b.connectFailed(err)
			}
			q := endpoint.Query()
			q.Set("token", wsToken)
			endpoint.RawQuery = q.Encode()
		} else {
			header.Set("Authorization", "Bearer "+b.token)
		}
	}

	ws, err := d.dial(ctx, endpoint, header)
	if err != nil {
		return nil, b.connectFailed(err)
	}

	c := newConnection(ws, endpoint.Query().Get("connection_id"), withoutQuery(endpoint), b)
	if b.onConnect != nil {
		b.onConnect(c)
	}
	go c.readLoop()
	return c, nil
}

func (b *Builder) connectFailed(err error) error {
	if b.onConnectError != nil {
		b.onConnectError(err)
	}
	return err
}

// endpoint validates the settings and returns the subscribe URL and the
// parsed base URI.
func (b *Builder) endpoint() (*url.URL, *url.URL, error) {
	if b.uri == "" {
		return nil, nil, errors.New("uri is required")
	}
	if b.storeAddress == "" {
		return nil, nil, errors.New("store address is required")
	}
	address, err := types.ParseAddress(b.storeAddress)
	if err != nil {
		return nil, nil, err
	}
	if b.compression != protocol.CompressionGzip && b.compression != protocol.CompressionNone {
		return nil, nil, fmt.Errorf("invalid compression: %q", b.compression)
	}
	host, err := parseHost(b.uri)
	if err != nil {
		return nil, nil, err
	}
	return subscribeEndpoint(host, address, uuid.NewString(), b.compression), host, nil
}

// parseHost accepts a base URI with or without a scheme.
func parseHost(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid uri %q: missing host", raw)
	}
	return u, nil
}

func subscribeEndpoint(host *url.URL, address types.Address, connectionID string, compression protocol.Compression) *url.URL {
	scheme := "ws"
	if httpScheme(host.Scheme) == "https" {
		scheme = "wss"
	}
	q := url.Values{}
	q.Set("connection_id", connectionID)
	q.Set("compression", string(compression))
	return &url.URL{
		Scheme:   scheme,
		Host:     host.Host,
		Path:     "/v1/stores/" + address.Hex() + "/subscribe",
		RawQuery: q.Encode(),
	}
}
