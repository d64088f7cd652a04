package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vmaark/storesync/internal/protocol"
)

const (
	// DefaultMaxMessageSize bounds one server frame as read off the wire.
	DefaultMaxMessageSize int64 = 32 << 20

	handshakeTimeout = 10 * time.Second
	tokenPath        = "/v1/auth/websocket-token"
)

// dialer opens log streams. The HTTP client is only used to trade a bearer
// token for a websocket token.
type dialer struct {
	http           *http.Client
	maxMessageSize int64
}

func (d dialer) client() *http.Client {
	if d.http == nil {
		return http.DefaultClient
	}
	return d.http
}

// websocketToken trades bearer for a short-lived token the server accepts in
// the subscribe URL.
func (d dialer) websocketToken(ctx context.Context, host *url.URL, bearer string) (string, error) {
	endpoint := url.URL{Scheme: httpScheme(host.Scheme), Host: host.Host, Path: tokenPath}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("websocket token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("websocket token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("websocket token: status=%d body=%q", resp.StatusCode, errorBody(resp.Body))
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", fmt.Errorf("websocket token: decode response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("websocket token: response has no token")
	}
	return out.Token, nil
}

// dial opens endpoint and requires the server to pick the storesync
// subprotocol.
func (d dialer) dial(ctx context.Context, endpoint *url.URL, header http.Header) (*websocket.Conn, error) {
	ws := websocket.Dialer{
		Subprotocols:     []string{protocol.WSSubprotocolV1},
		HandshakeTimeout: handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := ws.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		if resp == nil {
			return nil, fmt.Errorf("dial %s: %w", withoutQuery(endpoint), err)
		}
		defer resp.Body.Close()
		return nil, fmt.Errorf("dial %s: %w (status=%d body=%q)", withoutQuery(endpoint), err, resp.StatusCode, errorBody(resp.Body))
	}
	if conn.Subprotocol() != protocol.WSSubprotocolV1 {
		_ = conn.Close()
		return nil, fmt.Errorf("dial %s: server chose subprotocol %q, want %q", withoutQuery(endpoint), conn.Subprotocol(), protocol.WSSubprotocolV1)
	}
	if d.maxMessageSize > 0 {
		conn.SetReadLimit(d.maxMessageSize)
	}
	return conn, nil
}

func httpScheme(scheme string) string {
	switch scheme {
	case "wss", "https":
		return "https"
	default:
		return "http"
	}
}

// withoutQuery keeps websocket tokens out of error messages.
func withoutQuery(u *url.URL) string {
	out := *u
	out.RawQuery = ""
	return out.String()
}

func errorBody(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	return strings.TrimSpace(string(raw))
}
