package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/vmaark/storesync/internal/protocol"
)

func TestWebsocketToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr string
	}{
		{name: "issued", status: http.StatusOK, body: `{"token":"ws-1"}`, want: "ws-1"},
		{name: "rejected", status: http.StatusUnauthorized, body: "bad bearer\n", wantErr: `status=401 body="bad bearer"`},
		{name: "missing token", status: http.StatusOK, body: `{}`, wantErr: "response has no token"},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: "decode response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != tokenPath {
					http.NotFound(w, r)
					return
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("unexpected authorization header: %q", got)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			host, _ := url.Parse(server.URL)
			got, err := dialer{http: server.Client()}.websocketToken(context.Background(), host, "secret")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("websocket token: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected token %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDialRejectedUpgradeKeepsBodyAndHidesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such store", http.StatusNotFound)
	}))
	defer server.Close()

	endpoint, _ := url.Parse("ws" + strings.TrimPrefix(server.URL, "http") + "/v1/stores/x/subscribe?token=hidden")
	_, err := dialer{}.dial(context.Background(), endpoint, nil)
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if !strings.Contains(err.Error(), `status=404 body="no such store"`) {
		t.Fatalf("expected status and body in error, got %v", err)
	}
	if strings.Contains(err.Error(), "hidden") {
		t.Fatalf("token leaked into error: %v", err)
	}
}

func TestDialRequiresSubprotocol(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			defer ws.Close()
		}
	}))
	defer server.Close()

	endpoint, _ := url.Parse("ws" + strings.TrimPrefix(server.URL, "http"))
	_, err := dialer{}.dial(context.Background(), endpoint, nil)
	if err == nil || !strings.Contains(err.Error(), "server chose subprotocol") {
		t.Fatalf("expected subprotocol error, got %v", err)
	}
}

func TestBuildSendsTokenInQuery(t *testing.T) {
	queries := make(chan url.Values, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{protocol.WSSubprotocolV1}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath {
			_, _ = w.Write([]byte(`{"token":"ws-1"}`))
			return
		}
		queries <- r.URL.Query()
		if ws, err := upgrader.Upgrade(w, r, nil); err == nil {
			_ = ws.Close()
		}
	}))
	defer server.Close()

	c, err := NewBuilder().
		WithURI(server.URL).
		WithStoreAddress(testStoreAddress).
		WithToken("secret").
		WithHTTPClient(server.Client()).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Disconnect()

	q := receive(t, queries)
	if q.Get("token") != "ws-1" {
		t.Fatalf("expected websocket token in query, got %q", q.Get("token"))
	}
	if q.Get("connection_id") != c.ConnectionID() || c.ConnectionID() == "" {
		t.Fatalf("connection id mismatch: query %q, connection %q", q.Get("connection_id"), c.ConnectionID())
	}
	if strings.Contains(c.Endpoint(), "ws-1") {
		t.Fatalf("endpoint should not carry the token: %s", c.Endpoint())
	}
}
