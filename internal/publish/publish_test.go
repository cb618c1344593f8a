package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishWithoutClients(t *testing.T) {
	h := NewHub(nil, quietLogger())
	if err := h.Publish(context.Background(), "hello"); !errors.Is(err, ErrNoClients) {
		t.Errorf("err = %v, want ErrNoClients", err)
	}
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	h := NewHub(nil, quietLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	waitClients(t, h, 2)

	if err := h.Publish(context.Background(), "scheduled hello"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("client %s Read: %v", name, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("client %s decoding: %v", name, err)
		}
		if msg.Type != "publish" || msg.Content != "scheduled hello" {
			t.Errorf("client %s got %+v", name, msg)
		}
	}
}

func TestHub_ClientLeaves(t *testing.T) {
	h := NewHub(nil, quietLogger())
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dialHub(t, srv)
	waitClients(t, h, 1)
	c.Close(websocket.StatusNormalClosure, "done")
	waitClients(t, h, 0)
}

func TestWebhook_Publish(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, nil).Publish(context.Background(), "post body"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got["content"] != "post body" {
		t.Errorf("body = %v", got)
	}
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).Publish(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429", err)
	}
}

func TestWebhook_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewWebhook(url, nil).Publish(context.Background(), "x"); err == nil {
		t.Error("expected error for closed server")
	}
}
