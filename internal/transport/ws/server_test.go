package ws_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/omochice/realtime-chat/internal/transport/ws"
)

func startServer(t *testing.T) *ws.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := ws.New("127.0.0.1:0", handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go func() { _ = srv.Serve() }()
	return srv
}

func TestServer_Addr(t *testing.T) {
	srv := startServer(t)
	defer srv.Stop(context.Background())

	addr := srv.Addr()
	if addr == "" {
		t.Error("Addr() returned empty string")
	}
	if !strings.Contains(addr, ":") {
		t.Errorf("Addr() = %q, expected host:port format", addr)
	}
}

func TestServer_Serves(t *testing.T) {
	srv := startServer(t)
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr())
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestServer_Stop(t *testing.T) {
	srv := startServer(t)
	addr := srv.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	client := http.Client{Timeout: 100 * time.Millisecond}
	if _, err := client.Get("http://" + addr); err == nil {
		t.Error("server still accepting connections after Stop")
	}
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := ws.New("127.0.0.1:0", http.NotFoundHandler(), nil)
	if err := srv.Serve(); err == nil {
		t.Error("Serve() error = nil before Listen")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
