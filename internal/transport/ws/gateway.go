package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/obs"
)

const (
	DefaultPingPeriod   = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Logger       *slog.Logger
	PingPeriod   time.Duration
	WriteTimeout time.Duration
}

// Gateway authenticates HTTP requests, upgrades them to WebSocket and runs one
// session per connection against the hub.
type Gateway struct {
	hub          *chat.Hub
	auth         chat.Authenticator
	logger       *slog.Logger
	pingPeriod   time.Duration
	writeTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGateway creates a Gateway.
func NewGateway(hub *chat.Hub, authenticator chat.Authenticator, opts GatewayOptions) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = DefaultPingPeriod
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		hub:          hub,
		auth:         authenticator,
		logger:       opts.Logger,
		pingPeriod:   opts.PingPeriod,
		writeTimeout: opts.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ServeHTTP authenticates before upgrading, so a rejected client gets a plain
// HTTP error and never touches the hub.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := g.auth.Authenticate(ctx, auth.TokenFromRequest(r))
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, chat.ErrAuthentication) {
			status = http.StatusUnauthorized
		}
		g.logger.Info("connection rejected", "remote_addr", r.RemoteAddr, "status", status, "error", err)
		obs.Annotate(ctx, slog.String("auth_error", err.Error()))
		http.Error(w, http.StatusText(status), status)
		return
	}
	obs.Annotate(ctx, slog.Int64("user_id", int64(user.ID)))

	netConn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	var src io.Reader
	if rw != nil && rw.Reader.Buffered() > 0 {
		src = rw.Reader
	}
	conn := NewConn(netConn, src, r.RemoteAddr, 2*g.pingPeriod, g.writeTimeout)
	s := g.hub.NewSession(conn, *user)
	obs.Annotate(ctx, slog.String("session_id", s.ID))

	g.wg.Add(1)
	defer g.wg.Done()
	g.serve(s)
}

// Shutdown stops every session served by the gateway and waits for them to end.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()
	g.hub.Close()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) serve(s *chat.Session) {
	if err := g.hub.Connect(g.ctx, s); err != nil {
		g.logger.Warn("session refused", "session_id", s.ID, "user_id", s.User.ID, "error", err)
		s.Close()
		return
	}

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		g.writeLoop(s)
	}()

	g.hub.HandleClient(g.ctx, s)
	g.hub.Disconnect(s)
	pump.Wait()
}

// writeLoop drains the session queue onto the socket and keeps it alive with
// pings. A failed write closes the session, which ends the read loop too.
func (g *Gateway) writeLoop(s *chat.Session) {
	conn, _ := s.Conn.(*Conn)
	ticker := time.NewTicker(g.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			return
		case data := <-s.Outgoing():
			if err := s.Conn.Write(g.ctx, data); err != nil {
				g.logger.Debug("write failed", "session_id", s.ID, "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			if conn == nil {
				continue
			}
			if err := conn.Ping(g.ctx); err != nil {
				g.logger.Debug("ping failed", "session_id", s.ID, "error", err)
				s.Close()
				return
			}
		}
	}
}
