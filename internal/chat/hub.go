package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// Options configures a Hub. Zero values select in-process defaults.
type Options struct {
	Logger *slog.Logger
	// Toucher bumps conversation activity; defaults to the store itself.
	Toucher Toucher
	// Events receives domain events; defaults to a no-op sink.
	Events EventSink
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int
	// PublishTimeout bounds each domain event publish; defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration
	// Now overrides the clock used for event timestamps.
	Now func() time.Time
}

// Hub owns all live sessions of the process: presence, rooms and typing state.
// It is created at server start and torn down with Close.
type Hub struct {
	registry   *Registry
	rooms      *Rooms
	typing     *Typing
	dispatcher *Dispatcher
	handlers   map[string]handlerFunc
	logger     *slog.Logger
	sendBuffer int
	closed     atomic.Bool
}

// NewHub creates a Hub backed by store.
func NewHub(store Store, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	toucher := opts.Toucher
	if toucher == nil {
		toucher = storeToucher{store: store}
	}
	events := opts.Events
	if events == nil {
		events = nopSink{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	publishTimeout := opts.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}

	h := &Hub{
		registry:   NewRegistry(),
		rooms:      NewRooms(store),
		typing:     NewTyping(),
		logger:     logger,
		sendBuffer: opts.SendBuffer,
	}
	h.dispatcher = &Dispatcher{
		store:          store,
		registry:       h.registry,
		rooms:          h.rooms,
		typing:         h.typing,
		toucher:        toucher,
		events:         events,
		publishTimeout: publishTimeout,
		logger:         logger,
		now:            now,
	}
	h.handlers = h.routes()
	return h
}

// Registry exposes the presence registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the room index.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Typing exposes the typing tracker.
func (h *Hub) Typing() *Typing { return h.typing }

// Dispatcher exposes the operations behind the client events.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// ClientCount returns number of online users.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// NewSession creates a session for an authenticated user on conn.
func (h *Hub) NewSession(conn Conn, user User) *Session {
	s := NewSession(conn, user, h.sendBuffer)
	s.SetState(StateAuthenticating)
	return s
}

// ErrHubClosed is returned by Connect after Close.
var ErrHubClosed = errors.New("chat: hub closed")

// Connect activates an authenticated session: it registers the user, joins the
// rooms of all their conversations, sends the online snapshot and announces
// the user to everyone else.
func (h *Hub) Connect(ctx context.Context, s *Session) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if displaced := h.registry.Register(s); displaced != nil {
		h.logger.Info("session displaced", "user_id", s.User.ID, "previous_session_id", displaced.ID, "session_id", s.ID)
	}

	if _, err := h.rooms.AutoJoin(ctx, s); err != nil {
		h.logger.Warn("auto-join failed", "user_id", s.User.ID, "session_id", s.ID, "error", err)
		s.Send(errorFrame(ErrorMessage(err)))
	}

	s.SetState(StateActive)
	s.Send(onlineUsersFrame(h.registry.OnlineUserIDs()))
	h.registry.Broadcast(frame(protocol.EventUserOnline, int64(s.User.ID)), s)

	h.logger.Info("session connected", "session_id", s.ID, "user_id", s.User.ID, "remote_addr", remoteAddr(s))
	return nil
}

// Disconnect releases everything s holds, including typing slots started
// from it. When s was the user's current session the user goes offline: all
// their typing slots are cleared and everyone is told.
func (h *Hub) Disconnect(s *Session) {
	wentOffline := h.registry.Unregister(s)
	h.rooms.LeaveAll(s)

	cleared := h.typing.ClearSession(s.ID)
	if wentOffline {
		cleared = append(cleared, h.typing.ClearUser(s.User.ID)...)
		slices.Sort(cleared)
	}
	for _, convID := range cleared {
		h.rooms.Broadcast(convID, stoppedTypingFrame(convID, s.User.ID), s)
	}
	if wentOffline {
		h.registry.Broadcast(frame(protocol.EventUserOffline, int64(s.User.ID)), s)
	}
	s.Close()

	h.logger.Info("session closed", "session_id", s.ID, "user_id", s.User.ID, "offline", wentOffline)
}

// HandleClient runs the receive loop of s until its connection fails or ctx
// ends. Frames are handled one at a time, in receipt order.
func (h *Hub) HandleClient(ctx context.Context, s *Session) {
	for {
		data, err := s.Conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && s.State() != StateClosed {
				h.logger.Debug("read failed", "session_id", s.ID, "error", err)
			}
			return
		}
		h.handleFrame(ctx, s, data)
	}
}

// Close shuts every registered session. Their receive loops then end and
// the transport runs Disconnect.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	for _, s := range h.registry.Sessions() {
		s.Close()
	}
}

func (h *Hub) handleFrame(ctx context.Context, s *Session, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		s.Send(errorFrame("malformed event"))
		return
	}
	handler, ok := h.handlers[ev.Name]
	if !ok {
		s.Send(errorFrame("unknown event " + ev.Name))
		return
	}
	if err := handler(ctx, s, ev); err != nil {
		level := slog.LevelDebug
		if errors.Is(err, ErrPersistence) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "event failed", "event", ev.Name, "session_id", s.ID, "user_id", s.User.ID, "error", err)
		s.Send(errorFrame(ErrorMessage(err)))
	}
}

func remoteAddr(s *Session) string {
	if s.Conn == nil {
		return ""
	}
	return s.Conn.RemoteAddr()
}
