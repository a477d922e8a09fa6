package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/storage/memory"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

var (
	alice = chat.User{ID: 1, Username: "alice"}
	bob   = chat.User{ID: 2, Username: "bob"}
	carol = chat.User{ID: 3, Username: "carol"}
)

// newTestStore seeds alice, bob and carol, with conversation 5 between alice and bob.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for _, u := range []chat.User{alice, bob, carol} {
		store.PutUser(u)
	}
	if _, err := store.PutConversation(5, alice.ID, bob.ID); err != nil {
		t.Fatalf("PutConversation() error = %v", err)
	}
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, store chat.Store, opts chat.Options) *chat.Hub {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	hub := chat.NewHub(store, opts)
	t.Cleanup(hub.Close)
	return hub
}

// connect opens and activates a session for u.
func connect(t *testing.T, hub *chat.Hub, u chat.User) (*chat.Session, *mockConn) {
	t.Helper()
	conn := newMockConn("127.0.0.1:1234")
	s := hub.NewSession(conn, u)
	if err := hub.Connect(context.Background(), s); err != nil {
		t.Fatalf("Connect(%s) error = %v", u.Username, err)
	}
	return s, conn
}

// deliver feeds one client event through the session's receive loop.
func deliver(t *testing.T, hub *chat.Hub, s *chat.Session, conn *mockConn, name string, payload any) {
	t.Helper()
	data, err := protocol.Encode(name, payload)
	if err != nil {
		t.Fatalf("Encode(%s) error = %v", name, err)
	}
	deliverRaw(hub, s, conn, data)
}

func deliverRaw(hub *chat.Hub, s *chat.Session, conn *mockConn, data []byte) {
	conn.readCh <- data
	hub.HandleClient(context.Background(), s)
}

// drain returns every frame queued on s so far.
func drain(t *testing.T, s *chat.Session) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for {
		select {
		case data := <-s.Outgoing():
			ev, err := protocol.Decode(data)
			if err != nil {
				t.Fatalf("Decode(%s) error = %v", data, err)
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func names(events []protocol.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Name)
	}
	return out
}

func only(t *testing.T, events []protocol.Event, name string) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for _, ev := range events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func bind[T any](t *testing.T, ev protocol.Event) T {
	t.Helper()
	var v T
	if err := ev.Bind(&v); err != nil {
		t.Fatalf("Bind(%s) error = %v", ev.Name, err)
	}
	return v
}

// recordingSink collects published domain events.
type recordingSink struct {
	mu     sync.Mutex
	events []chat.DomainEvent
	err    error
}

func (r *recordingSink) Publish(_ context.Context, ev chat.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Events() []chat.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.DomainEvent(nil), r.events...)
}

// failingStore fails the operations named in fail with errBoom.
type failingStore struct {
	chat.Store
	fail map[string]bool
}

var errBoom = errors.New("connection refused")

func (f *failingStore) FindConversationsForUser(ctx context.Context, id chat.UserID) ([]chat.ConversationSummary, error) {
	if f.fail["list"] {
		return nil, errBoom
	}
	return f.Store.FindConversationsForUser(ctx, id)
}

func (f *failingStore) CreateMessage(ctx context.Context, convID chat.ConversationID, sender chat.UserID, content string, typ chat.MessageType) (*chat.Message, error) {
	if f.fail["create"] {
		return nil, errBoom
	}
	return f.Store.CreateMessage(ctx, convID, sender, content, typ)
}

func (f *failingStore) TouchConversation(ctx context.Context, id chat.ConversationID) error {
	if f.fail["touch"] {
		return errBoom
	}
	return f.Store.TouchConversation(ctx, id)
}
