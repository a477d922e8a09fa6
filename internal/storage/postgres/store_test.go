package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/storage/postgres"
)

// openStore connects to CHAT_TEST_DB_URL and skips the test when it is unset.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("CHAT_TEST_DB_URL")
	if dsn == "" {
		t.Skip("CHAT_TEST_DB_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return postgres.NewStore(pool)
}

func createUsers(t *testing.T, s *postgres.Store, n int) []chat.UserID {
	t.Helper()
	suffix := time.Now().UnixNano()
	ids := make([]chat.UserID, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.CreateUser(context.Background(), fmt.Sprintf("user-%d-%d", suffix, i), "")
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestStore_Ping(t *testing.T) {
	s := openStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestStore_FindOrCreateConversation_Concurrent(t *testing.T) {
	s := openStore(t)
	users := createUsers(t, s, 2)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[chat.ConversationID]struct{}{}
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := users[0], users[1]
			if i%2 == 1 {
				a, b = b, a
			}
			conv, ok, err := s.FindOrCreateConversation(ctx, a, b)
			if err != nil {
				t.Errorf("FindOrCreateConversation() error = %v", err)
				return
			}
			mu.Lock()
			ids[conv.ID] = struct{}{}
			if ok {
				created++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Errorf("got %d distinct conversations, want 1", len(ids))
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}

func TestStore_MessageLifecycle(t *testing.T) {
	s := openStore(t)
	users := createUsers(t, s, 3)
	ctx := context.Background()

	conv, _, err := s.FindOrCreateConversation(ctx, users[1], users[0])
	if err != nil {
		t.Fatal(err)
	}
	if conv.User1ID >= conv.User2ID {
		t.Errorf("pair not canonical: (%d, %d)", conv.User1ID, conv.User2ID)
	}

	msg, err := s.CreateMessage(ctx, conv.ID, users[0], "hi", chat.MessageTypeText)
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if msg.IsRead || msg.Sender.ID != users[0] {
		t.Errorf("message = %+v", msg)
	}
	if _, err := s.CreateMessage(ctx, 0, users[0], "hi", chat.MessageTypeText); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("CreateMessage(unknown) error = %v, want ErrNotFound", err)
	}

	if n, err := s.MarkMessagesRead(ctx, conv.ID, users[0], nil); err != nil || n != 0 {
		t.Errorf("sender marking own message = %d, %v; want 0", n, err)
	}
	if n, err := s.MarkMessagesRead(ctx, conv.ID, users[1], &msg.ID); err != nil || n != 1 {
		t.Errorf("MarkMessagesRead() = %d, %v; want 1", n, err)
	}
	if n, _ := s.MarkMessagesRead(ctx, conv.ID, users[1], nil); n != 0 {
		t.Errorf("repeat MarkMessagesRead() = %d, want 0", n)
	}
	if n, err := s.MarkMessagesRead(ctx, conv.ID, users[1], &msg.ID); err != nil || n != 0 {
		t.Errorf("repeat MarkMessagesRead(msg) = %d, %v; want 0, nil", n, err)
	}
	unknown := msg.ID + 1000
	if _, err := s.MarkMessagesRead(ctx, conv.ID, users[1], &unknown); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("MarkMessagesRead(unknown) error = %v, want ErrNotFound", err)
	}

	if err := s.TouchConversation(ctx, conv.ID); err != nil {
		t.Errorf("TouchConversation() error = %v", err)
	}
	list, err := s.FindConversationsForUser(ctx, users[1])
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].OtherUser.ID != users[0] {
		t.Fatalf("list = %+v", list)
	}
	if lm := list[0].LastMessage; lm == nil || lm.Content != "hi" || !lm.IsRead {
		t.Errorf("last message = %+v", lm)
	}
	if list, _ := s.FindConversationsForUser(ctx, users[2]); len(list) != 0 {
		t.Errorf("unrelated user sees %d conversations", len(list))
	}
}

func TestStore_NotFound(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.FindConversation(ctx, -1); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("FindConversation() error = %v", err)
	}
	if _, err := s.FindUserProjection(ctx, -1); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("FindUserProjection() error = %v", err)
	}
	if err := s.TouchConversation(ctx, -1); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("TouchConversation() error = %v", err)
	}
}
