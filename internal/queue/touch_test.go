package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/queue"
	"github.com/omochice/realtime-chat/internal/storage/memory"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

// fakeEnqueuer records enqueued jobs.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToucher_Touch(t *testing.T) {
	client := &fakeEnqueuer{}
	toucher := queue.NewToucher(client)

	if err := toucher.Touch(context.Background(), 5); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if len(client.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(client.jobs))
	}
	job := client.jobs[0]
	if job.Type != queue.TypeTouchConversation {
		t.Errorf("Type = %q", job.Type)
	}
	var payload map[string]int64
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["conversationId"] != 5 {
		t.Errorf("payload = %s", job.Payload)
	}
	if job.Queue != queue.QueueChat || job.Dedup != time.Second || job.MaxRetry != 3 {
		t.Errorf("job = %+v", job)
	}
}

func TestToucher_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"duplicate is fine", queue.ErrDuplicate, false},
		{"redis down", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toucher := queue.NewToucher(&fakeEnqueuer{err: tt.err})
			if err := toucher.Touch(context.Background(), 5); (err != nil) != tt.wantErr {
				t.Errorf("Touch() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTouchHandler(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore(memory.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	conv, err := store.PutConversation(5, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	handler := queue.TouchHandler(store, discard())

	if err := handler(context.Background(), []byte(`{"conversationId":5}`)); err != nil {
		t.Fatalf("handler() error = %v", err)
	}
	got, _ := store.FindConversation(context.Background(), 5)
	if !got.UpdatedAt.After(conv.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, conv.UpdatedAt)
	}

	for _, payload := range []string{`{"conversationId":404}`, `garbage`} {
		if err := handler(context.Background(), []byte(payload)); err != nil {
			t.Errorf("handler(%s) error = %v, want nil", payload, err)
		}
	}
}

func TestToucher_WiredIntoHub(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(chat.User{ID: 1, Username: "alice"})
	store.PutUser(chat.User{ID: 2, Username: "bob"})
	if _, err := store.PutConversation(5, 1, 2); err != nil {
		t.Fatal(err)
	}
	client := &fakeEnqueuer{}
	hub := chat.NewHub(store, chat.Options{Logger: discard(), Toucher: queue.NewToucher(client)})
	defer hub.Close()

	s := hub.NewSession(nil, chat.User{ID: 1, Username: "alice"})
	if err := hub.Connect(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	req := protocol.SendMessage{ConversationID: 5, Content: "hi"}
	if _, err := hub.Dispatcher().SendMessage(context.Background(), s, req); err != nil {
		t.Fatal(err)
	}
	if len(client.jobs) != 1 {
		t.Errorf("enqueued %d touch jobs, want 1", len(client.jobs))
	}
}
