package cache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/omochice/realtime-chat/internal/cache"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/storage/memory"
)

// mapCache is an in-memory cache.Backend for tests.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	loadErr error
	saveErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapCache) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Save(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapCache) Forget(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// countingStore counts user projection lookups.
type countingStore struct {
	chat.Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) FindUserProjection(ctx context.Context, id chat.UserID) (*chat.User, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Store.FindUserProjection(ctx, id)
}

func newFixture() (*countingStore, *mapCache, *cache.UserStore) {
	mem := memory.NewStore()
	mem.PutUser(chat.User{ID: 1, Username: "alice", Avatar: "a.png"})
	store := &countingStore{Store: mem}
	c := newMapCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store, c, cache.NewUserStore(store, c, time.Minute, logger)
}

func TestUserStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store, c, users := newFixture()

	for i := 0; i < 3; i++ {
		u, err := users.FindUserProjection(ctx, 1)
		if err != nil {
			t.Fatalf("FindUserProjection() error = %v", err)
		}
		if u.Username != "alice" || u.Avatar != "a.png" {
			t.Errorf("user = %+v", u)
		}
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
	if got := c.ttls[cache.UserKey(1)]; got != time.Minute {
		t.Errorf("ttl = %v, want 1m", got)
	}
}

func TestUserStore_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	store, c, users := newFixture()

	for i := 0; i < 2; i++ {
		if _, err := users.FindUserProjection(ctx, 42); !errors.Is(err, chat.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2", store.calls)
	}
	if len(c.data) != 0 {
		t.Errorf("cache holds %v", c.data)
	}
}

func TestUserStore_CacheFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	store, c, users := newFixture()
	c.loadErr = errors.New("dial tcp: connection refused")
	c.saveErr = errors.New("dial tcp: connection refused")

	u, err := users.FindUserProjection(ctx, 1)
	if err != nil || u.Username != "alice" {
		t.Fatalf("FindUserProjection() = %+v, %v", u, err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestUserStore_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store, c, users := newFixture()
	c.data[cache.UserKey(1)] = []byte("{not json")

	u, err := users.FindUserProjection(ctx, 1)
	if err != nil || u.Username != "alice" {
		t.Fatalf("FindUserProjection() = %+v, %v", u, err)
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}

func TestUserStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	store, _, users := newFixture()

	if _, err := users.FindUserProjection(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := users.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := users.FindUserProjection(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2", store.calls)
	}
}

func TestUserStore_DelegatesOtherCalls(t *testing.T) {
	mem := memory.NewStore()
	mem.PutUser(chat.User{ID: 1, Username: "alice"})
	mem.PutUser(chat.User{ID: 2, Username: "bob"})
	users := cache.NewUserStore(mem, newMapCache(), 0, nil)

	conv, created, err := users.FindOrCreateConversation(context.Background(), 2, 1)
	if err != nil || !created || conv.User1ID != 1 {
		t.Errorf("FindOrCreateConversation() = %+v, %v, %v", conv, created, err)
	}
}

func TestUserKey(t *testing.T) {
	if got := cache.UserKey(17); got != "user:17" {
		t.Errorf("UserKey(17) = %q", got)
	}
}
