package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
)

// DefaultUserTTL is how long a user projection stays cached.
const DefaultUserTTL = 5 * time.Minute

// UserStore decorates a chat.Store with a read-through cache for user
// projections. Every other call goes straight to the wrapped store.
type UserStore struct {
	chat.Store
	cache  Backend
	ttl    time.Duration
	logger *slog.Logger
}

// NewUserStore wraps store. A non-positive ttl selects DefaultUserTTL.
func NewUserStore(store chat.Store, c Backend, ttl time.Duration, logger *slog.Logger) *UserStore {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{Store: store, cache: c, ttl: ttl, logger: logger}
}

// UserKey is the cache key of a user projection.
func UserKey(id chat.UserID) string {
	return fmt.Sprintf("user:%d", id)
}

// FindUserProjection serves from the cache and falls back to the store.
// Cache failures degrade to a store read.
func (s *UserStore) FindUserProjection(ctx context.Context, id chat.UserID) (*chat.User, error) {
	key := UserKey(id)
	raw, found, err := s.cache.Load(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("user cache load failed", "user_id", id, "error", err)
	case found:
		var u chat.User
		if jerr := json.Unmarshal(raw, &u); jerr == nil {
			return &u, nil
		}
		s.logger.Warn("discarding corrupt cached user", "user_id", id)
	}

	u, err := s.Store.FindUserProjection(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, jerr := json.Marshal(u); jerr == nil {
		if serr := s.cache.Save(ctx, key, data, s.ttl); serr != nil {
			s.logger.Warn("user cache save failed", "user_id", id, "error", serr)
		}
	}
	return u, nil
}

// Invalidate drops the cached projection of id.
func (s *UserStore) Invalidate(ctx context.Context, id chat.UserID) error {
	return s.cache.Forget(ctx, UserKey(id))
}
