package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/omochice/realtime-chat/internal/chat"
)

// Authenticator resolves a bearer token to the user projection behind it.
type Authenticator struct {
	tokens *TokenService
	users  chat.Store
}

// NewAuthenticator creates an Authenticator looking users up in store.
func NewAuthenticator(tokens *TokenService, store chat.Store) *Authenticator {
	return &Authenticator{tokens: tokens, users: store}
}

var _ chat.Authenticator = (*Authenticator)(nil)

// Authenticate returns an ErrAuthentication error for bad tokens and unknown
// users, and an ErrPersistence error when the lookup itself failed.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*chat.User, error) {
	id, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.FindUserProjection(ctx, id)
	if errors.Is(err, chat.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %d", chat.ErrAuthentication, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user: %v", chat.ErrPersistence, err)
	}
	return u, nil
}
