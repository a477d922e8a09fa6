// Package auth issues and verifies the bearer tokens that open a chat connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gbrlsnchs/jwt/v3"

	"github.com/omochice/realtime-chat/internal/chat"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload. The subject carries the user id.
type Claims struct {
	jwt.Payload
	Username string `json:"username,omitempty"`
}

// TokenService signs and verifies HS256 tokens.
type TokenService struct {
	alg    *jwt.HMACSHA
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. The secret must not be empty.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		alg:    jwt.NewHS256([]byte(secret)),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of t using now as its time source.
func (t *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *t
	cp.now = now
	return &cp
}

// Issue signs a token for u.
func (t *TokenService) Issue(u chat.User) (string, error) {
	now := t.now()
	claims := Claims{
		Payload: jwt.Payload{
			Issuer:         t.issuer,
			Subject:        strconv.FormatInt(int64(u.ID), 10),
			IssuedAt:       jwt.NumericDate(now),
			ExpirationTime: jwt.NumericDate(now.Add(t.ttl)),
		},
		Username: u.Username,
	}
	token, err := jwt.Sign(claims, t.alg)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(token), nil
}

// Verify checks signature, issuer and expiry and returns the user id in the subject.
func (t *TokenService) Verify(token string) (chat.UserID, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: missing token", chat.ErrAuthentication)
	}
	var claims Claims
	validate := jwt.ValidatePayload(&claims.Payload,
		jwt.ExpirationTimeValidator(t.now()),
		jwt.IssuerValidator(t.issuer),
	)
	if _, err := jwt.Verify([]byte(token), t.alg, &claims, validate); err != nil {
		return 0, fmt.Errorf("%w: %v", chat.ErrAuthentication, err)
	}
	if claims.ExpirationTime == nil {
		return 0, fmt.Errorf("%w: token has no expiry", chat.ErrAuthentication)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", chat.ErrAuthentication, claims.Subject)
	}
	return chat.UserID(id), nil
}

// TokenFromRequest extracts the bearer credential from the Authorization
// header, falling back to the token query parameter for browser clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
