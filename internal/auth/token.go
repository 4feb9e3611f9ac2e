package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no credentials are available.
var ErrNoToken = errors.New("no access token")

// TokenSource supplies bearer tokens for API calls. Invalidate is called after the
// server rejects a token so the next call fetches a fresh one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

func (StaticToken) Invalidate() {}

// RefreshFunc obtains a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshingSource caches a JWT access token and refreshes it shortly before its exp
// claim, or immediately after Invalidate. The token signature is not verified here;
// that is the server's job.
type RefreshingSource struct {
	refresh RefreshFunc
	leeway  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewRefreshingSource seeds the source with an optional initial token.
func NewRefreshingSource(initial string, refresh RefreshFunc, leeway time.Duration) *RefreshingSource {
	s := &RefreshingSource{refresh: refresh, leeway: leeway, now: time.Now}
	if initial != "" {
		s.token = initial
		s.expires = expiryOf(initial)
	}
	return s
}

func (s *RefreshingSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !s.expiringLocked() {
		return s.token, nil
	}
	if s.refresh == nil {
		if s.token == "" {
			return "", ErrNoToken
		}
		return s.token, nil
	}
	token, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = expiryOf(token)
	return token, nil
}

func (s *RefreshingSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expires = time.Time{}
}

func (s *RefreshingSource) expiringLocked() bool {
	if s.expires.IsZero() {
		return false
	}
	return !s.now().Add(s.leeway).Before(s.expires)
}

// expiryOf reads the exp claim; opaque or exp-less tokens never expire locally.
func expiryOf(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
