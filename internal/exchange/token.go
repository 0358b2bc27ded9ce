package exchange

import (
	"context"
	"sync"
	"time"
)

// expirySkew is subtracted from the token's expiry when deciding freshness,
// so a token is never presented in the last moments of its life.
const expirySkew = 10 * time.Second

// TokenStore holds the bearer token shared by every caller of one client.
// Writes are serialized; Get treats a token within expirySkew of its expiry
// as already expired.
type TokenStore struct {
	mu        sync.RWMutex
	value     string
	expiresAt time.Time
	now       func() time.Time // injectable for tests
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{now: time.Now}
}

// Get returns the token and true if one is set and not about to expire.
func (s *TokenStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value == "" || !s.now().Before(s.expiresAt.Add(-expirySkew)) {
		return "", false
	}
	return s.value, true
}

// Set stores a token with its expiry.
func (s *TokenStore) Set(value string, expiresAt time.Time) {
	s.mu.Lock()
	s.value = value
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Invalidate clears the token. Safe to call repeatedly.
func (s *TokenStore) Invalidate() {
	s.mu.Lock()
	s.value = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// CredentialProvider resolves the (login, password) pair on demand, so
// callers can plug in secret stores or rotating credentials. Implementations
// must never log what they return.
type CredentialProvider interface {
	Credentials(ctx context.Context) (login, password string, err error)
}

// StaticCredentials is the trivial CredentialProvider for a fixed pair.
type StaticCredentials struct {
	Login    string
	Password string
}

// Credentials implements CredentialProvider.
func (s StaticCredentials) Credentials(context.Context) (string, string, error) {
	return s.Login, s.Password, nil
}
