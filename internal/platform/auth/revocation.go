package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore tracks tokens that must no longer be accepted. Tokens are
// revoked individually by jti (logout) or per user by issue time (role
// change): every token of the user issued before the cut-off is rejected.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	RevokeUser(ctx context.Context, userID string, at time.Time) error
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

// MemoryRevocationStore keeps revocations in process memory. Entries are
// dropped once the token they describe would have expired anyway.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	tokens  map[string]time.Time // jti -> token expiry
	users   map[string]time.Time // userID -> cut-off
	retain  time.Duration
	done    chan struct{}
	closeMu sync.Once
}

// NewMemoryRevocationStore creates a store and starts a background goroutine
// that cleans up expired entries every 5 minutes. retain is how long a
// per-user cut-off is kept; it should be at least the token lifetime.
func NewMemoryRevocationStore(retain time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		tokens: make(map[string]time.Time),
		users:  make(map[string]time.Time),
		retain: retain,
		done:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[userID]; !ok || at.After(prev) {
		s.users[userID] = at
	}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tokens[jti]; ok {
		return true, nil
	}
	if cutoff, ok := s.users[userID]; ok && issuedBefore(issuedAt, cutoff) {
		return true, nil
	}
	return false, nil
}

// Count returns the number of individually revoked tokens.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Close stops the background cleanup goroutine. It is safe to call
// multiple times.
func (s *MemoryRevocationStore) Close() {
	s.closeMu.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

func (s *MemoryRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, jti)
		}
	}
	for userID, at := range s.users {
		if now.After(at.Add(s.retain)) {
			delete(s.users, userID)
		}
	}
}

// issuedBefore compares at the one-second resolution of the iat claim. A
// token stamped in the cut-off's own second may predate it, so it is
// revoked too; Issuer.IssueUnrevoked waits out that second for new logins.
func issuedBefore(issuedAt, cutoff time.Time) bool {
	return issuedAt.Unix() <= cutoff.Unix()
}
