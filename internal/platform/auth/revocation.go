package auth

import (
	"sync"
	"time"
)

// cutoffRetention controls how long a user-wide revocation cutoff is
// kept. It must exceed the longest session TTL the issuer hands out so
// that every token issued before the cutoff has expired before the
// cutoff itself is dropped.
const cutoffRetention = 7 * 24 * time.Hour

// TokenRevocationStore tracks sessions invalidated before their natural
// expiry. Single logouts are recorded by JTI; account deletion records a
// per-user cutoff instant so that every token issued to that user up to
// the cutoff is rejected, including tokens the store has never seen.
// Safe for concurrent use.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	byJTI   map[string]time.Time // jti -> token expiry
	cutoffs map[string]time.Time // patient uid -> revoked-before instant
	done    chan struct{}
	once    sync.Once
}

// NewTokenRevocationStore creates a store and starts a background sweep
// that drops entries no live token can match anymore.
func NewTokenRevocationStore() *TokenRevocationStore {
	s := &TokenRevocationStore{
		byJTI:   make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Revoke invalidates a single session token. The entry is retained
// until expiresAt, after which the token is dead on its own.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	s.byJTI[jti] = expiresAt
	s.mu.Unlock()
}

// RevokeAllForUser invalidates every session token issued to the user
// before now. Tokens issued after the call remain valid, so a patient
// can sign in again immediately.
func (s *TokenRevocationStore) RevokeAllForUser(userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	s.cutoffs[userID] = time.Now()
	s.mu.Unlock()
}

// IsRevoked reports whether the presented claims belong to a revoked
// session, either individually by JTI or through a user-wide cutoff.
// Claims without an issued-at timestamp fail closed under a cutoff.
func (s *TokenRevocationStore) IsRevoked(c *Claims) bool {
	if c == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.byJTI[c.ID]; ok && c.ID != "" {
		return true
	}
	cutoff, ok := s.cutoffs[c.Subject]
	if !ok {
		return false
	}
	if c.IssuedAt == nil {
		return true
	}
	return !c.IssuedAt.Time.After(cutoff)
}

// Count returns the number of individually revoked tokens currently
// tracked.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byJTI)
}

// Close stops the background sweep. Safe to call more than once.
func (s *TokenRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *TokenRevocationStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep drops JTI entries for tokens past their expiry and cutoffs old
// enough that no token issued before them can still be alive.
func (s *TokenRevocationStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, expiresAt := range s.byJTI {
		if now.After(expiresAt) {
			delete(s.byJTI, jti)
		}
	}
	for uid, cutoff := range s.cutoffs {
		if now.Sub(cutoff) > cutoffRetention {
			delete(s.cutoffs, uid)
		}
	}
}
