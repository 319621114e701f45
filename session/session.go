// Package session provides the owned credential object for one logged-in
// session.
//
// The access/refresh pair is process-wide singleton state; funneling every
// mutation through this object keeps the replacement atomic and gives the
// request pipeline a single injection point instead of ad hoc global
// writes.
package session

import (
	"context"
	"fmt"
	"sync"

	authkit "github.com/atlas-pt/authkit-go"
)

// Backend persists the credential pair outside process memory (secure
// storage bridge, keychain, file). Implementations are optional; without
// one the session is memory-only.
type Backend interface {
	// Load returns the persisted pair, or an empty Credential if none.
	Load(ctx context.Context) (authkit.Credential, error)

	// Save persists the pair as a unit.
	Save(ctx context.Context, cred authkit.Credential) error

	// Clear removes the persisted pair.
	Clear(ctx context.Context) error
}

// Session implements authkit.CredentialStore with an in-memory pair and an
// optional persistence backend.
type Session struct {
	mu      sync.RWMutex
	cred    authkit.Credential
	loaded  bool
	backend Backend
}

// compile-time check
var _ authkit.CredentialStore = (*Session)(nil)

// Option configures the Session.
type Option func(*Session)

// WithBackend sets a persistence backend. The pair is read from it on
// first Load and written through on every Save and Clear.
func WithBackend(b Backend) Option {
	return func(s *Session) { s.backend = b }
}

// New creates a new Session.
func New(opts ...Option) *Session {
	s := &Session{}
	for _, o := range opts {
		o(s)
	}
	if s.backend == nil {
		s.loaded = true
	}
	return s
}

// Load returns the current credential pair.
func (s *Session) Load(ctx context.Context) (authkit.Credential, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.cred, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		cred, err := s.backend.Load(ctx)
		if err != nil {
			return authkit.Credential{}, fmt.Errorf("authkit/session: load: %w", err)
		}
		s.cred = cred
		s.loaded = true
	}
	return s.cred, nil
}

// Save atomically replaces the stored pair and writes it through to the
// backend when one is configured.
func (s *Session) Save(ctx context.Context, cred authkit.Credential) error {
	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Save(ctx, cred); err != nil {
			return fmt.Errorf("authkit/session: save: %w", err)
		}
	}
	return nil
}

// Clear removes the stored pair in memory and in the backend.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cred = authkit.Credential{}
	s.loaded = true
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Clear(ctx); err != nil {
			return fmt.Errorf("authkit/session: clear: %w", err)
		}
	}
	return nil
}
