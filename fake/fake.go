// Package fake provides in-memory implementations of the authkit
// interfaces for testing.
//
// Use these in unit tests to avoid network calls and external
// dependencies.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	authkit "github.com/atlas-pt/authkit-go"
)

// CredentialStore is an in-memory authkit.CredentialStore.
type CredentialStore struct {
	mu   sync.RWMutex
	cred authkit.Credential

	// Saves and Clears count mutations for assertions.
	Saves  int
	Clears int
}

// compile-time checks
var (
	_ authkit.CredentialStore = (*CredentialStore)(nil)
	_ authkit.StateStore      = (*StateStore)(nil)
	_ authkit.TokenVerifier   = (*Verifier)(nil)
)

// NewCredentialStore creates a store holding the given pair.
func NewCredentialStore(access, refresh string) *CredentialStore {
	return &CredentialStore{
		cred: authkit.Credential{AccessToken: access, RefreshToken: refresh},
	}
}

// Load returns the current pair.
func (s *CredentialStore) Load(ctx context.Context) (authkit.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, nil
}

// Save replaces the pair.
func (s *CredentialStore) Save(ctx context.Context, cred authkit.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.Saves++
	return nil
}

// Clear removes the pair.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = authkit.Credential{}
	s.Clears++
	return nil
}

// StateStore is an in-memory authkit.StateStore with the same atomic
// consume semantics a relational backend provides.
type StateStore struct {
	mu      sync.Mutex
	records map[string]authkit.StateRecord
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{records: make(map[string]authkit.StateRecord)}
}

// Insert persists a record; the nonce must be unique.
func (s *StateStore) Insert(ctx context.Context, rec authkit.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Nonce]; exists {
		return fmt.Errorf("fake: duplicate nonce %q", rec.Nonce)
	}
	s.records[rec.Nonce] = rec
	return nil
}

// Consume atomically looks up and deletes the record when it is live and
// provider-matched; failed lookups leave the store unmodified.
func (s *StateStore) Consume(ctx context.Context, nonce, provider string, now time.Time) (authkit.StateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[nonce]
	if !ok {
		return authkit.StateRecord{}, authkit.ErrStateNotFound
	}
	if rec.Expired(now) {
		return authkit.StateRecord{}, authkit.ErrStateExpired
	}
	if provider != "" && rec.Provider != provider {
		return authkit.StateRecord{}, authkit.ErrStateProviderMismatch
	}

	delete(s.records, nonce)
	return rec, nil
}

// PurgeExpired removes every record expired at now.
func (s *StateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for nonce, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, nonce)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live records, for assertions.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Verifier is a static authkit.TokenVerifier mapping known token strings
// to claims.
type Verifier struct {
	mu      sync.RWMutex
	claims  map[string]*authkit.Claims
	expired map[string]bool
}

// VerifierOption configures the fake verifier.
type VerifierOption func(*Verifier)

// WithToken registers a valid token with its claims.
func WithToken(token string, claims *authkit.Claims) VerifierOption {
	return func(v *Verifier) { v.claims[token] = claims }
}

// WithExpiredToken registers a token that verifies as expired.
func WithExpiredToken(token string) VerifierOption {
	return func(v *Verifier) { v.expired[token] = true }
}

// NewVerifier creates a fake verifier.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		claims:  make(map[string]*authkit.Claims),
		expired: make(map[string]bool),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify resolves the token against the registered sets.
func (v *Verifier) Verify(ctx context.Context, token string) (*authkit.Claims, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.expired[token] {
		return nil, fmt.Errorf("fake: %w", authkit.ErrTokenExpired)
	}
	if claims, ok := v.claims[token]; ok {
		return claims, nil
	}
	return nil, fmt.Errorf("fake: unknown token")
}
