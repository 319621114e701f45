package authkit

import (
	"context"
	"time"
)

// TokenVerifier verifies access tokens and extracts claims.
// Implementations: jwks/ (JWT via JWKS), fake/ (testing).
//
// An expired-but-otherwise-valid token must be reported as
// (nil, ErrTokenExpired) so callers can distinguish the renewable case
// from an invalid token.
type TokenVerifier interface {
	// Verify validates the token and returns the extracted claims.
	Verify(ctx context.Context, token string) (*Claims, error)
}

// CredentialStore holds the session's access/refresh token pair.
// Implementations: session/ (owned session object), fake/ (testing).
//
// Save replaces the whole pair atomically; Clear removes it. Only the
// request pipeline's renewal-success path should call Save.
type CredentialStore interface {
	// Load returns the current credential pair. An empty Credential with a
	// nil error means no session is held.
	Load(ctx context.Context) (Credential, error)

	// Save atomically replaces the stored pair.
	Save(ctx context.Context, cred Credential) error

	// Clear removes the stored pair.
	Clear(ctx context.Context) error
}

// StateStore is the durable keyed store backing the OAuth state ledger.
// Implementations: postgres/ (relational table), fake/ (in-memory).
type StateStore interface {
	// Insert persists a new state record. The nonce must be unique among
	// live records.
	Insert(ctx context.Context, rec StateRecord) error

	// Consume atomically looks up and deletes the record for nonce,
	// provided it is unexpired at now and, when provider is non-empty,
	// bound to that provider. Failures are reported with ErrStateNotFound,
	// ErrStateExpired or ErrStateProviderMismatch and leave the store
	// unmodified. Concurrent Consume calls for the same nonce resolve with
	// exactly one success.
	Consume(ctx context.Context, nonce, provider string, now time.Time) (StateRecord, error)

	// PurgeExpired deletes every record expired at now and returns the
	// number removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
