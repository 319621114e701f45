package authkit

import "errors"

// Error taxonomy for the trust boundary. Renewable expiry is recovered
// inside the request pipeline; everything else surfaces to the caller.
var (
	// ErrTokenExpired marks an access token that is expired but renewable.
	// Verifiers return it so HTTP layers can answer with the machine-readable
	// TOKEN_EXPIRED code instead of a generic unauthorized response.
	ErrTokenExpired = errors.New("authkit: token expired")

	// ErrSessionTerminated means credential renewal failed or was not
	// applicable; the stored pair has been cleared and the user must
	// re-authenticate.
	ErrSessionTerminated = errors.New("authkit: session terminated")

	// ErrStateNotFound means the OAuth state nonce does not exist or was
	// already consumed.
	ErrStateNotFound = errors.New("authkit: oauth state not found")

	// ErrStateExpired means the nonce exists but is past its expiry.
	ErrStateExpired = errors.New("authkit: oauth state expired")

	// ErrStateProviderMismatch means the nonce was issued for a different
	// provider than the one presented at validation.
	ErrStateProviderMismatch = errors.New("authkit: oauth state provider mismatch")

	// ErrUnknownProvider means the provider is not in the configured set.
	ErrUnknownProvider = errors.New("authkit: unknown oauth provider")
)
