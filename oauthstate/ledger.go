// Package oauthstate issues and single-use-validates the anti-forgery
// nonces that bind a third-party login redirect to the request that
// started it.
//
// A nonce is spendable exactly once, only before expiry, only for its
// provider. Atomicity of validate-and-consume is delegated to the backing
// StateStore; the ledger adds provider policy, nonce generation and the
// background expiry sweep.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/atlas-pt/authkit-go/audit"
	"github.com/atlas-pt/authkit-go/metrics"
)

// nonceBytes is the entropy of an issued nonce. 32 bytes comfortably
// clears the 128-bit floor for unguessable single-use values.
const nonceBytes = 32

// Ledger issues and consumes OAuth state nonces.
type Ledger struct {
	store     authkit.StateStore
	ttl       time.Duration
	providers map[string]bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditor   *audit.Logger

	sweepEvery time.Duration
	sweepStop  chan struct{}
	sweepDone  chan struct{}
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithTTL sets the nonce lifetime. Default: authkit.DefaultStateTTL.
func WithTTL(d time.Duration) Option {
	return func(l *Ledger) { l.ttl = d }
}

// WithProviders sets the allowed provider set.
// Default: authkit.DefaultProviders.
func WithProviders(providers ...string) Option {
	return func(l *Ledger) {
		l.providers = make(map[string]bool, len(providers))
		for _, p := range providers {
			l.providers[p] = true
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.logger = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(l *Ledger) { l.auditor = a }
}

// WithSweep starts a background sweep removing expired records every
// interval. Expiry is enforced at validation time regardless; the sweep
// only bounds dead-record growth. Stop the sweep with Close.
func WithSweep(interval time.Duration) Option {
	return func(l *Ledger) { l.sweepEvery = interval }
}

// New creates a Ledger over the given store.
func New(store authkit.StateStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		ttl:   authkit.DefaultStateTTL,
	}
	for _, o := range opts {
		o(l)
	}
	if l.providers == nil {
		l.providers = make(map[string]bool, len(authkit.DefaultProviders))
		for _, p := range authkit.DefaultProviders {
			l.providers[p] = true
		}
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	if l.sweepEvery > 0 {
		l.sweepStop = make(chan struct{})
		l.sweepDone = make(chan struct{})
		go l.sweep()
	}
	return l
}

// Issue generates a nonce for the provider, persists it with the
// configured TTL and returns it for embedding in the outbound redirect.
func (l *Ledger) Issue(ctx context.Context, provider string) (string, error) {
	if !l.providers[provider] {
		return "", fmt.Errorf("authkit/oauthstate: provider %q: %w", provider, authkit.ErrUnknownProvider)
	}

	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authkit/oauthstate: generate nonce: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now().UTC()
	rec := authkit.StateRecord{
		Nonce:     nonce,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("authkit/oauthstate: persist state: %w", err)
	}

	if l.metrics != nil {
		l.metrics.RecordStateIssued(provider)
	}
	if l.auditor != nil {
		l.auditor.LogCtx(ctx, audit.Event{
			Action:   audit.ActionStateIssued,
			Provider: provider,
			Result:   audit.ResultSuccess,
		})
	}
	return nonce, nil
}

// ValidateAndConsume spends the nonce: it must exist, be unexpired, and
// match the provider when one is given. Success deletes the record; any
// failure leaves the store unmodified and reports its specific reason via
// authkit.ErrStateNotFound, authkit.ErrStateExpired or
// authkit.ErrStateProviderMismatch. Concurrent validations of the same
// nonce resolve with exactly one success.
func (l *Ledger) ValidateAndConsume(ctx context.Context, nonce, provider string) error {
	_, err := l.store.Consume(ctx, nonce, provider, time.Now().UTC())
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, authkit.ErrStateNotFound):
			result = "not_found"
		case errors.Is(err, authkit.ErrStateExpired):
			result = "expired"
		case errors.Is(err, authkit.ErrStateProviderMismatch):
			result = "provider_mismatch"
		}
		l.record(ctx, provider, result)
		return fmt.Errorf("authkit/oauthstate: %w", err)
	}

	l.record(ctx, provider, "consumed")
	return nil
}

func (l *Ledger) record(ctx context.Context, provider, result string) {
	if l.metrics != nil {
		l.metrics.RecordStateValidation(result)
	}
	if l.auditor != nil {
		res := audit.ResultSuccess
		if result != "consumed" {
			res = audit.ResultFailure
		}
		l.auditor.LogCtx(ctx, audit.Event{
			Action:   audit.ActionStateConsumed,
			Provider: provider,
			Result:   res,
			Details:  result,
		})
	}
}

func (l *Ledger) sweep() {
	defer close(l.sweepDone)
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := l.store.PurgeExpired(context.Background(), time.Now().UTC())
			if err != nil {
				l.logger.Warn("state sweep failed", "error", err)
				continue
			}
			if n > 0 {
				if l.metrics != nil {
					l.metrics.RecordStatesPurged(n)
				}
				l.logger.Debug("state sweep", "purged", n)
			}
		case <-l.sweepStop:
			return
		}
	}
}

// Close stops the background sweep, if one is running.
func (l *Ledger) Close() error {
	if l.sweepStop != nil {
		close(l.sweepStop)
		<-l.sweepDone
		l.sweepStop = nil
	}
	return nil
}
