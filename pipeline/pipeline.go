// Package pipeline wraps outbound HTTP calls with bearer credential
// attachment, expiry detection, single-flight renewal and one-shot replay.
//
// A response of 401 with the machine-readable TOKEN_EXPIRED code is the
// only renewable signal; any other unauthorized response tears the session
// down. Concurrent renewable failures collapse into one renewal call and
// every waiter observes its outcome.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/atlas-pt/authkit-go/audit"
	"github.com/atlas-pt/authkit-go/metrics"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Client sends authenticated requests and recovers transparently from
// credential expiry. Only the renewal-success path writes the credential
// store; the pair is always replaced as a unit.
type Client struct {
	refreshURL     string
	store          authkit.CredentialStore
	httpClient     *http.Client
	refreshTimeout time.Duration
	refreshBuffer  time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditor        *audit.Logger
	onExpired      func()

	sf singleflight.Group

	// mu guards tornDown, which makes teardown idempotent per session.
	mu       sync.Mutex
	tornDown bool
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for outbound and renewal requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Client) { p.httpClient = c }
}

// WithRefreshTimeout bounds the renewal call. Default: 10 seconds.
// A timed-out renewal is terminal, never retried.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Client) { p.refreshTimeout = d }
}

// WithRefreshBuffer enables proactive renewal: when the stored access
// token is a JWT whose exp claim falls within d, the pipeline renews
// before sending. Opaque tokens are unaffected.
func WithRefreshBuffer(d time.Duration) Option {
	return func(p *Client) { p.refreshBuffer = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Client) { p.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Client) { p.metrics = m }
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(p *Client) { p.auditor = a }
}

// OnSessionExpired injects the re-authentication signal fired when the
// session is torn down (navigation to a login surface, typically). It is
// invoked at most once per held session.
func OnSessionExpired(fn func()) Option {
	return func(p *Client) { p.onExpired = fn }
}

// New creates a pipeline client renewing against refreshURL and holding
// credentials in store.
func New(refreshURL string, store authkit.CredentialStore, opts ...Option) *Client {
	p := &Client{
		refreshURL:     refreshURL,
		store:          store,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		refreshTimeout: authkit.DefaultRefreshTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Do sends the request with the current access token attached.
//
// The caller must not set the Authorization header; the pipeline owns it.
// On a renewable expiry the request is replayed exactly once after a
// shared renewal; a second unauthorized response, a non-renewable 401 or
// a failed renewal all end the session and return an error wrapping
// authkit.ErrSessionTerminated.
func (p *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return nil, fmt.Errorf("pipeline: request already carries an Authorization header")
	}

	ctx := req.Context()
	cred, err := p.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load credential: %w", err)
	}
	if cred.Empty() {
		return nil, fmt.Errorf("pipeline: no credential held: %w", authkit.ErrSessionTerminated)
	}

	if p.refreshBuffer > 0 && expiresWithin(cred.AccessToken, p.refreshBuffer) {
		cred, err = p.renew(ctx)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if !renewableExpiry(resp) {
		// Generic unauthorized: terminal, no renewal attempt.
		p.teardown(ctx, "unauthorized", nil)
		return nil, fmt.Errorf("pipeline: unauthorized: %w", authkit.ErrSessionTerminated)
	}

	// Renewal and replay happen at most once for this request; a renewable
	// signal on the replayed response falls through to teardown below.
	renewed, err := p.renew(ctx)
	if err != nil {
		return nil, err
	}

	replayResp, err := p.replay(req, renewed.AccessToken)
	if err != nil {
		return nil, err
	}
	if replayResp.StatusCode == http.StatusUnauthorized {
		replayResp.Body.Close()
		p.teardown(ctx, "replay_unauthorized", nil)
		return nil, fmt.Errorf("pipeline: replay unauthorized: %w", authkit.ErrSessionTerminated)
	}
	return replayResp, nil
}

// replay re-sends the original request once with the renewed token. The
// request body must be rewindable (GetBody), which net/http sets for all
// byte-backed bodies.
func (p *Client) replay(req *http.Request, accessToken string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, fmt.Errorf("pipeline: request body is not rewindable, cannot replay")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("pipeline: rewind request body: %w", err)
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+accessToken)

	if p.metrics != nil {
		p.metrics.RecordReplay()
	}
	if p.auditor != nil {
		p.auditor.LogCtx(req.Context(), audit.Event{
			Action:  audit.ActionRequestReplay,
			Result:  audit.ResultSuccess,
			Details: req.Method + " " + req.URL.Path,
		})
	}

	resp, err := p.httpClient.Do(clone)
	if err != nil {
		return nil, fmt.Errorf("pipeline: replay: %w", err)
	}
	return resp, nil
}

// renew collapses concurrent renewal triggers into one in-flight call;
// every caller observes the shared outcome.
func (p *Client) renew(ctx context.Context) (authkit.Credential, error) {
	v, err, _ := p.sf.Do("renew", func() (interface{}, error) {
		// The flight outcome is shared by every waiter, so it is detached
		// from the triggering caller's cancellation: one routine going
		// away must not fail renewal for the rest. The refresh timeout
		// still bounds the call.
		return p.doRenew(context.WithoutCancel(ctx))
	})
	if err != nil {
		return authkit.Credential{}, err
	}
	return v.(authkit.Credential), nil
}

// renewalResponse is the raw JSON response from the renewal endpoint.
// refresh_token is optional; when absent the previous one is retained
// (rotation is the server's policy, not assumed here).
type renewalResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (p *Client) doRenew(ctx context.Context) (interface{}, error) {
	start := time.Now()

	cred, err := p.store.Load(ctx)
	if err != nil {
		return authkit.Credential{}, fmt.Errorf("pipeline: load credential: %w", err)
	}
	if cred.RefreshToken == "" {
		p.teardown(ctx, "missing_refresh_token", nil)
		return authkit.Credential{}, fmt.Errorf("pipeline: no refresh token held: %w", authkit.ErrSessionTerminated)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.refreshTimeout)
	defer cancel()

	payload, _ := json.Marshal(map[string]string{"refresh_token": cred.RefreshToken})
	req, err := http.NewRequestWithContext(callCtx, "POST", p.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return authkit.Credential{}, fmt.Errorf("pipeline: create renewal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "renewal_failed", err)
		return authkit.Credential{}, fmt.Errorf("pipeline: renewal request failed: %w: %w", err, authkit.ErrSessionTerminated)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "renewal_failed", err)
		return authkit.Credential{}, fmt.Errorf("pipeline: read renewal response: %w: %w", err, authkit.ErrSessionTerminated)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "renewal_rejected", nil)
		return authkit.Credential{}, fmt.Errorf("pipeline: renewal endpoint returned %d: %w", resp.StatusCode, authkit.ErrSessionTerminated)
	}

	var renewed renewalResponse
	if err := json.Unmarshal(body, &renewed); err != nil {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "renewal_failed", err)
		return authkit.Credential{}, fmt.Errorf("pipeline: decode renewal response: %w: %w", err, authkit.ErrSessionTerminated)
	}
	if renewed.AccessToken == "" {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "renewal_failed", nil)
		return authkit.Credential{}, fmt.Errorf("pipeline: empty access_token in renewal response: %w", authkit.ErrSessionTerminated)
	}

	next := authkit.Credential{
		AccessToken:  renewed.AccessToken,
		RefreshToken: renewed.RefreshToken,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	if err := p.store.Save(ctx, next); err != nil {
		p.recordRenewal(audit.ResultFailure, start)
		p.teardown(ctx, "persist_failed", err)
		return authkit.Credential{}, fmt.Errorf("pipeline: persist renewed credential: %w: %w", err, authkit.ErrSessionTerminated)
	}

	// A fresh pair is held again; the next terminal failure may signal.
	p.mu.Lock()
	p.tornDown = false
	p.mu.Unlock()

	p.recordRenewal(audit.ResultSuccess, start)
	p.logger.DebugContext(ctx, "credential renewed", "rotated", renewed.RefreshToken != "")
	return next, nil
}

// teardown clears the stored pair and fires the re-authentication signal.
// The tornDown flag makes it idempotent per held session, so a burst of
// unauthorized responses surfaces one login redirect, not many. A store
// read cannot serve as the guard: with a slow write-through backend every
// concurrent failure would still observe the pair as held.
func (p *Client) teardown(ctx context.Context, reason string, cause error) {
	p.mu.Lock()
	if p.tornDown {
		p.mu.Unlock()
		return
	}
	p.tornDown = true
	p.mu.Unlock()

	if err := p.store.Clear(ctx); err != nil {
		p.logger.WarnContext(ctx, "clear credential failed", "error", err)
	}

	if p.metrics != nil {
		p.metrics.RecordTeardown(reason)
	}
	if p.auditor != nil {
		ev := audit.Event{
			Action:  audit.ActionSessionTerminated,
			Result:  audit.ResultFailure,
			Details: reason,
		}
		if cause != nil {
			ev.Error = cause.Error()
		}
		p.auditor.LogCtx(ctx, ev)
	}
	p.logger.InfoContext(ctx, "session terminated", "reason", reason)

	if p.onExpired != nil {
		p.onExpired()
	}
}

func (p *Client) recordRenewal(result string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordRenewal(result, time.Since(start).Seconds())
	}
	if p.auditor != nil {
		p.auditor.Log(audit.Event{Action: audit.ActionCredentialRenewal, Result: result})
	}
}

// renewableExpiry reports whether the 401 response carries the
// machine-readable TOKEN_EXPIRED code. The body is consumed either way;
// unauthorized responses are never handed back to the caller.
func renewableExpiry(resp *http.Response) bool {
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}
	return body.Code == authkit.CodeTokenExpired
}

// expiresWithin reports whether the token is a JWT expiring within d.
// The signature is deliberately not checked; the expiry claim is only a
// hint to renew early, the server remains the authority.
func expiresWithin(token string, d time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) <= d
}
