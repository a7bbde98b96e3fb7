package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/internal/config"
	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/jrsteele09/go-portal-client/internal/metrics"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/jrsteele09/go-portal-client/token/refresh"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// HeaderRequestID carries the logical request id; it is stable across
// resubmissions of the same request.
const HeaderRequestID = "X-Request-ID"

var (
	ErrPermissionDenied = perrors.ErrPermissionDenied
	ErrSessionExpired   = session.ErrSessionExpired
	ErrRequestFailed    = api.ErrRequestFailed
)

const (
	outcomeSuccess          = "success"
	outcomePermissionDenied = "permission_denied"
	outcomeSessionExpired   = "session_expired"
	outcomeStatusError      = "status_error"
	outcomeTransportError   = "transport_error"
)

// Sender performs a raw backend call (api.Client).
type Sender interface {
	Send(ctx context.Context, req *api.Request, decorators ...func(*http.Request)) (*api.Response, error)
}

// Renewer exchanges a refresh token for a new access token (refresh.Renewer).
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (*refresh.Result, error)
}

// Request is one logical backend call. It carries its own renewal attempt
// counter, so resubmissions share a budget and concurrent requests never
// touch each other's.
type Request struct {
	*api.Request
	ID string
	// NoRenewal passes 401 responses straight back to the caller.
	NoRenewal bool
	// NoTeardown still renews on 401, but a terminal failure only returns
	// the error; the caller owns clearing the session and navigating.
	NoTeardown bool

	attempts int
	backoff  *backoff.ExponentialBackOff
}

// NewRequest wraps r with a fresh request id and an empty attempt counter.
func NewRequest(r *api.Request) *Request {
	return &Request{Request: r, ID: uuid.NewString()}
}

// Attempts returns the number of renewals this request has triggered.
func (r *Request) Attempts() int {
	return r.attempts
}

// Gateway is the single path to the backend. It attaches the current access
// token and runs the renewal protocol when the backend answers 401.
type Gateway struct {
	sender      Sender
	store       *session.Store
	renewer     Renewer
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	metrics     *metrics.Gateway
	renewals    singleflight.Group
}

// Option defines a function type to modify the Gateway instance.
type Option func(*Gateway)

// WithMetrics sets the collectors the gateway updates.
func WithMetrics(m *metrics.Gateway) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithBackoff overrides the configured renewal backoff.
func WithBackoff(base, max time.Duration) Option {
	return func(g *Gateway) {
		g.backoff = base
		g.maxBackoff = max
	}
}

// WithMaxRenewalAttempts overrides the configured renewal ceiling.
func WithMaxRenewalAttempts(n int) Option {
	return func(g *Gateway) {
		g.maxAttempts = n
	}
}

// New creates a Gateway.
func New(sender Sender, store *session.Store, renewer Renewer, cfg config.SessionConfig, options ...Option) (*Gateway, error) {
	if sender == nil {
		return nil, errors.New("[gateway New] sender is required")
	}
	if store == nil {
		return nil, errors.New("[gateway New] store is required")
	}
	if renewer == nil {
		return nil, errors.New("[gateway New] renewer is required")
	}
	if cfg == nil {
		return nil, errors.New("[gateway New] config is required")
	}

	g := &Gateway{
		sender:      sender,
		store:       store,
		renewer:     renewer,
		maxAttempts: cfg.GetMaxRenewalAttempts(),
		backoff:     cfg.GetRenewalBackoff(),
		maxBackoff:  cfg.GetMaxRenewalBackoff(),
	}
	for _, opt := range options {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.NewGateway(nil)
	}
	return g, nil
}

// Call encodes payload as JSON and sends it through Do.
func (g *Gateway) Call(ctx context.Context, method, path string, payload any) (*api.Response, error) {
	req, err := api.NewJSONRequest(method, path, payload)
	if err != nil {
		return nil, err
	}
	return g.Do(ctx, NewRequest(req))
}

// Do sends req and resolves the response:
//   - 2xx: the response, nil.
//   - 403: the response and an error matching ErrPermissionDenied; no retry.
//   - 401: renew and resubmit, at most maxAttempts times for this request.
//     When renewal is impossible or exhausted the session is torn down, the
//     navigator is sent to login once, and the error matches ErrSessionExpired.
//   - anything else: the response and an *api.StatusError.
//
// Transport failures return an error matching ErrRequestFailed and leave the
// session alone.
func (g *Gateway) Do(ctx context.Context, req *Request) (*api.Response, error) {
	var renewed string
	for {
		resp, err := g.sender.Send(ctx, req.Request, g.authorize(req, renewed))
		if err != nil {
			g.observe(outcomeTransportError)
			log.Err(err).Str("request_id", req.ID).Msg("Gateway: request failed")
			return nil, err
		}

		switch {
		case resp.OK():
			g.observe(outcomeSuccess)
			return resp, nil

		case resp.StatusCode == http.StatusForbidden:
			g.observe(outcomePermissionDenied)
			return resp, fmt.Errorf("%w: %w", ErrPermissionDenied, api.NewStatusError(resp))

		case resp.StatusCode == http.StatusUnauthorized && !req.NoRenewal:
			accessToken, err := g.renew(ctx, req)
			if err != nil {
				return resp, err
			}
			renewed = accessToken

		default:
			g.observe(outcomeStatusError)
			return resp, api.NewStatusError(resp)
		}
	}
}

// authorize returns the decorator that stamps credentials on each attempt.
// A token renewed for this request wins over the store, in case persisting
// it failed.
func (g *Gateway) authorize(req *Request, renewed string) func(*http.Request) {
	return func(hr *http.Request) {
		hr.Header.Set(HeaderRequestID, req.ID)
		if renewed != "" {
			(&oauth2.Token{AccessToken: renewed, TokenType: "Bearer"}).SetAuthHeader(hr)
			return
		}
		if tok, err := g.store.Token(); err == nil {
			tok.SetAuthHeader(hr)
		}
	}
}

func (g *Gateway) renew(ctx context.Context, req *Request) (string, error) {
	if req.attempts >= g.maxAttempts {
		return "", g.expire(ctx, req, session.ReasonRetriesExhausted, nil)
	}

	refreshToken := g.store.Current().RefreshToken
	if refreshToken == "" {
		return "", g.expire(ctx, req, session.ReasonNoRefreshToken, nil)
	}

	req.attempts++
	if err := sleep(ctx, g.delay(req)); err != nil {
		return "", errors.Wrapf(ErrRequestFailed, "renewal backoff: %v", err)
	}

	log.Debug().Str("request_id", req.ID).Int("attempt", req.attempts).Msg("Gateway: renewing session")

	// Renewal outlives an abandoned caller, and concurrent 401s holding the
	// same refresh token share one backend call.
	detached := context.WithoutCancel(ctx)
	v, err, _ := g.renewals.Do(refreshToken, func() (any, error) {
		result, err := g.renewer.Renew(detached, refreshToken)
		if err != nil {
			return nil, err
		}
		if err := g.apply(detached, refreshToken, result); err != nil {
			return nil, err
		}
		return result, nil
	})

	switch {
	case errors.Is(err, session.ErrSessionChanged):
		g.metrics.Renewals.WithLabelValues("discarded").Inc()
		g.observe(outcomeSessionExpired)
		log.Warn().Str("request_id", req.ID).Msg("Gateway: session changed while renewing, renewal discarded")
		return "", err
	case err != nil:
		g.metrics.Renewals.WithLabelValues("failure").Inc()
		return "", g.expireIf(ctx, req, refreshToken, session.ReasonRenewalFailed, err)
	}
	g.metrics.Renewals.WithLabelValues("success").Inc()
	return v.(*refresh.Result).AccessToken, nil
}

// apply persists a renewed credential on top of the session it was renewed
// for. A rotated refresh token replaces the stored one. Storage failures are
// logged and the renewed token is still used; a session torn down or
// replaced meanwhile is never written to.
func (g *Gateway) apply(ctx context.Context, refreshToken string, result *refresh.Result) error {
	err := g.store.ApplyRenewal(ctx, refreshToken, session.Renewal{
		AccessToken:        result.AccessToken,
		AccessTokenExpiry:  result.AccessTokenExpiry,
		RefreshToken:       result.RefreshToken,
		RefreshTokenExpiry: result.RefreshTokenExpiry,
	})
	if errors.Is(err, session.ErrSessionChanged) {
		return err
	}
	if err != nil {
		log.Err(err).Msg("Gateway: failed to store renewed credentials")
	}
	return nil
}

func (g *Gateway) expire(ctx context.Context, req *Request, reason session.Reason, cause error) error {
	g.expired(req, reason)
	if !req.NoTeardown {
		if err := g.store.Expire(context.WithoutCancel(ctx), reason); err != nil {
			log.Err(err).Msg("Gateway: failed to clear session")
		}
	}
	return expiredError(req, reason, cause)
}

// expireIf is expire for a failed renewal of refreshToken. Requests that
// shared the renewal all fail, but only the first one to get here clears
// the session and navigates.
func (g *Gateway) expireIf(ctx context.Context, req *Request, refreshToken string, reason session.Reason, cause error) error {
	g.expired(req, reason)
	if !req.NoTeardown {
		if _, err := g.store.ExpireIf(context.WithoutCancel(ctx), refreshToken, reason); err != nil {
			log.Err(err).Msg("Gateway: failed to clear session")
		}
	}
	return expiredError(req, reason, cause)
}

func (g *Gateway) expired(req *Request, reason session.Reason) {
	g.observe(outcomeSessionExpired)
	g.metrics.SessionExpired.WithLabelValues(string(reason)).Inc()
	log.Warn().Str("request_id", req.ID).Str("reason", string(reason)).Int("attempts", req.attempts).Msg("Gateway: session expired")
}

func expiredError(req *Request, reason session.Reason, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w (%s): %w", ErrSessionExpired, reason, cause)
	}
	return errors.Wrapf(ErrSessionExpired, "%s after %d renewal attempts", reason, req.attempts)
}

// delay is the wait before the request's next renewal attempt: exponential
// from the base, capped at maxBackoff, without jitter.
func (g *Gateway) delay(req *Request) time.Duration {
	if g.backoff <= 0 {
		return 0
	}
	if req.backoff == nil {
		req.backoff = backoff.NewExponentialBackOff()
		req.backoff.InitialInterval = g.backoff
		req.backoff.RandomizationFactor = 0
		req.backoff.Multiplier = 2
		req.backoff.MaxInterval = max(g.maxBackoff, g.backoff)
	}
	return req.backoff.NextBackOff()
}

func (g *Gateway) observe(outcome string) {
	g.metrics.Requests.WithLabelValues(outcome).Inc()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
