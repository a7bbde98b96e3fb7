package refresh

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/internal/config"
	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/jrsteele09/go-portal-client/session"
	tokenjwt "github.com/jrsteele09/go-portal-client/token/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// RouteRefresh is the renewal endpoint.
const RouteRefresh = "/auth/refresh"

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// ErrRenewalFailed is returned for any renewal that did not yield a new access token.
var ErrRenewalFailed = perrors.ErrRenewalFailed

// Sender performs a raw backend call. Renewal goes straight to the transport
// so a rejected refresh can never re-enter the 401 protocol.
type Sender interface {
	Send(ctx context.Context, req *api.Request, decorators ...func(*http.Request)) (*api.Response, error)
}

// Result is a renewed credential. RefreshToken is empty unless the backend
// rotated it.
type Result struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

type renewRequest struct {
	Token string `json:"token"`
}

type renewPayload struct {
	AccessToken        string `json:"access_token"`
	AccessTokenExpiry  string `json:"access_token_expiry"`
	RefreshToken       string `json:"refresh_token"`
	RefreshTokenExpiry string `json:"refresh_token_expiry"`
}

// Renewer exchanges a refresh token for a new access token. It never
// touches the session store; reacting to the outcome is the caller's job.
type Renewer struct {
	sender Sender
	config config.SessionConfig
}

// NewRenewer creates a new Renewer
func NewRenewer(sender Sender, cfg config.SessionConfig) *Renewer {
	return &Renewer{
		sender: sender,
		config: cfg,
	}
}

// Renew issues PUT /auth/refresh with the refresh token.
func (r *Renewer) Renew(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, errors.Wrap(ErrRenewalFailed, "no refresh token")
	}

	req, err := api.NewJSONRequest(http.MethodPut, RouteRefresh, renewRequest{Token: refreshToken})
	if err != nil {
		return nil, errors.Wrap(ErrRenewalFailed, err.Error())
	}

	resp, err := r.sender.Send(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(ErrRenewalFailed, "transport: %v", err)
	}
	if !resp.Success() {
		return nil, errors.Wrapf(ErrRenewalFailed, "backend rejected renewal: %v", api.NewStatusError(resp))
	}

	var payload renewPayload
	if err := resp.Decode(&payload); err != nil {
		return nil, errors.Wrapf(ErrRenewalFailed, "%v", err)
	}
	if payload.AccessToken == "" {
		return nil, errors.Wrap(ErrRenewalFailed, "response has no access token")
	}

	result := &Result{
		AccessToken:       payload.AccessToken,
		AccessTokenExpiry: r.expiry(payload.AccessToken, payload.AccessTokenExpiry, r.config.GetDefaultAccessTokenTTL()),
	}
	if payload.RefreshToken != "" && payload.RefreshToken != refreshToken {
		result.RefreshToken = payload.RefreshToken
		result.RefreshTokenExpiry = r.expiry(payload.RefreshToken, payload.RefreshTokenExpiry, 0)
	}
	return result, nil
}

// expiry picks the server-provided expiry, then the token's own exp claim,
// then now+fallback. A zero fallback yields a zero time (no expiry).
func (r *Renewer) expiry(token, provided string, fallback time.Duration) time.Time {
	if provided != "" {
		t, err := session.ParseExpiry(provided)
		if err == nil {
			return t
		}
		log.Warn().Str("expiry", provided).Msg("Renewal: ignoring unparseable expiry")
	}
	if exp, ok := tokenjwt.Expiry(token); ok {
		return exp
	}
	if fallback <= 0 {
		return time.Time{}
	}
	return NowTimeFunc().Add(fallback)
}
