package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/gateway"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// roleAdmin accounts cannot use the portal.
const roleAdmin = "admin"

const (
	msgUnreachable     = "Unable to reach the portal, please try again later"
	msgUnexpected      = "Unexpected response from the portal"
	msgStoreSession    = "Failed to store your session"
	msgLoginFailed     = "Failed to log in user, please check your credentials"
	msgNotRegistered   = "This email is not registered as User."
	msgVerifyToken     = "Failed to verify token, please contact support if the issue persists"
	msgActivateFailed  = "Failed to activate user account"
	msgResetLinkFailed = "Failed to send reset password link."
	msgResetFailed     = "Failed to reset password"
)

// Doer sends a request through the authenticated gateway.
type Doer interface {
	Do(ctx context.Context, req *gateway.Request) (*api.Response, error)
}

// Service implements the session actions: login, activation, password reset
// and logout. Every action either completes or leaves the session as it was.
type Service struct {
	gateway Doer
	store   *session.Store
}

// NewService creates a new Service
func NewService(gw Doer, store *session.Store) (*Service, error) {
	if gw == nil {
		return nil, errors.New("[NewService] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}
	return &Service{gateway: gw, store: store}, nil
}

// VerifyAccountByEmail is the first login step. It reports whether the
// e-mail belongs to an account that may sign in to the portal.
func (s *Service) VerifyAccountByEmail(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if err := validate(emailInput{Email: email}); err != nil {
		return false, err
	}

	resp, err := s.call(ctx, http.MethodPost, RouteVerifyEmail, emailInput{Email: email})
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return false, userError(msgUnreachable, err)
		}
		log.Debug().Err(err).Msg("VerifyAccountByEmail: account not verified")
		return false, nil
	}
	if !resp.Success() {
		return false, nil
	}
	if !resp.HasData() {
		return true, nil
	}

	var account struct {
		Role string `json:"role"`
	}
	if err := resp.Decode(&account); err != nil {
		return false, nil
	}
	return account.Role != roleAdmin, nil
}

// Login is the password step. On success the session holds the issued credentials.
func (s *Service) Login(ctx context.Context, email, password string) error {
	input := loginInput{Email: strings.TrimSpace(email), Password: password}
	if err := validate(input); err != nil {
		return err
	}

	resp, err := s.call(ctx, http.MethodPost, RouteLogin, input)
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return userError(msgUnreachable, err)
		}
		return userError(msgLoginFailed, errors.Wrap(ErrInvalidCredentials, err.Error()))
	}
	if resp.StatusCode != http.StatusOK || !resp.Success() {
		return userError(msgLoginFailed, errors.Wrap(ErrInvalidCredentials, api.NewStatusError(resp).Error()))
	}

	if err := s.authenticate(ctx, resp); err != nil {
		return err
	}
	log.Info().Str("role", string(s.store.ActiveRole())).Msg("Successfully logged in")
	return nil
}

// VerifyOneTimeToken checks an activation or password-reset token before
// the user is asked for a new password.
func (s *Service) VerifyOneTimeToken(ctx context.Context, token string) (bool, error) {
	input := tokenInput{Token: strings.TrimSpace(token)}
	if err := validate(input); err != nil {
		return false, err
	}

	resp, err := s.call(ctx, http.MethodPost, RouteVerifyToken, input)
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return false, userError(msgVerifyToken, err)
		}
		return false, nil
	}
	return resp.StatusCode == http.StatusOK && resp.Success(), nil
}

// Activate completes registration with the activation token and the chosen
// password, then signs the user in.
func (s *Service) Activate(ctx context.Context, activationToken, password string) error {
	input := activateInput{ActivationToken: strings.TrimSpace(activationToken), Password: password}
	if err := validate(input); err != nil {
		return err
	}

	resp, err := s.call(ctx, http.MethodPost, RouteActivate, input)
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return userError(msgUnreachable, err)
		}
		return userError(msgActivateFailed, errors.Wrap(ErrInvalidOneTimeToken, err.Error()))
	}
	if resp.StatusCode != http.StatusOK || !resp.Success() {
		return userError(msgActivateFailed, api.NewStatusError(resp))
	}

	if err := s.authenticate(ctx, resp); err != nil {
		return err
	}
	log.Info().Msg("Account activated successfully")
	return nil
}

// RequestPasswordReset asks the backend to e-mail a reset link. The account
// is verified first. The session is not touched.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	verified, err := s.VerifyAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !verified {
		return userError(msgNotRegistered, ErrAccountNotEligible)
	}

	resp, err := s.call(ctx, http.MethodPost, RouteResetPassword, emailInput{Email: email})
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return userError(msgUnreachable, err)
		}
		return userError(msgResetLinkFailed, err)
	}
	if resp.StatusCode != http.StatusOK || !resp.Success() {
		return userError(msgResetLinkFailed, api.NewStatusError(resp))
	}
	log.Info().Msg("Reset password link sent")
	return nil
}

// ResetPassword sets a new password using a reset token. The user must log
// in afterwards; no session is created.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	input := updatePasswordInput{
		Token:           strings.TrimSpace(token),
		NewPassword:     password,
		ConfirmPassword: password,
	}
	if err := validate(input); err != nil {
		return err
	}

	resp, err := s.call(ctx, http.MethodPut, RouteUpdatePassword, input)
	if err != nil {
		if errors.Is(err, api.ErrRequestFailed) {
			return userError(msgUnreachable, err)
		}
		return userError(msgResetFailed, err)
	}
	if resp.StatusCode != http.StatusOK || !resp.Success() {
		return userError(msgResetFailed, api.NewStatusError(resp))
	}
	log.Info().Msg("Password reset successfully")
	return nil
}

// Logout notifies the backend, then clears the session and navigates to
// login whatever the backend said.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.Logout(ctx, s)
}

// NotifyLogout implements session.Notifier. An expired access token is
// renewed so the backend still revokes the session; tearing down is left to
// Store.Logout.
func (s *Service) NotifyLogout(ctx context.Context) error {
	req, err := api.NewJSONRequest(http.MethodDelete, RouteLogout, nil)
	if err != nil {
		return err
	}
	r := gateway.NewRequest(req)
	r.NoTeardown = true
	_, err = s.gateway.Do(ctx, r)
	return err
}

var _ session.Notifier = (*Service)(nil)

// call sends a request that opts out of renewal: for these endpoints a 401
// is an answer about the submitted credentials, not about the session.
func (s *Service) call(ctx context.Context, method, path string, payload any) (*api.Response, error) {
	req, err := api.NewJSONRequest(method, path, payload)
	if err != nil {
		return nil, err
	}
	r := gateway.NewRequest(req)
	r.NoRenewal = true
	return s.gateway.Do(ctx, r)
}

func (s *Service) authenticate(ctx context.Context, resp *api.Response) error {
	var creds session.Credentials
	if err := resp.Decode(&creds); err != nil {
		return userError(msgUnexpected, err)
	}
	if err := s.store.Authenticate(ctx, creds); err != nil {
		return userError(msgStoreSession, err)
	}
	return nil
}
