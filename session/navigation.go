package session

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Reason explains why the client is being sent back to the login entry point.
type Reason string

const (
	ReasonLoggedOut        Reason = "logged_out"
	ReasonNoRefreshToken   Reason = "no_refresh_token"
	ReasonRenewalFailed    Reason = "renewal_failed"
	ReasonRetriesExhausted Reason = "retries_exhausted"
)

// Message is the user-facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonLoggedOut:
		return "You have been logged out."
	case ReasonRenewalFailed:
		return "Failed to renew session. Please log in again."
	default:
		return "Session expired. Please log in again."
	}
}

// Navigator is implemented by the UI shell. ToLogin is called once each time
// the session is torn down and the user must authenticate again.
type Navigator interface {
	ToLogin(reason Reason)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(reason Reason)

func (f NavigatorFunc) ToLogin(reason Reason) {
	f(reason)
}

// Notifier tells the backend that the session is ending.
type Notifier interface {
	NotifyLogout(ctx context.Context) error
}

type logNavigator struct{}

func (logNavigator) ToLogin(reason Reason) {
	log.Info().Str("reason", string(reason)).Msg(reason.Message())
}
