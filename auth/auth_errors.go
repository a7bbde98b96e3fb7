package auth

import (
	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
)

var (
	ErrInvalidCredentials  = perrors.ErrInvalidCredentials
	ErrAccountNotEligible  = perrors.ErrAccountNotEligible
	ErrInvalidOneTimeToken = perrors.ErrInvalidOneTimeToken
)

// UserError is a recoverable action failure. Message is safe to show to the
// user; Err is the underlying cause.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userError(message string, err error) error {
	return &UserError{Message: message, Err: err}
}
