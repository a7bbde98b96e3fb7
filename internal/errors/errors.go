package errors

import "errors"

// Common error types for the portal client
var (
	// Authentication errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotEligible  = errors.New("account is not registered as a user")
	ErrInvalidOneTimeToken = errors.New("invalid one-time token")

	// Session errors
	ErrSessionExpired = errors.New("session expired")
	ErrRenewalFailed  = errors.New("session renewal failed")
	ErrInvalidRole    = errors.New("invalid role")

	// Request errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrRequestFailed    = errors.New("request failed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrInvalidResponse  = errors.New("invalid response")

	// Storage errors
	ErrNotFound = errors.New("not found")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)
