package auth

import "github.com/jrsteele09/go-portal-client/internal/validation"

// Inputs are validated locally before any network call.

type emailInput struct {
	Email string `json:"email" validate:"required,email"`
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=30"`
}

type tokenInput struct {
	Token string `json:"token" validate:"required"`
}

type activateInput struct {
	ActivationToken string `json:"activation_token" validate:"required"`
	Password        string `json:"password" validate:"required,min=6,max=30"`
}

type updatePasswordInput struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=30"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// ValidationError is returned when an input is rejected before any request is sent.
type ValidationError = validation.Error

func validate(input any) error {
	return validation.Struct(input)
}
