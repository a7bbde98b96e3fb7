package commands

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-portal-client/auth"
	tokenjwt "github.com/jrsteele09/go-portal-client/token/jwt"
	"github.com/spf13/cobra"
)

var (
	errNotRegistered = &auth.UserError{Message: "This email is not registered as User.", Err: auth.ErrAccountNotEligible}
	errInvalidToken  = &auth.UserError{Message: "The link is invalid or has expired.", Err: auth.ErrInvalidOneTimeToken}
)

func newLoginCommand(current func() *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with e-mail and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

			email, err := p.ask("Email", email)
			if err != nil {
				return err
			}
			ok, err := a.auth.VerifyAccountByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if !ok {
				return errNotRegistered
			}

			password, err := p.ask("Password", password)
			if err != nil {
				return err
			}
			if err := a.auth.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", a.store.ActiveRole())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newActivateCommand(current func() *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "activate [token]",
		Short: "Activate a new account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ok, err := a.auth.VerifyOneTimeToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errInvalidToken
			}

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			password, err := p.ask("New password", password)
			if err != nil {
				return err
			}
			if err := a.auth.Activate(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account activated, logged in as %s\n", a.store.ActiveRole())
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (prompted when omitted)")
	return cmd
}

func newForgotPasswordCommand(current func() *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Send a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			email, err := p.ask("Email", email)
			if err != nil {
				return err
			}
			if err := current().auth.RequestPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reset password link sent, check your inbox.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account e-mail")
	return cmd
}

func newResetPasswordCommand(current func() *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password [token]",
		Short: "Choose a new password with a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			ok, err := a.auth.VerifyOneTimeToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errInvalidToken
			}

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			password, err := p.ask("New password", password)
			if err != nil {
				return err
			}
			if err := a.auth.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset, please log in.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (prompted when omitted)")
	return cmd
}

func newLogoutCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return current().auth.Logout(cmd.Context())
		},
	}
}

func newStatusCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			out := cmd.OutOrStdout()
			cur := a.store.Current()
			if !cur.Authenticated() {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}

			fmt.Fprintf(out, "Logged in as %s\n", cur.ActiveRole)
			claims, err := tokenjwt.Inspect(cur.AccessToken)
			if err != nil {
				return nil
			}
			if claims.Sub != "" {
				fmt.Fprintf(out, "User:    %s\n", claims.Sub)
			}
			if !claims.Exp.IsZero() {
				state := "valid"
				if claims.Expired() {
					state = "expired, renewed on next request"
				}
				fmt.Fprintf(out, "Access:  %s until %s\n", state, claims.Exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}
