package commands

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-portal-client/internal/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var a *app
	current := func() *app { return a }

	rootCmd := &cobra.Command{
		Use:           "portal",
		Short:         "Command line client for the tutoring portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.HasParent() {
				return nil
			}
			cfg := config.New()
			setupLogging(cfg.GetLogLevel())

			var err error
			a, err = newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			return err
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a == nil {
				return
			}
			a.logMetrics()
			a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			displayAppname(cmd.OutOrStdout(), config.New().GetAppName())
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(
		newLoginCommand(current),
		newActivateCommand(current),
		newForgotPasswordCommand(current),
		newResetPasswordCommand(current),
		newLogoutCommand(current),
		newStatusCommand(current),
		newMeCommand(current),
		newSessionsCommand(current),
	)

	return rootCmd
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
