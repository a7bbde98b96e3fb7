package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/jrsteele09/go-portal-client/meetings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newMeCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			u, err := a.users.Me(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:  %s\n", u.Name)
			fmt.Fprintf(out, "Email: %s\n", u.Email)
			fmt.Fprintf(out, "Role:  %s\n", u.Role)
			if u.Phone != "" {
				fmt.Fprintf(out, "Phone: %s\n", u.Phone)
			}
			if role, ok := u.Role.SessionRole(); ok && role != a.store.ActiveRole() {
				fmt.Fprintf(out, "Note:  this session acts as %s, the account is a %s\n", a.store.ActiveRole(), role)
			}
			return nil
		},
	}
}

func newSessionsCommand(current func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Args:    cobra.NoArgs,
		Short:   "Meeting session commands",
	}

	cmd.AddCommand(
		newSessionsListCommand(current),
		newSessionsShowCommand(current),
		newSessionsAttendCommand(current),
	)
	return cmd
}

func newSessionsListCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your meeting sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			list, err := a.meetings.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No meeting sessions")
				return nil
			}

			role := a.store.ActiveRole()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tTIME\tTOPIC\tSTATUS\tATTENDED")
			for _, m := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", m.ID, m.SessionDate, m.SessionTime, m.SessionTopic, m.SessionStatus, m.Attended(role))
			}
			return w.Flush()
		},
	}
}

func newSessionsShowCommand(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one meeting session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a := current()
			m, err := a.meetings.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			role := a.store.ActiveRole()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Topic:       %s\n", m.SessionTopic)
			fmt.Fprintf(out, "When:        %s %s (%s)\n", m.SessionDate, m.SessionTime, m.Duration())
			fmt.Fprintf(out, "Type:        %s\n", m.SessionType)
			fmt.Fprintf(out, "Status:      %s\n", m.SessionStatus)
			if d := m.Description(); d != "" {
				fmt.Fprintf(out, "Description: %s\n", d)
			}
			fmt.Fprintf(out, "Attended:    %t\n", m.Attended(role))
			if proof := m.AttendanceProof(role); proof != "" {
				fmt.Fprintf(out, "Proof:       %s\n", a.meetings.AssetURL(proof))
			}
			if fb := m.Feedback(); fb != "" {
				fmt.Fprintf(out, "Feedback:    %s\n", fb)
			}
			return nil
		},
	}
}

func newSessionsAttendCommand(current func() *app) *cobra.Command {
	var proofPath, signaturePath, feedback string

	cmd := &cobra.Command{
		Use:   "attend [id]",
		Short: "Submit attendance for a meeting session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			proof, err := readFile(proofPath)
			if err != nil {
				return err
			}
			signature, err := readFile(signaturePath)
			if err != nil {
				return err
			}

			if _, err := current().meetings.Attend(cmd.Context(), id, proof, signature, feedback); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Attendance submitted")
			return nil
		},
	}

	cmd.Flags().StringVar(&proofPath, "proof", "", "image proving the session took place")
	cmd.Flags().StringVar(&signaturePath, "signature", "", "signature image (students)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "session feedback (mentors)")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid session id %q", s)
	}
	return id, nil
}

// readFile returns nil for an empty path so validation reports the missing file.
func readFile(path string) (*meetings.File, error) {
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return &meetings.File{Name: filepath.Base(path), Content: content}, nil
}
