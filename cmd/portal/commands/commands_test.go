package commands_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-portal-client/cmd/portal/commands"
	"github.com/jrsteele09/go-portal-client/internal/portaltest"
	"github.com/jrsteele09/go-portal-client/meetings"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend     *portaltest.Server
	sessionFile string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := portaltest.New()
	backend.AddAccount(portaltest.Account{ID: 1, Name: "Mia", Email: "m@example.com", Password: "secret123", Role: "student", ActiveRole: session.RoleUser})
	backend.AddAccount(portaltest.Account{ID: 2, Name: "Max", Email: "max@example.com", Password: "secret123", Role: "mentor", ActiveRole: session.RoleUser})
	backend.AddAccount(portaltest.Account{ID: 3, Email: "admin@example.com", Password: "secret123", Role: "admin", ActiveRole: session.RoleUser})
	backend.AddMeeting(meetings.MeetingSession{ID: 10, UserID: 1, MentorID: 2, SessionDate: "2025-03-01", SessionTime: "10:00", SessionTopic: "Algebra", SessionStatus: meetings.StatusScheduled})

	f := &testFixture{
		backend:     backend,
		sessionFile: filepath.Join(t.TempDir(), "session.json"),
	}
	t.Setenv("API_URL", strings.TrimSuffix(backend.Start(t), "/api/v1"))
	t.Setenv("API_VERSION_PATH", "/api/v1")
	t.Setenv("SESSION_STORAGE", "file")
	t.Setenv("SESSION_FILE", f.sessionFile)
	t.Setenv("SESSION_STORAGE_KEY", "test-passphrase")
	t.Setenv("RENEWAL_BACKOFF", "0s")
	t.Setenv("LOG_LEVEL", "error")
	return f
}

func (f *testFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := commands.NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginFlow(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "m@example.com\nsecret123\n", "login")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as user")

	_, err = os.Stat(f.sessionFile)
	require.NoError(t, err)

	out, err = f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as user")

	out, err = f.run(t, "", "me")
	require.NoError(t, err)
	require.Contains(t, out, "Mia")
	require.NotContains(t, out, "Note:")

	out, err = f.run(t, "", "sessions", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Algebra")

	out, err = f.run(t, "", "sessions", "show", "10")
	require.NoError(t, err)
	require.Contains(t, out, "Topic:       Algebra")

	out, err = f.run(t, "", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "You have been logged out.")

	out, err = f.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")
}

func TestLogin_Rejections(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "", "login", "--email", "admin@example.com")
	require.Error(t, err)
	require.Equal(t, "This email is not registered as User.", commands.Describe(err))

	_, err = f.run(t, "", "login", "-e", "m@example.com", "-p", "wrong-pass")
	require.Error(t, err)
	require.Equal(t, "Failed to log in user, please check your credentials", commands.Describe(err))

	_, err = f.run(t, "", "login", "-e", "m@example.com")
	require.Error(t, err)
}

func TestSessions_RequireLogin(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, "", "sessions", "list")
	require.Error(t, err)
	require.Contains(t, out, "Session expired. Please log in again.")

	_, err = f.run(t, "", "sessions", "show", "abc")
	require.ErrorContains(t, err, "invalid session id")
}

func TestResetPassword_InvalidToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "", "reset-password", "nope", "-p", "brand-new")
	require.Error(t, err)
	require.Equal(t, "The link is invalid or has expired.", commands.Describe(err))
}

func TestActivate(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.AddActivationToken("act-1", "m@example.com")

	out, err := f.run(t, "brand-new\n", "activate", "act-1")
	require.NoError(t, err)
	require.Contains(t, out, "Account activated, logged in as user")
}

func TestMe_ReportsRoleMismatch(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, "", "login", "-e", "max@example.com", "-p", "secret123")
	require.NoError(t, err)

	out, err := f.run(t, "", "me")
	require.NoError(t, err)
	require.Contains(t, out, "Note:  this session acts as user, the account is a mentor")
}
