package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/auth"
	"github.com/jrsteele09/go-portal-client/gateway"
	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/jrsteele09/go-portal-client/internal/portaltest"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/stretchr/testify/require"
)

const (
	testStudentEmail = "m@example.com"
	testMentorEmail  = "mentor@example.com"
	testAdminEmail   = "admin@example.com"
	testPassword     = "secret123"

	routeLogin   = "POST /api/v1/auth/login"
	routeLogout  = "DELETE /api/v1/auth/logout"
	routeReset   = "POST /api/v1/users/reset-password"
	routeRefresh = "PUT /api/v1/auth/refresh"
)

type testFixture struct {
	*portaltest.Stack
	service *auth.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	st := portaltest.NewStack(t)
	st.Backend.AddAccount(portaltest.Account{ID: 1, Name: "Mia", Email: testStudentEmail, Password: testPassword, Role: "student", ActiveRole: session.RoleUser})
	st.Backend.AddAccount(portaltest.Account{ID: 2, Name: "Max", Email: testMentorEmail, Password: testPassword, Role: "mentor", ActiveRole: session.RoleMentor})
	st.Backend.AddAccount(portaltest.Account{ID: 3, Name: "Ada", Email: testAdminEmail, Password: testPassword, Role: "admin", ActiveRole: session.RoleUser})

	service, err := auth.NewService(st.Gateway, st.Store)
	require.NoError(t, err)
	return &testFixture{Stack: st, service: service}
}

func requireUserError(t *testing.T, err error, message string) {
	t.Helper()
	var ue *auth.UserError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, message, ue.Message)
}

func TestVerifyAccountByEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tests := []struct {
		email string
		want  bool
	}{
		{email: testStudentEmail, want: true},
		{email: " " + testMentorEmail + " ", want: true},
		{email: testAdminEmail, want: false},
		{email: "nobody@example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			ok, err := f.service.VerifyAccountByEmail(ctx, tt.email)
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}

	_, err := f.service.VerifyAccountByEmail(ctx, "not-an-email")
	var ve *auth.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "The field 'email' must be a valid email address.", ve.Fields["email"])
	require.False(t, f.Store.Authenticated())
}

func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	ok, err := f.service.VerifyAccountByEmail(ctx, testStudentEmail)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.service.Login(ctx, testStudentEmail, testPassword))

	cur := f.Store.Current()
	require.True(t, cur.Authenticated())
	require.Equal(t, session.RoleUser, cur.ActiveRole)
	require.Equal(t, 3, f.Storage.Len())
	require.Empty(t, f.Navigations())
}

func TestLogin_Mentor(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.service.Login(context.Background(), testMentorEmail, testPassword))
	require.Equal(t, session.RoleMentor, f.Store.ActiveRole())
}

func TestLogin_WrongPasswordLeavesSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	creds := f.SignIn(t, testMentorEmail)

	err := f.service.Login(ctx, testStudentEmail, "wrong-password")
	requireUserError(t, err, "Failed to log in user, please check your credentials")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	// a rejected login is not a session expiry
	require.Equal(t, creds.AccessToken, f.Store.Current().AccessToken)
	require.Equal(t, session.RoleMentor, f.Store.ActiveRole())
	require.Empty(t, f.Navigations())
	require.Zero(t, f.Backend.Calls("PUT /api/v1/auth/refresh"))
}

func TestLogin_InvalidInputNeverReachesBackend(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name     string
		email    string
		password string
		field    string
		message  string
	}{
		{name: "bad email", email: "m@", password: testPassword, field: "email", message: "The field 'email' must be a valid email address."},
		{name: "short password", email: testStudentEmail, password: "12345", field: "password", message: "The field 'password' must be at least 6 characters long."},
		{name: "missing password", email: testStudentEmail, field: "password", message: "The field 'password' is required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.service.Login(context.Background(), tt.email, tt.password)
			var ve *auth.ValidationError
			require.ErrorAs(t, err, &ve)
			require.ErrorIs(t, err, perrors.ErrInvalidInput)
			require.Equal(t, tt.message, ve.Fields[tt.field])
		})
	}
	require.Zero(t, f.Backend.Calls(routeLogin))
}

func TestLogin_StorageFailureLeavesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.Storage.FailSet(session.ActiveRoleEntry, context.DeadlineExceeded)

	err := f.service.Login(context.Background(), testStudentEmail, testPassword)
	requireUserError(t, err, "Failed to store your session")
	require.Equal(t, session.Session{}, f.Store.Current())
	require.Zero(t, f.Storage.Len())
}

func TestVerifyOneTimeToken(t *testing.T) {
	f := setupTestFixture(t)
	f.Backend.AddActivationToken("act-1", testStudentEmail)
	ctx := context.Background()

	ok, err := f.service.VerifyOneTimeToken(ctx, "act-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.service.VerifyOneTimeToken(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.service.VerifyOneTimeToken(ctx, " ")
	require.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestActivate(t *testing.T) {
	f := setupTestFixture(t)
	f.Backend.AddActivationToken("act-1", testStudentEmail)
	ctx := context.Background()

	require.NoError(t, f.service.Activate(ctx, "act-1", "new-password"))
	require.True(t, f.Store.Authenticated())
	require.Equal(t, session.RoleUser, f.Store.ActiveRole())

	// the token is single use
	require.NoError(t, f.Store.Clear(ctx))
	err := f.service.Activate(ctx, "act-1", "new-password")
	requireUserError(t, err, "Failed to activate user account")
	require.False(t, f.Store.Authenticated())

	// the new password works
	require.NoError(t, f.service.Login(ctx, testStudentEmail, "new-password"))
}

func TestRequestPasswordReset(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.RequestPasswordReset(ctx, testStudentEmail))
	require.Equal(t, 1, f.Backend.Calls(routeReset))

	err := f.service.RequestPasswordReset(ctx, testAdminEmail)
	requireUserError(t, err, "This email is not registered as User.")
	require.ErrorIs(t, err, auth.ErrAccountNotEligible)

	err = f.service.RequestPasswordReset(ctx, "nobody@example.com")
	require.ErrorIs(t, err, auth.ErrAccountNotEligible)
	require.Equal(t, 1, f.Backend.Calls(routeReset))
	require.False(t, f.Store.Authenticated())
}

func TestResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.Backend.AddResetToken("reset-1", testStudentEmail)
	ctx := context.Background()

	require.NoError(t, f.service.ResetPassword(ctx, "reset-1", "brand-new"))
	require.False(t, f.Store.Authenticated())

	err := f.service.Login(ctx, testStudentEmail, testPassword)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	require.NoError(t, f.service.Login(ctx, testStudentEmail, "brand-new"))

	err = f.service.ResetPassword(ctx, "reset-1", "another-one")
	requireUserError(t, err, "Failed to reset password")
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	creds := f.SignIn(t, testStudentEmail)

	require.NoError(t, f.service.Logout(ctx))
	require.Equal(t, 1, f.Backend.Calls(routeLogout))
	require.False(t, f.Backend.ValidRefreshToken(creds.RefreshToken))
	require.Equal(t, session.Session{}, f.Store.Current())
	require.Zero(t, f.Storage.Len())
	require.Equal(t, []session.Reason{session.ReasonLoggedOut}, f.Navigations())
}

func TestLogout_ExpiredAccessTokenStillRevokes(t *testing.T) {
	f := setupTestFixture(t)
	creds := f.SignIn(t, testStudentEmail)
	f.Backend.Reject401(1)

	require.NoError(t, f.service.Logout(context.Background()))
	require.Equal(t, 1, f.Backend.Calls(routeRefresh))
	require.Equal(t, 2, f.Backend.Calls(routeLogout))
	require.False(t, f.Backend.ValidRefreshToken(creds.RefreshToken))
	require.Equal(t, session.Session{}, f.Store.Current())
	require.Zero(t, f.Storage.Len())
	require.Equal(t, []session.Reason{session.ReasonLoggedOut}, f.Navigations())
}

func TestLogout_RenewalFailsStillClearsOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.SignIn(t, testStudentEmail)
	f.Backend.FailRefresh(true)
	f.Backend.Reject401(1)

	require.NoError(t, f.service.Logout(context.Background()))
	require.Equal(t, 1, f.Backend.Calls(routeRefresh))
	require.Equal(t, session.Session{}, f.Store.Current())
	require.Zero(t, f.Storage.Len())
	require.Equal(t, []session.Reason{session.ReasonLoggedOut}, f.Navigations())
}

type doerFunc func(ctx context.Context, req *gateway.Request) (*api.Response, error)

func (f doerFunc) Do(ctx context.Context, req *gateway.Request) (*api.Response, error) {
	return f(ctx, req)
}

func TestVerifyAccountByEmail_SuccessWithoutData(t *testing.T) {
	f := setupTestFixture(t)
	doer := doerFunc(func(context.Context, *gateway.Request) (*api.Response, error) {
		return &api.Response{StatusCode: http.StatusOK, Envelope: api.Envelope{Status: api.StatusSuccess}}, nil
	})
	service, err := auth.NewService(doer, f.Store)
	require.NoError(t, err)

	ok, err := service.VerifyAccountByEmail(context.Background(), testStudentEmail)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)
	_, err := auth.NewService(nil, f.Store)
	require.Error(t, err)
	_, err = auth.NewService(f.Gateway, nil)
	require.Error(t, err)
}
