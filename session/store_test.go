package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/jrsteele09/go-portal-client/session/storagefake"
	"github.com/stretchr/testify/require"
)

var (
	now      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	errWrite = errors.New("disk full")
)

type testFixture struct {
	storage     *storagefake.FakeStorage
	store       *session.Store
	navigations []session.Reason
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{storage: storagefake.NewFakeStorage().WithNowTime(func() time.Time { return now })}
	f.store = f.newStore(t)
	return f
}

func (f *testFixture) newStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(context.Background(), f.storage,
		session.WithNowTime(func() time.Time { return now }),
		session.WithNavigator(session.NavigatorFunc(func(r session.Reason) {
			f.navigations = append(f.navigations, r)
		})),
	)
	require.NoError(t, err)
	return store
}

func testCredentials(suffix string, role session.Role) session.Credentials {
	return session.Credentials{
		ActiveRole:         role,
		AccessToken:        "access-" + suffix,
		RefreshToken:       "refresh-" + suffix,
		AccessTokenExpiry:  now.Add(15 * time.Minute).Format(time.RFC3339),
		RefreshTokenExpiry: now.Add(24 * time.Hour).Format("2006-01-02 15:04:05"),
	}
}

type notifierFunc func(ctx context.Context) error

func (f notifierFunc) NotifyLogout(ctx context.Context) error { return f(ctx) }

func TestNewStore_Empty(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, session.Session{}, f.store.Current())
	require.False(t, f.store.Authenticated())
	require.Equal(t, session.Role(""), f.store.ActiveRole())
}

func TestNewStore_LoadsPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Authenticate(context.Background(), testCredentials("1", session.RoleMentor)))

	reloaded := f.newStore(t)
	require.Equal(t, session.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ActiveRole:   session.RoleMentor,
	}, reloaded.Current())
	require.True(t, reloaded.Authenticated())
}

func TestNewStore_SkipsExpiredEntries(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.storage.Set(ctx, session.NewEntry(session.AccessTokenEntry, "old", now.Add(-time.Minute))))
	require.NoError(t, f.storage.Set(ctx, session.NewEntry(session.RefreshTokenEntry, "r", now.Add(time.Hour))))

	reloaded := f.newStore(t)
	require.Equal(t, "", reloaded.Current().AccessToken)
	require.Equal(t, "r", reloaded.Current().RefreshToken)
	require.False(t, reloaded.Authenticated())
}

func TestNewStore_DropsUnknownRole(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.storage.Set(context.Background(), session.NewEntry(session.ActiveRoleEntry, "admin", now.Add(time.Hour))))

	reloaded := f.newStore(t)
	require.Equal(t, session.Role(""), reloaded.ActiveRole())
}

func TestNewStore_StorageError(t *testing.T) {
	storage := storagefake.NewFakeStorage()
	storage.FailGet(session.RefreshTokenEntry, errWrite)

	_, err := session.NewStore(context.Background(), storage)
	require.ErrorIs(t, err, errWrite)

	_, err = session.NewStore(context.Background(), nil)
	require.Error(t, err)
}

func TestSetters(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	expiry := now.Add(time.Hour)

	require.NoError(t, f.store.SetAccessToken(ctx, "a", expiry))
	require.NoError(t, f.store.SetRefreshToken(ctx, "r", expiry))
	require.NoError(t, f.store.SetActiveRole(ctx, session.RoleUser, expiry))
	require.Equal(t, session.Session{AccessToken: "a", RefreshToken: "r", ActiveRole: session.RoleUser}, f.store.Current())

	entry, ok := f.storage.Entry(session.AccessTokenEntry)
	require.True(t, ok)
	require.Equal(t, "a", entry.Value)
	require.Equal(t, "/", entry.Path)
	require.True(t, entry.Secure)
	require.True(t, entry.HttpOnly)
	require.True(t, entry.Expires.Equal(expiry))

	require.Error(t, f.store.SetAccessToken(ctx, "", expiry))
	require.ErrorIs(t, f.store.SetActiveRole(ctx, session.Role("admin"), expiry), session.ErrInvalidRole)
	require.Equal(t, session.RoleUser, f.store.ActiveRole())
}

func TestSetAccessToken_WriteFailureLeavesSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetAccessToken(ctx, "a", now.Add(time.Hour)))

	f.storage.FailSet(session.AccessTokenEntry, errWrite)
	err := f.store.SetAccessToken(ctx, "b", now.Add(time.Hour))
	require.ErrorIs(t, err, errWrite)
	require.Equal(t, "a", f.store.Current().AccessToken)
}

func TestAuthenticate(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Authenticate(context.Background(), testCredentials("1", session.RoleUser)))

	require.True(t, f.store.Authenticated())
	require.Equal(t, session.RoleUser, f.store.ActiveRole())
	require.Equal(t, 3, f.storage.Len())

	role, ok := f.storage.Entry(session.ActiveRoleEntry)
	require.True(t, ok)
	refresh, _ := f.storage.Entry(session.RefreshTokenEntry)
	require.True(t, role.Expires.Equal(refresh.Expires))
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.Credentials)
	}{
		{name: "missing access token", mutate: func(c *session.Credentials) { c.AccessToken = "" }},
		{name: "missing refresh token", mutate: func(c *session.Credentials) { c.RefreshToken = "" }},
		{name: "unknown role", mutate: func(c *session.Credentials) { c.ActiveRole = "admin" }},
		{name: "bad expiry", mutate: func(c *session.Credentials) { c.AccessTokenExpiry = "tomorrow" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			creds := testCredentials("1", session.RoleUser)
			tt.mutate(&creds)

			require.Error(t, f.store.Authenticate(context.Background(), creds))
			require.Equal(t, session.Session{}, f.store.Current())
			require.Zero(t, f.storage.Len())
		})
	}
}

func TestAuthenticate_RollsBackPartialWrite(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("old", session.RoleMentor)))
	before := f.store.Current()

	f.storage.FailSet(session.ActiveRoleEntry, errWrite)
	err := f.store.Authenticate(ctx, testCredentials("new", session.RoleUser))
	require.ErrorIs(t, err, errWrite)

	require.Equal(t, before, f.store.Current())
	access, _ := f.storage.Entry(session.AccessTokenEntry)
	refresh, _ := f.storage.Entry(session.RefreshTokenEntry)
	require.Equal(t, "access-old", access.Value)
	require.Equal(t, "refresh-old", refresh.Value)

	reloaded := f.newStore(t)
	require.Equal(t, before, reloaded.Current())
}

func TestAuthenticate_RollsBackToEmpty(t *testing.T) {
	f := setupTestFixture(t)
	f.storage.FailSet(session.RefreshTokenEntry, errWrite)

	err := f.store.Authenticate(context.Background(), testCredentials("1", session.RoleUser))
	require.ErrorIs(t, err, errWrite)
	require.Equal(t, session.Session{}, f.store.Current())
	require.Zero(t, f.storage.Len())
}

func TestClear(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))

	require.NoError(t, f.store.Clear(ctx))
	require.Equal(t, session.Session{}, f.store.Current())
	require.Zero(t, f.storage.Len())

	// clearing an empty session is not an error
	require.NoError(t, f.store.Clear(ctx))
	require.Empty(t, f.navigations)
}

func TestClear_DeleteFailureStillClearsMemory(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))

	f.storage.FailDelete(session.AccessTokenEntry, errWrite)
	err := f.store.Clear(ctx)
	require.ErrorIs(t, err, errWrite)
	require.Equal(t, session.Session{}, f.store.Current())
	require.Equal(t, 1, f.storage.Len())
}

func TestExpire(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))

	require.NoError(t, f.store.Expire(ctx, session.ReasonRenewalFailed))
	require.False(t, f.store.Authenticated())
	require.Equal(t, []session.Reason{session.ReasonRenewalFailed}, f.navigations)
}

func TestExpireIf(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("2", session.RoleUser)))

	expired, err := f.store.ExpireIf(ctx, "refresh-1", session.ReasonRenewalFailed)
	require.NoError(t, err)
	require.False(t, expired)
	require.True(t, f.store.Authenticated())
	require.Empty(t, f.navigations)

	expired, err = f.store.ExpireIf(ctx, "refresh-2", session.ReasonRenewalFailed)
	require.NoError(t, err)
	require.True(t, expired)
	require.False(t, f.store.Authenticated())

	expired, err = f.store.ExpireIf(ctx, "refresh-2", session.ReasonRenewalFailed)
	require.NoError(t, err)
	require.False(t, expired)
	require.Equal(t, []session.Reason{session.ReasonRenewalFailed}, f.navigations)
}

func TestApplyRenewal(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleMentor)))

	require.NoError(t, f.store.ApplyRenewal(ctx, "refresh-1", session.Renewal{
		AccessToken:       "access-2",
		AccessTokenExpiry: now.Add(15 * time.Minute),
	}))
	require.Equal(t, session.Session{AccessToken: "access-2", RefreshToken: "refresh-1", ActiveRole: session.RoleMentor}, f.store.Current())

	require.NoError(t, f.store.ApplyRenewal(ctx, "refresh-1", session.Renewal{
		AccessToken:        "access-3",
		AccessTokenExpiry:  now.Add(15 * time.Minute),
		RefreshToken:       "refresh-3",
		RefreshTokenExpiry: now.Add(24 * time.Hour),
	}))
	require.Equal(t, session.Session{AccessToken: "access-3", RefreshToken: "refresh-3", ActiveRole: session.RoleMentor}, f.store.Current())
	entry, ok := f.storage.Entry(session.RefreshTokenEntry)
	require.True(t, ok)
	require.Equal(t, "refresh-3", entry.Value)
}

func TestApplyRenewal_AfterTeardownWritesNothing(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))
	require.NoError(t, f.store.Clear(ctx))

	err := f.store.ApplyRenewal(ctx, "refresh-1", session.Renewal{AccessToken: "access-2", AccessTokenExpiry: now.Add(time.Minute)})
	require.ErrorIs(t, err, session.ErrSessionChanged)
	require.ErrorIs(t, err, session.ErrSessionExpired)
	require.Equal(t, session.Session{}, f.store.Current())
	require.Zero(t, f.storage.Len())
}

func TestApplyRenewal_WriteFailureKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))

	f.storage.FailSet(session.AccessTokenEntry, errWrite)
	err := f.store.ApplyRenewal(ctx, "refresh-1", session.Renewal{AccessToken: "access-2", AccessTokenExpiry: now.Add(time.Minute)})
	require.ErrorIs(t, err, errWrite)
	require.Equal(t, "access-1", f.store.Current().AccessToken)
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name      string
		notifyErr error
	}{
		{name: "backend acknowledges"},
		{name: "backend fails", notifyErr: errors.New("500")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			ctx := context.Background()
			require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))

			notified := 0
			err := f.store.Logout(ctx, notifierFunc(func(context.Context) error {
				notified++
				// the backend is told before the tokens disappear
				require.True(t, f.store.Authenticated())
				return tt.notifyErr
			}))
			require.NoError(t, err)
			require.Equal(t, 1, notified)
			require.Equal(t, session.Session{}, f.store.Current())
			require.Zero(t, f.storage.Len())
			require.Equal(t, []session.Reason{session.ReasonLoggedOut}, f.navigations)
		})
	}
}

func TestSubscribe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	var seen []session.Session
	unsubscribe := f.store.Subscribe(func(s session.Session) { seen = append(seen, s) })

	require.NoError(t, f.store.Authenticate(ctx, testCredentials("1", session.RoleUser)))
	// an identical write is not a change
	require.NoError(t, f.store.SetAccessToken(ctx, "access-1", now.Add(time.Hour)))
	require.NoError(t, f.store.Clear(ctx))
	require.Len(t, seen, 2)
	require.True(t, seen[0].Authenticated())
	require.Equal(t, session.Session{}, seen[1])

	unsubscribe()
	require.NoError(t, f.store.SetAccessToken(ctx, "a", now.Add(time.Hour)))
	require.Len(t, seen, 2)
}

func TestToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.store.Token()
	require.ErrorIs(t, err, session.ErrNoAccessToken)

	require.NoError(t, f.store.SetAccessToken(ctx, "opaque", now.Add(time.Hour)))
	tok, err := f.store.Token()
	require.NoError(t, err)
	require.Equal(t, "opaque", tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.True(t, tok.Expiry.IsZero())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "7",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	require.NoError(t, f.store.SetAccessToken(ctx, signed, exp))
	tok, err = f.store.Token()
	require.NoError(t, err)
	require.True(t, tok.Expiry.Equal(exp))
}
