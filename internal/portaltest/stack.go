package portaltest

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/gateway"
	"github.com/jrsteele09/go-portal-client/internal/config"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/jrsteele09/go-portal-client/session/storagefake"
	"github.com/jrsteele09/go-portal-client/token/refresh"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// Stack is a fully wired client talking to a fake backend.
type Stack struct {
	Backend *Server
	Storage *storagefake.FakeStorage
	Store   *session.Store
	Client  *api.Client
	Gateway *gateway.Gateway
	Config  config.Config

	mu          sync.Mutex
	navigations []session.Reason
}

// TestConfig returns a Config with production defaults except for a zero
// renewal backoff.
func TestConfig() config.Config {
	v := viper.New()
	v.Set("MAX_RENEWAL_ATTEMPTS", 3)
	v.Set("RENEWAL_BACKOFF", "0s")
	v.Set("MAX_RENEWAL_BACKOFF", "0s")
	v.Set("DEFAULT_ACCESS_TOKEN_TTL", "15m")
	v.Set("REQUEST_TIMEOUT", "5s")
	v.Set("API_VERSION_PATH", "/api/v1")
	return config.FromViper(v)
}

// NewStack starts a backend and wires a client against it.
func NewStack(t *testing.T, options ...gateway.Option) *Stack {
	t.Helper()

	st := &Stack{
		Backend: New(),
		Storage: storagefake.NewFakeStorage(),
		Config:  TestConfig(),
	}

	store, err := session.NewStore(context.Background(), st.Storage, session.WithNavigator(session.NavigatorFunc(st.navigate)))
	require.NoError(t, err)
	st.Store = store

	st.Client, err = api.NewClient(st.Backend.Start(t))
	require.NoError(t, err)

	st.Gateway, err = gateway.New(st.Client, st.Store, refresh.NewRenewer(st.Client, st.Config), st.Config, options...)
	require.NoError(t, err)
	return st
}

// SignIn installs a session for the account as if it had logged in.
func (st *Stack) SignIn(t *testing.T, email string) session.Credentials {
	t.Helper()
	creds := st.Backend.IssueSession(email)
	require.NoError(t, st.Store.Authenticate(context.Background(), creds))
	return creds
}

// Navigations returns every reason the client was sent to login for.
func (st *Stack) Navigations() []session.Reason {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]session.Reason(nil), st.navigations...)
}

func (st *Stack) navigate(reason session.Reason) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.navigations = append(st.navigations, reason)
}
