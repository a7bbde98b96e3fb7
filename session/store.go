package session

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	tokenjwt "github.com/jrsteele09/go-portal-client/token/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Store owns the current session. Reads are served from memory; every
// mutation is written to durable storage before memory changes, so a failed
// write leaves the observable state untouched.
type Store struct {
	storage   Storage
	navigator Navigator
	nowTime   func() time.Time

	writeMu sync.Mutex // serialises mutators across durable I/O

	mu      sync.RWMutex
	current Session

	subsMu  sync.Mutex
	subs    map[int]func(Session)
	nextSub int
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNavigator sets the shell hook used when the session is torn down.
func WithNavigator(n Navigator) StoreOption {
	return func(s *Store) {
		s.navigator = n
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// NewStore creates a Store and loads the persisted session from storage.
func NewStore(ctx context.Context, storage Storage, options ...StoreOption) (*Store, error) {
	if storage == nil {
		return nil, errors.New("[NewStore] storage is required")
	}

	s := &Store{
		storage:   storage,
		navigator: logNavigator{},
		nowTime:   time.Now,
		subs:      make(map[int]func(Session)),
	}
	for _, opt := range options {
		opt(s)
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[NewStore] failed to load session")
	}
	s.current = loaded
	return s, nil
}

func (s *Store) load(ctx context.Context) (Session, error) {
	values := make(map[string]string, len(entryNames))
	for _, name := range entryNames {
		c, err := s.storage.Get(ctx, name)
		if stderrors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Session{}, errors.Wrapf(err, "get %s", name)
		}
		if Expired(c, s.nowTime()) {
			continue
		}
		values[name] = c.Value
	}

	loaded := Session{
		AccessToken:  values[AccessTokenEntry],
		RefreshToken: values[RefreshTokenEntry],
	}
	if raw, ok := values[ActiveRoleEntry]; ok {
		role, err := ParseRole(raw)
		if err != nil {
			log.Warn().Str("role", raw).Msg("Ignoring persisted session role")
		} else {
			loaded.ActiveRole = role
		}
	}
	return loaded, nil
}

// Current returns a snapshot of the session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Authenticated reports whether both tokens are held.
func (s *Store) Authenticated() bool {
	return s.Current().Authenticated()
}

// ActiveRole returns the active role, or "" when absent.
func (s *Store) ActiveRole() Role {
	return s.Current().ActiveRole
}

// SetAccessToken persists the access token until expiry.
func (s *Store) SetAccessToken(ctx context.Context, value string, expiry time.Time) error {
	if value == "" {
		return errors.New("[Store SetAccessToken] token is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.Set(ctx, NewEntry(AccessTokenEntry, value, expiry)); err != nil {
		return errors.Wrap(err, "[Store SetAccessToken] failed to persist access token")
	}
	s.commit(func(sess *Session) { sess.AccessToken = value })
	return nil
}

// SetRefreshToken persists the refresh token until expiry.
func (s *Store) SetRefreshToken(ctx context.Context, value string, expiry time.Time) error {
	if value == "" {
		return errors.New("[Store SetRefreshToken] token is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.Set(ctx, NewEntry(RefreshTokenEntry, value, expiry)); err != nil {
		return errors.Wrap(err, "[Store SetRefreshToken] failed to persist refresh token")
	}
	s.commit(func(sess *Session) { sess.RefreshToken = value })
	return nil
}

// SetActiveRole persists the active role until expiry.
func (s *Store) SetActiveRole(ctx context.Context, role Role, expiry time.Time) error {
	if !role.Valid() {
		return errors.Wrapf(ErrInvalidRole, "[Store SetActiveRole] %q", role)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.storage.Set(ctx, NewEntry(ActiveRoleEntry, string(role), expiry)); err != nil {
		return errors.Wrap(err, "[Store SetActiveRole] failed to persist active role")
	}
	s.commit(func(sess *Session) { sess.ActiveRole = role })
	return nil
}

// Authenticate installs a full credential bundle. Either all three entries
// are written and the session switches in one step, or the previously
// persisted entries are restored and the session is left as it was.
func (s *Store) Authenticate(ctx context.Context, creds Credentials) error {
	accessExpiry, refreshExpiry, err := creds.Expiries()
	if err != nil {
		return errors.Wrap(err, "[Store Authenticate] invalid credentials")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	previous := make(map[string]*http.Cookie, len(entryNames))
	for _, name := range entryNames {
		c, err := s.storage.Get(ctx, name)
		if err != nil && !stderrors.Is(err, ErrNotFound) {
			return errors.Wrapf(err, "[Store Authenticate] failed to read %s", name)
		}
		previous[name] = c
	}

	entries := []*http.Cookie{
		NewEntry(AccessTokenEntry, creds.AccessToken, accessExpiry),
		NewEntry(RefreshTokenEntry, creds.RefreshToken, refreshExpiry),
		// the role lives as long as the refresh token
		NewEntry(ActiveRoleEntry, string(creds.ActiveRole), refreshExpiry),
	}
	for i, entry := range entries {
		if err := s.storage.Set(ctx, entry); err != nil {
			s.rollback(ctx, entries[:i], previous)
			return errors.Wrapf(err, "[Store Authenticate] failed to persist %s", entry.Name)
		}
	}

	s.commit(func(sess *Session) {
		*sess = Session{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			ActiveRole:   creds.ActiveRole,
		}
	})
	return nil
}

func (s *Store) rollback(ctx context.Context, written []*http.Cookie, previous map[string]*http.Cookie) {
	for _, entry := range written {
		var err error
		if prev := previous[entry.Name]; prev != nil {
			err = s.storage.Set(ctx, prev)
		} else {
			err = s.storage.Delete(ctx, entry.Name)
		}
		if err != nil {
			log.Err(err).Str("entry", entry.Name).Msg("Authenticate: failed to roll back session entry")
		}
	}
}

// Clear removes every entry from memory and durable storage. Memory is
// always cleared; durable delete failures are reported together.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	var errs []error
	for _, name := range entryNames {
		if err := s.storage.Delete(ctx, name); err != nil {
			errs = append(errs, errors.Wrapf(err, "delete %s", name))
		}
	}
	s.commit(func(sess *Session) { *sess = Session{} })

	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrap(err, "[Store Clear] failed to remove session entries")
	}
	return nil
}

// Expire tears the session down and sends the user back to login.
func (s *Store) Expire(ctx context.Context, reason Reason) error {
	err := s.Clear(ctx)
	s.navigator.ToLogin(reason)
	return err
}

// ExpireIf tears the session down only while it still holds refreshToken.
// It reports whether it did; a session already cleared or replaced is left
// alone and nobody is navigated.
func (s *Store) ExpireIf(ctx context.Context, refreshToken string, reason Reason) (bool, error) {
	s.writeMu.Lock()
	if s.Current().RefreshToken != refreshToken {
		s.writeMu.Unlock()
		return false, nil
	}
	err := s.clearLocked(ctx)
	s.writeMu.Unlock()

	s.navigator.ToLogin(reason)
	return true, err
}

// Renewal is a refreshed credential. An empty RefreshToken keeps the
// current one.
type Renewal struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// ApplyRenewal installs r on top of a session that still holds
// refreshToken. If the session was cleared or replaced while the renewal
// was in flight, nothing is written and ErrSessionChanged is returned.
func (s *Store) ApplyRenewal(ctx context.Context, refreshToken string, r Renewal) error {
	if r.AccessToken == "" {
		return errors.New("[Store ApplyRenewal] access token is required")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if refreshToken == "" || s.Current().RefreshToken != refreshToken {
		return ErrSessionChanged
	}

	if err := s.storage.Set(ctx, NewEntry(AccessTokenEntry, r.AccessToken, r.AccessTokenExpiry)); err != nil {
		return errors.Wrap(err, "[Store ApplyRenewal] failed to persist access token")
	}
	if r.RefreshToken == "" {
		s.commit(func(sess *Session) { sess.AccessToken = r.AccessToken })
		return nil
	}

	if err := s.storage.Set(ctx, NewEntry(RefreshTokenEntry, r.RefreshToken, r.RefreshTokenExpiry)); err != nil {
		s.commit(func(sess *Session) { sess.AccessToken = r.AccessToken })
		return errors.Wrap(err, "[Store ApplyRenewal] failed to persist rotated refresh token")
	}
	s.commit(func(sess *Session) {
		sess.AccessToken = r.AccessToken
		sess.RefreshToken = r.RefreshToken
	})
	return nil
}

// Logout notifies the backend on a best-effort basis, then always clears
// the session and navigates to login.
func (s *Store) Logout(ctx context.Context, notifier Notifier) error {
	if notifier != nil {
		if err := notifier.NotifyLogout(ctx); err != nil {
			log.Err(err).Msg("Logout: failed to notify backend")
		}
	}
	return s.Expire(ctx, ReasonLoggedOut)
}

// Token returns the access token as an oauth2 token, so the store can act
// as an oauth2.TokenSource. The expiry comes from the token's exp claim
// when it is a JWT.
func (s *Store) Token() (*oauth2.Token, error) {
	cur := s.Current()
	if cur.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	tok := &oauth2.Token{
		AccessToken:  cur.AccessToken,
		RefreshToken: cur.RefreshToken,
		TokenType:    "Bearer",
	}
	if exp, ok := tokenjwt.Expiry(cur.AccessToken); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

var _ oauth2.TokenSource = (*Store)(nil)

// Subscribe registers fn to be called with the new session after every
// change. fn runs while the store is mid-write and must not call its
// mutators. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

// commit applies mutate to the in-memory session and notifies subscribers
// when anything changed. Callers hold writeMu.
func (s *Store) commit(mutate func(*Session)) {
	s.mu.Lock()
	before := s.current
	mutate(&s.current)
	after := s.current
	s.mu.Unlock()

	if before == after {
		return
	}

	s.subsMu.Lock()
	subs := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(after)
	}
}
