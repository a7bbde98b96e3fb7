package session

import (
	"strings"
	"time"

	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/pkg/errors"
)

var (
	ErrSessionExpired = perrors.ErrSessionExpired
	ErrInvalidRole    = perrors.ErrInvalidRole
	ErrNotFound       = perrors.ErrNotFound
	ErrNoAccessToken  = errors.New("no access token")
	// ErrSessionChanged matches ErrSessionExpired as well.
	ErrSessionChanged = errors.Wrap(perrors.ErrSessionExpired, "session changed during renewal")
)

// Role is the capacity the authenticated principal is acting in.
type Role string

const (
	RoleUser   Role = "user"
	RoleMentor Role = "mentor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleMentor
}

// ParseRole converts s to a Role, rejecting anything outside the known set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", errors.Wrapf(ErrInvalidRole, "%q", s)
	}
	return r, nil
}

// Session is a snapshot of the current authentication state.
// Empty fields are absent values.
type Session struct {
	AccessToken  string
	RefreshToken string
	ActiveRole   Role
}

// Authenticated reports whether both tokens are present.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Credentials is the credential bundle issued by the backend on login,
// activation or verification.
type Credentials struct {
	ActiveRole         Role   `json:"active_role"`
	AccessToken        string `json:"access_token"`
	RefreshToken       string `json:"refresh_token"`
	AccessTokenExpiry  string `json:"access_token_expiry"`
	RefreshTokenExpiry string `json:"refresh_token_expiry"`
}

// Expiries validates the bundle and returns the parsed access and refresh expiries.
func (c Credentials) Expiries() (access time.Time, refresh time.Time, err error) {
	if c.AccessToken == "" || c.RefreshToken == "" {
		return time.Time{}, time.Time{}, errors.Wrap(perrors.ErrInvalidInput, "credentials require both tokens")
	}
	if !c.ActiveRole.Valid() {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrInvalidRole, "%q", c.ActiveRole)
	}
	if access, err = ParseExpiry(c.AccessTokenExpiry); err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "access_token_expiry")
	}
	if refresh, err = ParseExpiry(c.RefreshTokenExpiry); err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "refresh_token_expiry")
	}
	return access, refresh, nil
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseExpiry parses an expiry timestamp as sent by the backend.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.Wrap(perrors.ErrInvalidInput, "empty expiry")
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Wrapf(perrors.ErrInvalidInput, "unrecognised expiry %q", s)
}
