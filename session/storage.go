package session

import (
	"context"
	"net/http"
	"time"
)

// Names of the durable entries.
const (
	AccessTokenEntry  = "accessToken"
	RefreshTokenEntry = "refreshToken"
	ActiveRoleEntry   = "activeRole"
)

var entryNames = []string{AccessTokenEntry, RefreshTokenEntry, ActiveRoleEntry}

// Storage persists session entries as cookies, each with its own expiry.
// Get returns ErrNotFound for missing or expired entries. Delete must not
// fail when the entry does not exist.
type Storage interface {
	Get(ctx context.Context, name string) (*http.Cookie, error)
	Set(ctx context.Context, cookie *http.Cookie) error
	Delete(ctx context.Context, name string) error
}

// NewEntry builds a durable entry with the security flags every session
// cookie carries: never sent over plain HTTP, never sent cross-site.
func NewEntry(name, value string, expiry time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiry.UTC(),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// Expired reports whether the entry's expiry is at or before now.
// Entries without an expiry never expire.
func Expired(c *http.Cookie, now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// Entry is the serialised form of a durable cookie, for storages that
// persist bytes rather than cookies.
type Entry struct {
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Expires  time.Time     `json:"expires"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"http_only,omitempty"`
	SameSite http.SameSite `json:"same_site,omitempty"`
}

// EntryFromCookie copies the persisted attributes of c.
func EntryFromCookie(c *http.Cookie) Entry {
	return Entry{
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
}

// Cookie rebuilds the cookie stored under name.
func (e Entry) Cookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    e.Value,
		Path:     e.Path,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HttpOnly,
		SameSite: e.SameSite,
	}
}
