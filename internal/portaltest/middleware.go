package portaltest

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type accountKey struct{}

// ChainMiddleware wraps routeFunction so that mw[0] runs first.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("portaltest request")
		next(w, r)
	}
}

// CountingMiddleware records a hit against the matched route pattern.
func (s *Server) CountingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Pattern]++
		s.mu.Unlock()
		next(w, r)
	}
}

// AuthMiddleware requires a known bearer token and honours the scripted
// Forbid and Reject401 failures. The account is available via accountFrom.
func (s *Server) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.forbidden[r.Pattern] {
			s.mu.Unlock()
			writeJSON(w, http.StatusForbidden, "forbidden")
			return
		}
		if s.reject401 > 0 {
			s.reject401--
			s.mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, "token expired")
			return
		}
		email, ok := s.access[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		a := s.accounts[email]
		s.mu.Unlock()
		if !ok || a == nil {
			writeJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, a)))
	}
}

func accountFrom(r *http.Request) *Account {
	a, _ := r.Context().Value(accountKey{}).(*Account)
	return a
}
