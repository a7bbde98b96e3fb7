// Package portaltest is an in-memory portal backend for tests. It speaks the
// same envelope and routes as the real API and lets tests script failures.
package portaltest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-portal-client/meetings"
	"github.com/jrsteele09/go-portal-client/session"
)

const apiPrefix = "/api/v1"

// Account is a portal user known to the fake backend.
type Account struct {
	ID         int64
	Name       string
	Email      string
	Password   string
	Role       string // account role: student, mentor or admin
	ActiveRole session.Role
}

// Upload records an attendance submission.
type Upload struct {
	SessionID int64
	Route     string
	Files     map[string][]byte
	Fields    map[string]string
}

// Server is the fake backend. Mount it with httptest via Start.
type Server struct {
	mux *http.ServeMux

	mu               sync.Mutex
	accounts         map[string]*Account
	activationTokens map[string]string // token -> email
	resetTokens      map[string]string // token -> email
	access           map[string]string // access token -> email
	refresh          map[string]string // refresh token -> email
	meetings         map[int64]*meetings.MeetingSession
	uploads          []Upload
	calls            map[string]int
	seq              int

	reject401     int
	failRefresh   bool
	rotateRefresh bool
	forbidden     map[string]bool
}

// New creates an empty fake backend.
func New() *Server {
	s := &Server{
		mux:              http.NewServeMux(),
		accounts:         make(map[string]*Account),
		activationTokens: make(map[string]string),
		resetTokens:      make(map[string]string),
		access:           make(map[string]string),
		refresh:          make(map[string]string),
		meetings:         make(map[int64]*meetings.MeetingSession),
		calls:            make(map[string]int),
		forbidden:        make(map[string]bool),
	}
	s.initRoutes()
	return s
}

// Start serves the backend on a local listener; the returned URL is the API
// root to give to api.NewClient. The server is closed with the test.
func (s *Server) Start(t interface{ Cleanup(func()) }) string {
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts.URL + apiPrefix
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RegisterRouteFunc mounts handler behind the common middleware plus mw.
func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
	chain := append([]func(http.HandlerFunc) http.HandlerFunc{s.LoggingMiddleware, s.CountingMiddleware}, mw...)
	s.mux.HandleFunc(pattern, ChainMiddleware(handler, chain...))
}

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+apiPrefix+"/auth/verify-email", s.verifyEmail)
	s.RegisterRouteFunc("POST "+apiPrefix+"/auth/login", s.login)
	s.RegisterRouteFunc("PUT "+apiPrefix+"/auth/refresh", s.renew)
	s.RegisterRouteFunc("POST "+apiPrefix+"/auth/verify-token", s.verifyToken)
	s.RegisterRouteFunc("DELETE "+apiPrefix+"/auth/logout", s.logout, s.AuthMiddleware)
	s.RegisterRouteFunc("POST "+apiPrefix+"/users/activate", s.activate)
	s.RegisterRouteFunc("POST "+apiPrefix+"/users/reset-password", s.requestReset)
	s.RegisterRouteFunc("PUT "+apiPrefix+"/users/update-password", s.updatePassword)
	s.RegisterRouteFunc("GET "+apiPrefix+"/users/me", s.me, s.AuthMiddleware)
	s.RegisterRouteFunc("GET "+apiPrefix+"/meeting-sessions/me", s.listMeetings, s.AuthMiddleware)
	s.RegisterRouteFunc("GET "+apiPrefix+"/meeting-sessions/{id}", s.getMeeting, s.AuthMiddleware)
	s.RegisterRouteFunc("POST "+apiPrefix+"/meeting-sessions/{id}/student-attend", s.attend("student-attend"), s.AuthMiddleware)
	s.RegisterRouteFunc("POST "+apiPrefix+"/meeting-sessions/{id}/mentor-attend", s.attend("mentor-attend"), s.AuthMiddleware)
}

// AddAccount registers an account that can log in.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := a
	s.accounts[a.Email] = &acc
}

// AddActivationToken makes token activate the account registered under email.
func (s *Server) AddActivationToken(token, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activationTokens[token] = email
}

// AddResetToken makes token reset the password of the account under email.
func (s *Server) AddResetToken(token, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTokens[token] = email
}

// AddMeeting stores a meeting session.
func (s *Server) AddMeeting(m meetings.MeetingSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := m
	s.meetings[m.ID] = &ms
}

// IssueSession creates tokens for email as if the user had logged in.
func (s *Server) IssueSession(email string) session.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(s.accounts[email])
}

// Reject401 makes the next n protected requests answer 401 whatever their token.
func (s *Server) Reject401(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject401 = n
}

// FailRefresh makes every renewal fail.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// RotateRefresh makes renewals issue a new refresh token.
func (s *Server) RotateRefresh(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotateRefresh = rotate
}

// Forbid makes the given route pattern (e.g. "GET /api/v1/users/me") answer 403.
func (s *Server) Forbid(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbidden[pattern] = true
}

// Calls returns how many times the route pattern was hit.
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

// Uploads returns the attendance submissions received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// ValidRefreshToken reports whether token is currently accepted for renewal.
func (s *Server) ValidRefreshToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refresh[token]
	return ok
}

// issue mints a credential bundle. Callers hold mu.
func (s *Server) issue(a *Account) session.Credentials {
	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	refresh := fmt.Sprintf("refresh-%d", s.seq)
	s.access[access] = a.Email
	s.refresh[refresh] = a.Email
	now := time.Now().UTC()
	return session.Credentials{
		ActiveRole:         a.ActiveRole,
		AccessToken:        access,
		RefreshToken:       refresh,
		AccessTokenExpiry:  now.Add(15 * time.Minute).Format(time.RFC3339),
		RefreshTokenExpiry: now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	env := map[string]any{"status": "success", "data": data}
	if status >= 300 {
		env = map[string]any{"status": "error", "message": data}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func decode(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	a, ok := s.accounts[body.Email]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": a.Email, "role": a.Role})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[body.Email]
	if !ok || a.Password != body.Password {
		writeJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, s.issue(a))
}

func (s *Server) renew(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[body.Token]
	if s.failRefresh || !ok {
		writeJSON(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	creds := s.issue(s.accounts[email])
	delete(s.refresh, creds.RefreshToken)
	data := map[string]any{
		"access_token":        creds.AccessToken,
		"access_token_expiry": creds.AccessTokenExpiry,
	}
	if s.rotateRefresh {
		delete(s.refresh, body.Token)
		s.refresh[creds.RefreshToken] = email
		data["refresh_token"] = creds.RefreshToken
		data["refresh_token_expiry"] = creds.RefreshTokenExpiry
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	_, activation := s.activationTokens[body.Token]
	_, reset := s.resetTokens[body.Token]
	s.mu.Unlock()
	if !activation && !reset {
		writeJSON(w, http.StatusNotFound, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	a := accountFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, email := range s.refresh {
		if email == a.Email {
			delete(s.refresh, token)
		}
	}
	delete(s.access, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActivationToken string `json:"activation_token"`
		Password        string `json:"password"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.activationTokens[body.ActivationToken]
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid activation token")
		return
	}
	delete(s.activationTokens, body.ActivationToken)
	a := s.accounts[email]
	a.Password = body.Password
	writeJSON(w, http.StatusOK, s.issue(a))
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(r, &body) {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[body.Email]; !ok {
		writeJSON(w, http.StatusNotFound, "account not found")
		return
	}
	s.seq++
	s.resetTokens[fmt.Sprintf("reset-%d", s.seq)] = body.Email
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token           string `json:"token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decode(r, &body) || body.NewPassword != body.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.resetTokens[body.Token]
	if !ok {
		writeJSON(w, http.StatusBadRequest, "invalid reset token")
		return
	}
	delete(s.resetTokens, body.Token)
	s.accounts[email].Password = body.NewPassword
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	a := accountFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{
		"id":    a.ID,
		"name":  a.Name,
		"email": a.Email,
		"role":  a.Role,
	}})
}

func (s *Server) listMeetings(w http.ResponseWriter, r *http.Request) {
	a := accountFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]meetings.MeetingSession, 0)
	for _, m := range s.meetings {
		if m.UserID == a.ID || m.MentorID == a.ID {
			list = append(list, *m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) getMeeting(w http.ResponseWriter, r *http.Request) {
	var id int64
	if _, err := fmt.Sscan(r.PathValue("id"), &id); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid id")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, "meeting session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": m})
}

func (s *Server) attend(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id int64
		if _, err := fmt.Sscan(r.PathValue("id"), &id); err != nil {
			writeJSON(w, http.StatusBadRequest, "invalid id")
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, "invalid form")
			return
		}

		up := Upload{SessionID: id, Route: route, Files: map[string][]byte{}, Fields: map[string]string{}}
		for name, headers := range r.MultipartForm.File {
			f, err := headers[0].Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, "invalid file")
				return
			}
			buf, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, "invalid file")
				return
			}
			up.Files[name] = buf
		}
		for name, values := range r.MultipartForm.Value {
			up.Fields[name] = values[0]
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		m, ok := s.meetings[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, "meeting session not found")
			return
		}
		if route == "student-attend" {
			m.IsStudentAttended = true
		} else {
			m.IsMentorAttended = true
			if fb, ok := up.Fields["session_feedback"]; ok {
				m.SessionFeedback = &fb
			}
		}
		s.uploads = append(s.uploads, up)
		writeJSON(w, http.StatusOK, map[string]any{"session": m})
	}
}
