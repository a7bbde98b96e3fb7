package users

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/gateway"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/pkg/errors"
)

// RouteMe returns the signed-in user.
const RouteMe = "/users/me"

// RoleType is the account role as reported by the backend
type RoleType string

const (
	RoleStudent RoleType = "student"
	RoleMentor  RoleType = "mentor"
	RoleAdmin   RoleType = "admin" // cannot use the portal
)

// SessionRole maps an account role to the capacity a session acts in.
func (r RoleType) SessionRole() (session.Role, bool) {
	switch r {
	case RoleStudent:
		return session.RoleUser, true
	case RoleMentor:
		return session.RoleMentor, true
	default:
		return "", false
	}
}

type User struct {
	ID        int64    `json:"id,omitempty"`         // Unique identifier for the user
	Name      string   `json:"name,omitempty"`       // Display name
	Email     string   `json:"email,omitempty"`      // User's email address
	Phone     string   `json:"phone,omitempty"`      // Contact number
	Role      RoleType `json:"role,omitempty"`       // Account role
	Avatar    string   `json:"avatar,omitempty"`     // Asset path of the profile picture
	CreatedAt string   `json:"created_at,omitempty"` // Creation timestamp as sent by the backend
	UpdatedAt string   `json:"updated_at,omitempty"` // Last update timestamp as sent by the backend
}

// IsMentor reports whether the account can act as a mentor.
func (u *User) IsMentor() bool {
	return u.Role == RoleMentor
}

// Doer sends a request through the authenticated gateway.
type Doer interface {
	Do(ctx context.Context, req *gateway.Request) (*api.Response, error)
}

type Service struct {
	gateway Doer
}

func NewService(gw Doer) *Service {
	return &Service{gateway: gw}
}

// Me fetches the signed-in user's details.
func (s *Service) Me(ctx context.Context) (*User, error) {
	req, err := api.NewJSONRequest(http.MethodGet, RouteMe, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.gateway.Do(ctx, gateway.NewRequest(req))
	if err != nil {
		return nil, errors.Wrap(err, "[users Me] failed to fetch user details")
	}

	var data struct {
		User *User `json:"user"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, errors.Wrap(err, "[users Me] failed to decode user details")
	}
	if data.User == nil {
		return nil, errors.New("[users Me] response has no user")
	}
	return data.User, nil
}
