package meetings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-portal-client/api"
	"github.com/jrsteele09/go-portal-client/gateway"
	"github.com/jrsteele09/go-portal-client/session"
	"github.com/pkg/errors"
)

const (
	RouteMySessions = "/meeting-sessions/me"
	routeSession    = "/meeting-sessions/%d"
	routeStudent    = "/meeting-sessions/%d/student-attend"
	routeMentor     = "/meeting-sessions/%d/mentor-attend"
)

// ErrNoActiveRole is returned when attendance is submitted without a signed-in role.
var ErrNoActiveRole = errors.New("no active role")

// Doer sends a request through the authenticated gateway.
type Doer interface {
	Do(ctx context.Context, req *gateway.Request) (*api.Response, error)
}

// Service reads meeting sessions and submits attendance for the signed-in
// student or mentor.
type Service struct {
	gateway      Doer
	store        *session.Store
	imageBaseURL string
}

// NewService creates a new Service. imageBaseURL prefixes asset paths
// returned by the backend.
func NewService(gw Doer, store *session.Store, imageBaseURL string) (*Service, error) {
	if gw == nil {
		return nil, errors.New("[meetings NewService] gateway is required")
	}
	if store == nil {
		return nil, errors.New("[meetings NewService] store is required")
	}
	return &Service{
		gateway:      gw,
		store:        store,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
	}, nil
}

// List returns the signed-in user's meeting sessions.
func (s *Service) List(ctx context.Context) ([]MeetingSession, error) {
	resp, err := s.get(ctx, RouteMySessions)
	if err != nil {
		return nil, errors.Wrap(err, "[meetings List] failed to fetch meeting sessions")
	}

	var data struct {
		Sessions []MeetingSession `json:"sessions"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, errors.Wrap(err, "[meetings List] failed to decode meeting sessions")
	}
	if data.Sessions == nil {
		return []MeetingSession{}, nil
	}
	return data.Sessions, nil
}

// Get returns one meeting session.
func (s *Service) Get(ctx context.Context, id int64) (*MeetingSession, error) {
	resp, err := s.get(ctx, fmt.Sprintf(routeSession, id))
	if err != nil {
		return nil, errors.Wrapf(err, "[meetings Get] failed to fetch meeting session %d", id)
	}

	var data struct {
		Session *MeetingSession `json:"session"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "[meetings Get] failed to decode meeting session %d", id)
	}
	if data.Session == nil {
		return nil, errors.Errorf("[meetings Get] meeting session %d not found", id)
	}
	return data.Session, nil
}

// AttendAsStudent uploads the student's proof and signature.
func (s *Service) AttendAsStudent(ctx context.Context, id int64, a StudentAttendance) (json.RawMessage, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	body, contentType, err := a.encode()
	if err != nil {
		return nil, errors.Wrap(err, "[meetings AttendAsStudent] failed to encode attendance")
	}
	return s.submit(ctx, fmt.Sprintf(routeStudent, id), body, contentType)
}

// AttendAsMentor uploads the mentor's proof and optional feedback.
func (s *Service) AttendAsMentor(ctx context.Context, id int64, a MentorAttendance) (json.RawMessage, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	body, contentType, err := a.encode()
	if err != nil {
		return nil, errors.Wrap(err, "[meetings AttendAsMentor] failed to encode attendance")
	}
	return s.submit(ctx, fmt.Sprintf(routeMentor, id), body, contentType)
}

// Attend submits attendance in the capacity of the session's active role.
// Students must provide a signature; feedback is only sent for mentors.
func (s *Service) Attend(ctx context.Context, id int64, proof, signature *File, feedback string) (json.RawMessage, error) {
	switch role := s.store.ActiveRole(); role {
	case session.RoleUser:
		return s.AttendAsStudent(ctx, id, StudentAttendance{SessionProof: proof, Signature: signature})
	case session.RoleMentor:
		return s.AttendAsMentor(ctx, id, MentorAttendance{SessionProof: proof, SessionFeedback: feedback})
	default:
		return nil, ErrNoActiveRole
	}
}

// AssetURL turns an asset path from the backend into an absolute URL.
func (s *Service) AssetURL(path string) string {
	if path == "" {
		return ""
	}
	return s.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

func (s *Service) get(ctx context.Context, path string) (*api.Response, error) {
	req, err := api.NewJSONRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return s.gateway.Do(ctx, gateway.NewRequest(req))
}

func (s *Service) submit(ctx context.Context, path string, body []byte, contentType string) (json.RawMessage, error) {
	resp, err := s.gateway.Do(ctx, gateway.NewRequest(api.NewRequest(http.MethodPost, path, body, contentType)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to attend meeting session")
	}
	if !resp.Success() {
		return nil, errors.Wrap(api.NewStatusError(resp), "failed to attend meeting session")
	}
	return resp.Envelope.Data, nil
}
