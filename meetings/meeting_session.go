package meetings

import (
	"time"

	"github.com/jrsteele09/go-portal-client/internal/utils"
	"github.com/jrsteele09/go-portal-client/session"
)

// StatusType is the lifecycle state of a meeting session.
type StatusType string

const (
	StatusScheduled StatusType = "scheduled"
	StatusCompleted StatusType = "completed"
	StatusCancelled StatusType = "cancelled"
)

// MeetingSession is a scheduled tutoring meeting between a student and a mentor.
type MeetingSession struct {
	ID                     int64      `json:"id"`
	UserID                 int64      `json:"user_id"`
	MentorID               int64      `json:"mentor_id"`
	SessionDate            string     `json:"session_date"`
	SessionTime            string     `json:"session_time"`
	SessionDuration        int        `json:"session_duration"` // minutes
	SessionType            string     `json:"session_type"`
	SessionTopic           string     `json:"session_topic"`
	SessionDescription     *string    `json:"session_description,omitempty"`
	SessionProof           *string    `json:"session_proof,omitempty"`
	SessionFeedback        *string    `json:"session_feedback,omitempty"`
	StudentAttendanceProof *string    `json:"student_attendance_proof,omitempty"`
	MentorAttendanceProof  *string    `json:"mentor_attendance_proof,omitempty"`
	SessionStatus          StatusType `json:"session_status"`
	IsStudentAttended      bool       `json:"is_student_attended"`
	IsMentorAttended       bool       `json:"is_mentor_attended"`
	CreatedAt              string     `json:"created_at"`
	UpdatedAt              string     `json:"updated_at"`
}

func (m *MeetingSession) Duration() time.Duration {
	return time.Duration(m.SessionDuration) * time.Minute
}

func (m *MeetingSession) Description() string {
	return utils.Value(m.SessionDescription)
}

func (m *MeetingSession) Feedback() string {
	return utils.Value(m.SessionFeedback)
}

// Attended reports whether the participant acting in role has already
// submitted attendance.
func (m *MeetingSession) Attended(role session.Role) bool {
	switch role {
	case session.RoleUser:
		return m.IsStudentAttended
	case session.RoleMentor:
		return m.IsMentorAttended
	default:
		return false
	}
}

// AttendanceProof returns the proof path uploaded by the participant acting in role.
func (m *MeetingSession) AttendanceProof(role session.Role) string {
	switch role {
	case session.RoleUser:
		return utils.Value(m.StudentAttendanceProof)
	case session.RoleMentor:
		return utils.Value(m.MentorAttendanceProof)
	default:
		return ""
	}
}
