package meetings

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jrsteele09/go-portal-client/internal/validation"
)

// Multipart field names expected by the attendance endpoints.
const (
	fieldSessionProof    = "session_proof"
	fieldAttendanceProof = "session_attendance_proof"
	fieldSessionFeedback = "session_feedback"
	defaultSignatureName = "signature.png"
)

// File is an uploaded image.
type File struct {
	Name    string
	Content []byte
}

// StudentAttendance is what a student submits: a photo proving the meeting
// happened and a hand-drawn signature.
type StudentAttendance struct {
	SessionProof *File
	Signature    *File
}

// MentorAttendance is what a mentor submits: a proof image and optional feedback.
type MentorAttendance struct {
	SessionProof    *File
	SessionFeedback string
}

func (a StudentAttendance) validate() error {
	if err := checkImage(fieldSessionProof, a.SessionProof, "Please upload a proof of attendance."); err != nil {
		return err
	}
	return checkImage("signature", a.Signature, "Please draw a signature first.")
}

func (a MentorAttendance) validate() error {
	return checkImage(fieldAttendanceProof, a.SessionProof, "Please upload a proof of attendance.")
}

// checkImage requires a non-empty file whose content sniffs as an image.
func checkImage(field string, f *File, missing string) error {
	if f == nil || len(f.Content) == 0 {
		return validation.Field(field, missing)
	}
	if !strings.HasPrefix(mimetype.Detect(f.Content).String(), "image/") {
		return validation.Field(field, "Only image files are allowed.")
	}
	return nil
}

func (a StudentAttendance) encode() ([]byte, string, error) {
	form := newForm()
	if err := form.file(fieldSessionProof, a.SessionProof); err != nil {
		return nil, "", err
	}
	signature := *a.Signature
	if signature.Name == "" {
		signature.Name = defaultSignatureName
	}
	if err := form.file(fieldAttendanceProof, &signature); err != nil {
		return nil, "", err
	}
	return form.close()
}

func (a MentorAttendance) encode() ([]byte, string, error) {
	form := newForm()
	if err := form.file(fieldAttendanceProof, a.SessionProof); err != nil {
		return nil, "", err
	}
	if a.SessionFeedback != "" {
		if err := form.w.WriteField(fieldSessionFeedback, a.SessionFeedback); err != nil {
			return nil, "", err
		}
	}
	return form.close()
}

type multipartForm struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

func newForm() *multipartForm {
	f := &multipartForm{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *multipartForm) file(field string, file *File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
	h.Set("Content-Type", mimetype.Detect(file.Content).String())
	part, err := f.w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(file.Content)
	return err
}

func (f *multipartForm) close() ([]byte, string, error) {
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return f.buf.Bytes(), f.w.FormDataContentType(), nil
}
