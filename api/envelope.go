package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/pkg/errors"
)

// StatusSuccess is the envelope status of a successful call.
const StatusSuccess = "success"

// Envelope is the body shape of every backend response.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Response is a decoded backend response. Body keeps the raw bytes for
// responses that were not JSON.
type Response struct {
	StatusCode int
	Header     http.Header
	Envelope   Envelope
	Body       []byte
}

// OK reports a 2xx status code.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Success reports a 2xx status with a "success" envelope.
func (r *Response) Success() bool {
	return r.OK() && r.Envelope.Status == StatusSuccess
}

// HasData reports whether the envelope carries a non-null data member.
func (r *Response) HasData() bool {
	return len(r.Envelope.Data) > 0 && string(r.Envelope.Data) != "null"
}

// Decode unmarshals the envelope data into v.
func (r *Response) Decode(v any) error {
	if !r.HasData() {
		return errors.Wrap(perrors.ErrInvalidResponse, "response has no data")
	}
	if err := json.Unmarshal(r.Envelope.Data, v); err != nil {
		return errors.Wrapf(perrors.ErrInvalidResponse, "decode data: %v", err)
	}
	return nil
}

// StatusError is returned for responses the caller did not ask to handle.
type StatusError struct {
	StatusCode int
	Status     string // envelope status
	Message    string // envelope message
}

// NewStatusError builds a StatusError from a response.
func NewStatusError(resp *Response) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Envelope.Status,
		Message:    resp.Envelope.Message,
	}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return perrors.ErrUnexpectedStatus
}
