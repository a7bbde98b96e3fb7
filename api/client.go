package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	perrors "github.com/jrsteele09/go-portal-client/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrRequestFailed wraps transport failures: the request never produced a response.
var ErrRequestFailed = perrors.ErrRequestFailed

const (
	contentTypeJSON = "application/json"
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 10 << 20
)

// Request is a backend call relative to the client's base URL. Body is kept
// as bytes so the request can be resubmitted.
type Request struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Header      http.Header
}

// NewRequest builds a request with a raw body.
func NewRequest(method, path string, body []byte, contentType string) *Request {
	return &Request{
		Method:      method,
		Path:        path,
		Body:        body,
		ContentType: contentType,
		Header:      make(http.Header),
	}
}

// NewJSONRequest builds a request whose body is payload encoded as JSON.
// A nil payload sends no body.
func NewJSONRequest(method, path string, payload any) (*Request, error) {
	if payload == nil {
		return NewRequest(method, path, nil, ""), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "[NewJSONRequest] failed to encode payload")
	}
	return NewRequest(method, path, body, contentTypeJSON), nil
}

// Client sends requests to the backend and decodes the response envelope.
// It knows nothing about credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outbound requests. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a Client for the versioned API root, e.g. "https://host/api/v1".
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs req. Decorators run on the outgoing http.Request after the
// request's own headers are applied. Any HTTP status is a response; only
// transport failures return an error.
func (c *Client) Send(ctx context.Context, req *Request, decorators ...func(*http.Request)) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "rate limit wait: %v", err)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+"/"+strings.TrimLeft(req.Path, "/"), body)
	if err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "build request: %v", err)
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for _, decorate := range decorators {
		decorate(httpReq)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "%s %s: %v", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(ErrRequestFailed, "read response: %v", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
	}
	// Non-JSON bodies (proxies, HTML error pages) leave the envelope empty.
	_ = json.Unmarshal(raw, &resp.Envelope)
	return resp, nil
}
