// Package provider is the client for the external text-to-image endpoint.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrorKind classifies a failed generation.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1 // Connection failure or cancelled request
	KindTimeout                        // No answer within the client timeout
	KindBadStatus                      // Non-2xx HTTP status
	KindMalformed                      // Body is not the expected JSON
	KindRejected                       // Provider answered but did not produce an image
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindBadStatus:
		return "bad_status"
	case KindMalformed:
		return "malformed"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Error is returned for every failed generation.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image provider %s (HTTP %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("image provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a provider error, or 0 for other errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// Image is a successful generation.
type Image struct {
	URL string
}

type response struct {
	Status    string `json:"status"`
	ImageLink string `json:"image_link"`
	Message   string `json:"message,omitempty"`
}

// Client calls the image endpoint.
type Client struct {
	endpoint   *url.URL
	queryParam string
	httpClient *http.Client
}

// New creates a client for endpoint. The prompt is sent as the queryParam
// query value; an empty queryParam appends the escaped prompt as the raw query.
func New(endpoint, queryParam string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid provider endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid provider endpoint scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   u,
		queryParam: queryParam,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) requestURL(prompt string) string {
	u := *c.endpoint
	if c.queryParam == "" {
		u.RawQuery = url.QueryEscape(prompt)
		return u.String()
	}
	q := u.Query()
	q.Set(c.queryParam, prompt)
	u.RawQuery = q.Encode()
	return u.String()
}

// Generate asks the provider for an image of prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(prompt), nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindBadStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(truncate(string(body), 200))),
		}
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: err}
	}
	if r.Status != "success" {
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("status %q", r.Status)
		}
		return nil, &Error{Kind: KindRejected, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	link := strings.TrimSpace(r.ImageLink)
	if link == "" {
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Err: errors.New("missing image_link")}
	}

	return &Image{URL: link}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
