// Package httpx is a small JSON-over-HTTP client with bearer auth, an
// outbound rate limit and a shared error taxonomy. Provider integrations
// build their API calls on it.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is a non-2xx response. Body is truncated for logging.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.URL, e.Status, e.Body)
}

// IsTransient reports whether the error is worth retrying on a later sweep:
// rate limiting, server-side failures, timeouts and transport errors.
// Anything else (auth failures, bad requests) is permanent.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Transport failures surface as *url.Error, which satisfies net.Error.
	var ne net.Error
	return errors.As(err, &ne)
}

const maxErrBody = 512

// Client wraps one upstream API host. The limiter smooths request bursts so
// a sweep over many rules cannot hammer a provider.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// Options tunes a Client. Zero values get sensible defaults.
type Options struct {
	Timeout time.Duration // per-request; default 30s
	RPS     float64       // sustained requests per second; default 10
	Burst   int           // default 5
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
	}
}

// Request describes one JSON API call.
type Request struct {
	Method string
	URL    string
	Token  string            // bearer token, optional
	Header map[string]string // extra headers
	Body   any               // marshalled as JSON when non-nil
	// RawBody is sent verbatim; set a Content-Type header alongside it.
	// Mutually exclusive with Body.
	RawBody []byte
	Query   map[string]string
}

// Do performs the call and decodes a 2xx JSON response into out (skipped when
// out is nil or the body is empty). Non-2xx responses become *StatusError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	switch {
	case req.Body != nil:
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return err
	}
	if len(req.Query) > 0 {
		q := hreq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		hreq.URL.RawQuery = q.Encode()
	}
	if req.Body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	hreq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if c.UserAgent != "" {
		hreq.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range req.Header {
		hreq.Header.Set(k, v)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &StatusError{Status: resp.StatusCode, URL: hreq.URL.String(), Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", hreq.URL.String(), err)
	}
	return nil
}

// Get is Do with method GET.
func (c *Client) Get(ctx context.Context, url, token string, query map[string]string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Token: token, Query: query}, out)
}

// Post is Do with method POST and a JSON body.
func (c *Client) Post(ctx context.Context, url, token string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Token: token, Body: body}, out)
}
