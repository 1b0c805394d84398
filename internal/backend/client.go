// Package backend is the client for the store's REST API: orders, reviews, contact requests,
// authentication status, products and categories.
//
// Every method returns a result carrying Success and Error; transport and HTTP failures are
// folded into Error as customer-presentable text rather than returned as Go errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/resilience"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000"

// Messages reported when a request never got a usable answer.
const (
	MsgTimeout     = "Request timed out. Please try again."
	MsgUnreachable = "Could not connect to server."
)

// Opts configures a Client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Executor   *resilience.Executor
}

// Option mutates Opts.
type Option func(*Opts)

// WithBaseURL sets the API root, e.g. "https://shop.example.com".
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithExecutor routes requests through e. Writes share its breaker but are never retried.
func WithExecutor(e *resilience.Executor) Option {
	return func(o *Opts) { o.Executor = e }
}

// Client talks to the store backend.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	reads   *resilience.Executor
	writes  *resilience.Executor
}

// NewClient returns a client with a 10 second request timeout.
func NewClient(opts ...Option) *Client {
	o := Opts{BaseURL: DefaultBaseURL, Timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Executor == nil {
		o.Executor = resilience.NewExecutor(resilience.NameBackend)
	}
	writes := resilience.NewExecutor(resilience.NameBackend,
		resilience.WithRetry(resilience.NewRetry(resilience.WithMaxRetries(0))),
		resilience.WithBreaker(o.Executor.Breaker()),
	)
	return &Client{
		baseURL: strings.TrimRight(o.BaseURL, "/"),
		http:    o.HTTPClient,
		timeout: o.Timeout,
		reads:   o.Executor,
		writes:  writes,
	}
}

// httpError is a server-side failure; it may be retried and counts against the breaker.
type httpError struct {
	status  int
	message string
	body    gjson.Result
}

func (e *httpError) Error() string { return e.message }

func (e *httpError) Unwrap() error { return models.ErrExternalService }

// answer is an HTTP response the backend produced on purpose, including client errors.
type answer struct {
	status int
	body   gjson.Result
}

// statusError returns the message for a non-2xx status: the body's error field or a generic
// "Server error: N".
func statusError(status int, body gjson.Result) string {
	if e := body.Get("error").String(); e != "" {
		return e
	}
	return fmt.Sprintf("Server error: %d", status)
}

// reply is a decoded answer. err is the customer-facing reason the request failed; body may
// still hold the JSON of an error response.
type reply struct {
	body gjson.Result
	err  string
}

// ok reports whether the request succeeded and the body does not say otherwise.
func (r reply) ok() bool {
	if r.err != "" {
		return false
	}
	s := r.body.Get("success")
	return !s.Exists() || s.Bool()
}

// failure returns the error to report for a reply that is not ok.
func (r reply) failure() string {
	if r.err != "" {
		return r.err
	}
	if msg := r.body.Get("error").String(); msg != "" {
		return msg
	}
	if msg := r.body.Get("message").String(); msg != "" {
		return msg
	}
	return "Request failed"
}

func (c *Client) get(ctx context.Context, path string, query url.Values) reply {
	return c.do(ctx, c.reads, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any) reply {
	return c.do(ctx, c.writes, http.MethodPost, path, nil, payload)
}

func (c *Client) do(ctx context.Context, exec *resilience.Executor, method, path string, query url.Values, payload any) reply {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return reply{err: err.Error()}
		}
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	res := resilience.Execute(ctx, exec, func(ctx context.Context) (answer, error) {
		return c.roundTrip(ctx, method, target, body)
	}, nil)
	if res.Err != nil {
		slog.Debug("Client.do: request failed", "method", method, "path", path, "error", res.Err)
		var he *httpError
		if errors.As(res.Err, &he) {
			return reply{body: he.body, err: he.message}
		}
		return reply{err: describe(res.Err)}
	}
	if res.Value.status >= 300 {
		slog.Debug("Client.do: request rejected", "method", method, "path", path, "status", res.Value.status)
		return reply{body: res.Value.body, err: statusError(res.Value.status, res.Value.body)}
	}
	return reply{body: res.Value.body}
}

// roundTrip performs one request. Client errors come back as an answer so they neither retry
// nor trip the breaker.
func (c *Client) roundTrip(ctx context.Context, method, target string, body []byte) (answer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return answer{}, fmt.Errorf("build request: %w", models.ErrValidation)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return answer{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return answer{}, err
	}

	var parsed gjson.Result
	if gjson.ValidBytes(data) {
		parsed = gjson.ParseBytes(data)
	}
	switch {
	case resp.StatusCode >= 500:
		return answer{}, &httpError{status: resp.StatusCode, message: statusError(resp.StatusCode, parsed), body: parsed}
	case resp.StatusCode >= 300:
		return answer{status: resp.StatusCode, body: parsed}, nil
	case !parsed.Exists():
		return answer{}, fmt.Errorf("invalid JSON from %s: %w", target, models.ErrExternalService)
	}
	return answer{status: resp.StatusCode, body: parsed}, nil
}

// describe turns a transport error into the text shown to customers.
func describe(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return MsgTimeout
	case errors.Is(err, models.ErrCircuitOpen):
		return MsgUnreachable
	case errors.Is(err, models.ErrExternalService):
		return "Invalid response from server."
	default:
		return MsgUnreachable
	}
}
