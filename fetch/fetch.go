// Package fetch performs outbound HTTP calls bounded by a hard deadline so
// that a stalled network never leaves a caller waiting indefinitely.
//
// A Client arms a timer alongside every call. If the response headers
// arrive first the timer is disarmed and the response is handed back
// untouched; interpreting the status code is the caller's job. If the timer
// fires first the in-flight call is cancelled and the caller receives a
// *TimeoutError. Every other transport failure is returned unchanged so
// callers can tell "timed out" apart from "could not connect".
package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jmcleod/techsync/internal/logging"
)

const (
	// DefaultTimeout bounds a call when neither the client nor the call
	// sets one.
	DefaultTimeout = 15 * time.Second

	// TimeoutMessage is the user-facing text of a TimeoutError.
	TimeoutMessage = "Request timeout - please check your connection"

	// RequestIDHeader carries the per-attempt correlation ID.
	RequestIDHeader = "X-Request-ID"
)

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("request timeout")

// TimeoutError reports that the deadline fired before the server answered.
type TimeoutError struct {
	Method string
	URL    string
	After  time.Duration
}

func (e *TimeoutError) Error() string { return TimeoutMessage }
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Timeout lets TimeoutError satisfy net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps a Doer with the deadline guard.
type Client struct {
	doer    Doer
	clock   clockwork.Clock
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDoer sets the underlying transport. The default is a plain
// *http.Client with no timeout of its own.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// WithClock sets the clock used to arm deadlines.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithTimeout sets the default per-call deadline. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for per-attempt diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{},
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Timeout returns the client's default deadline.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do sends req bounded by the client's default deadline.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoTimeout(req, c.timeout)
}

// DoTimeout sends req bounded by timeout. The caller's request is not
// modified. On success the returned body must be closed, which also
// releases the attempt's context.
func (c *Client) DoTimeout(req *http.Request, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancelCause(logging.WithRequestID(req.Context(), id))
	attempt := req.Clone(ctx)
	attempt.Header.Set(RequestIDHeader, id)

	timer := c.clock.AfterFunc(timeout, func() { cancel(ErrTimeout) })
	start := c.clock.Now()
	resp, err := c.doer.Do(attempt)
	disarmed := timer.Stop()
	elapsed := c.clock.Since(start)

	if !disarmed || errors.Is(context.Cause(ctx), ErrTimeout) {
		if resp != nil {
			resp.Body.Close()
		}
		cancel(nil)
		c.logger.WarnContext(ctx, "request timed out",
			"method", req.Method, "path", req.URL.Path, "timeout", timeout)
		return nil, &TimeoutError{Method: req.Method, URL: req.URL.String(), After: timeout}
	}
	if err != nil {
		cancel(nil)
		c.logger.DebugContext(ctx, "request failed",
			"method", req.Method, "path", req.URL.Path, "elapsed", elapsed, "error", err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "request completed",
		"method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "elapsed", elapsed)
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { cancel(nil) }}
	return resp, nil
}

// releasingBody cancels the attempt's context once the caller is done
// with the response.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
