package workorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jmcleod/techsync/fetch"
	"github.com/jmcleod/techsync/session"
)

// User-facing messages.
const (
	MsgLoadFailed   = "Unable to load work orders."
	MsgSaveFailed   = "Failed to save work order"
	MsgDeleteFailed = "Failed to delete work order"
)

// ErrFailed indicates the server answered a work-order request with an
// unexpected status.
var ErrFailed = errors.New("work order request failed")

// Error describes a failed work-order call. Error returns Message, which
// is safe to show to the user.
type Error struct {
	Op      string
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Fetcher sends one request. *fetch.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session supplies the bearer token and is told when the server rejects it.
// *session.Store satisfies it.
type Session interface {
	Token() string
	Expire(ctx context.Context, token string) bool
}

// Client calls the work-order endpoints on behalf of the current session.
type Client struct {
	base    *url.URL
	fetcher Fetcher
	session Session
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client.
func NewClient(base *url.URL, fetcher Fetcher, sess Session, opts ...Option) *Client {
	c := &Client{base: base, fetcher: fetcher, session: sess}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// List returns every work order.
func (c *Client) List(ctx context.Context) ([]WorkOrder, error) {
	resp, err := c.send(ctx, "list", http.MethodGet, c.endpoint(), nil, MsgLoadFailed, fetch.OK)
	if err != nil {
		return nil, err
	}
	var out []WorkOrder
	if err := fetch.DecodeJSON(resp, &out); err != nil {
		return nil, c.unreadable(ctx, "list", MsgLoadFailed, err)
	}
	if out == nil {
		out = []WorkOrder{}
	}
	return out, nil
}

// Get returns the work order with id. The API has no single-item endpoint,
// so it is looked up in the full list.
func (c *Client) Get(ctx context.Context, id int64) (WorkOrder, error) {
	orders, err := c.List(ctx)
	if err != nil {
		return WorkOrder{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return WorkOrder{}, &Error{
		Op:      "get",
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("Work order %d not found", id),
		Err:     ErrFailed,
	}
}

// Create stores a new work order and returns it as saved.
func (c *Client) Create(ctx context.Context, in Input) (WorkOrder, error) {
	return c.save(ctx, "create", http.MethodPost, c.endpoint(), in)
}

// Update replaces the work order with id.
func (c *Client) Update(ctx context.Context, id int64, in Input) (WorkOrder, error) {
	return c.save(ctx, "update", http.MethodPut, c.endpoint(strconv.FormatInt(id, 10)), in)
}

// Delete removes the work order with id. Only 200 and 204 count as success.
func (c *Client) Delete(ctx context.Context, id int64) error {
	resp, err := c.send(ctx, "delete", http.MethodDelete, c.endpoint(strconv.FormatInt(id, 10)), nil,
		MsgDeleteFailed, deleted)
	if err != nil {
		return err
	}
	fetch.Drain(resp)
	c.logger.DebugContext(ctx, "work order deleted", "id", id)
	return nil
}

func deleted(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

func (c *Client) save(ctx context.Context, op, method, endpoint string, in Input) (WorkOrder, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return WorkOrder{}, err
	}
	resp, err := c.send(ctx, op, method, endpoint, in, MsgSaveFailed, fetch.OK)
	if err != nil {
		return WorkOrder{}, err
	}
	var out WorkOrder
	if err := fetch.DecodeJSON(resp, &out); err != nil {
		return WorkOrder{}, c.unreadable(ctx, op, MsgSaveFailed, err)
	}
	c.logger.DebugContext(ctx, "work order saved", "op", op, "id", out.ID)
	return out, nil
}

// send performs one authenticated call. A 401 expires the session that made
// the call; any status ok rejects becomes an *Error carrying failMsg.
func (c *Client) send(ctx context.Context, op, method, endpoint string, body any, failMsg string, ok func(int) bool) (*http.Response, error) {
	token := c.session.Token()
	if token == "" {
		return nil, &Error{Op: op, Message: session.MsgNotAuthenticated, Err: session.ErrNotAuthenticated}
	}

	req, err := fetch.NewJSONRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Op: op, Message: failMsg, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.fetcher.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "work order request failed", "op", op, "error", err)
		msg := failMsg
		if errors.Is(err, fetch.ErrTimeout) {
			msg = fetch.TimeoutMessage
		}
		return nil, &Error{Op: op, Message: msg, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		fetch.Drain(resp)
		c.logger.InfoContext(ctx, "work order request unauthorized", "op", op)
		c.session.Expire(ctx, token)
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: session.MsgSessionExpired, Err: session.ErrExpired}
	}
	if !ok(resp.StatusCode) {
		detail := fetch.ErrorDetail(resp)
		c.logger.WarnContext(ctx, "work order request rejected", "op", op, "status", resp.StatusCode, "detail", detail)
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: failMsg, Detail: detail, Err: ErrFailed}
	}
	return resp, nil
}

func (c *Client) unreadable(ctx context.Context, op, msg string, err error) error {
	c.logger.WarnContext(ctx, "work order response unreadable", "op", op, "error", err)
	return &Error{Op: op, Message: msg, Err: fmt.Errorf("decoding response: %w", err)}
}

func (c *Client) endpoint(elem ...string) string {
	return c.base.JoinPath(append([]string{"work-orders"}, elem...)...).String()
}
