package session

import (
	"errors"

	"github.com/jmcleod/techsync/fetch"
)

var (
	// ErrRejected indicates the server refused the credentials or request.
	ErrRejected = errors.New("rejected by server")
	// ErrExpired indicates the server no longer accepts the current token.
	ErrExpired = errors.New("session expired")
	// ErrNetwork indicates the request never produced a usable response.
	ErrNetwork = errors.New("network error")
	// ErrStorage indicates the persisted token could not be read or written.
	ErrStorage = errors.New("session storage error")
	// ErrSuperseded indicates a newer session change overtook the call; its
	// results were discarded.
	ErrSuperseded = errors.New("superseded by a newer session change")
	// ErrNotAuthenticated indicates an operation needed a token and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// User-facing messages.
const (
	MsgLoginFailed        = "Login failed"
	MsgRegistrationFailed = "Registration failed"
	MsgNetwork            = "Network error. Please try again."
	MsgSessionExpired     = "Session expired. Please login again."
	MsgStorage            = "Unable to save your session. Please try again."
	MsgSuperseded         = "Your session changed while this request was in flight."
	MsgNotAuthenticated   = "Please login to continue."
)

// Failure is the structured outcome of a session operation that did not
// succeed. Error returns Message, which is safe to show to the user; Kind
// classifies the failure for errors.Is; Err keeps the underlying cause.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if f.Kind != nil {
		errs = append(errs, f.Kind)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

func rejected(detail, fallback string) *Failure {
	if detail == "" {
		detail = fallback
	}
	return &Failure{Kind: ErrRejected, Message: detail}
}

// transportFailure classifies an error returned by the fetcher. Timeouts
// keep their own message so callers can suggest checking the connection.
func transportFailure(err error) *Failure {
	if errors.Is(err, fetch.ErrTimeout) {
		return &Failure{Kind: fetch.ErrTimeout, Message: fetch.TimeoutMessage, Err: err}
	}
	return &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
}
