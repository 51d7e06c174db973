// Package session owns the client's authentication state: the bearer
// token, the current user's profile, and whether the persisted token has
// been restored yet.
//
// A Store is the single writer of that state and of the persisted token.
// Every mutation takes a new generation number; a call whose generation is
// no longer current when its network round trip finishes discards its
// results, so a slow Restore cannot overwrite a later Login and a Login
// that completes after Logout cannot resurrect the session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/techsync/fetch"
	"github.com/jmcleod/techsync/internal/event"
	"github.com/jmcleod/techsync/internal/util"
	"github.com/jmcleod/techsync/storage"
	"github.com/jmcleod/techsync/validate"
)

const (
	// TokenKey is the durable key holding the bearer token.
	TokenKey = "authToken"
	// DefaultRole is sent with every registration.
	DefaultRole = "technician"
)

// User is the profile returned by /auth/me.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// State is a snapshot of the session.
type State struct {
	Token   string
	User    *User
	Loading bool
}

// Authenticated is derived from the token alone: the profile may still be
// loading, or its fetch may have failed.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// Fetcher sends one request. *fetch.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Store manages the session lifecycle. The zero value is not usable; call New.
type Store struct {
	base    *url.URL
	fetcher Fetcher
	repo    storage.Repository
	logger  *slog.Logger
	role    string

	mu      sync.Mutex
	gen     uint64
	token   *memguard.Enclave
	user    *User
	loading bool

	changes event.Feed[State]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRole overrides the role sent on registration.
func WithRole(role string) Option {
	return func(s *Store) {
		s.role = role
	}
}

// New creates a Store in the loading state. Call Restore to load any
// persisted token.
func New(base *url.URL, fetcher Fetcher, repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		base:    base,
		fetcher: fetcher,
		repo:    repo,
		role:    DefaultRole,
		loading: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// State returns a snapshot of the session.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Token returns the current bearer token, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked()
}

// User returns a copy of the current profile, or nil.
func (s *Store) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUser(s.user)
}

// Authenticated reports whether a token is present.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil
}

// Loading reports whether Restore has not completed yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn to receive a snapshot after every state change.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// Authorize sets the bearer header on req. It reports false, leaving req
// untouched, when there is no token.
func (s *Store) Authorize(req *http.Request) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	setBearer(req, token)
	return true
}

// Restore loads the persisted token and validates it against the server.
// With nothing persisted no request is made. A token the server rejects is
// cleared. Loading is false once Restore returns, whatever the outcome.
func (s *Store) Restore(ctx context.Context) error {
	gen := s.begin()
	defer s.finishLoading()

	data, err := s.repo.Get(TokenKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case errors.Is(err, storage.ErrSealedCorrupt):
		s.logger.WarnContext(ctx, "persisted token unreadable, discarding", "error", err)
		s.discardPersisted(ctx)
		return nil
	case err != nil:
		s.logger.ErrorContext(ctx, "reading persisted token", "error", err)
		return &Failure{Kind: ErrStorage, Message: MsgStorage, Err: err}
	}

	token := string(data)
	util.WipeBytes(data)
	if token == "" {
		s.discardPersisted(ctx)
		return nil
	}

	if err := s.commit(gen, func() error {
		s.setTokenLocked(token)
		s.user = nil
		return nil
	}); err != nil {
		return err
	}
	return s.fetchProfile(ctx, gen, token)
}

// Login exchanges credentials for a token, persists it and loads the
// profile. Every failure is returned as a *Failure; a rejected login leaves
// both the in-memory and the persisted token untouched.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = util.NormalizeText(email)
	if err := validate.Login(email, password); err != nil {
		return &Failure{Kind: validate.ErrInvalid, Message: err.Error(), Err: err}
	}
	return s.login(ctx, s.begin(), email, password)
}

// Register creates an account and, on success, logs in with the same
// credentials, returning the login's outcome. Both steps share one
// generation, so a Logout during either step discards the whole call.
func (s *Store) Register(ctx context.Context, email, password, fullName string) error {
	email = util.NormalizeText(email)
	fullName = util.NormalizeText(fullName)
	if err := validate.Account(email, password, fullName); err != nil {
		return &Failure{Kind: validate.ErrInvalid, Message: err.Error(), Err: err}
	}

	gen := s.begin()
	req, err := fetch.NewJSONRequest(ctx, http.MethodPost, s.endpoint("auth", "register"), registration{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     s.role,
	})
	if err != nil {
		return &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "registration request failed", "error", err)
		return transportFailure(err)
	}
	if !fetch.OK(resp.StatusCode) {
		detail := fetch.ErrorDetail(resp)
		s.logger.InfoContext(ctx, "registration rejected", "status", resp.StatusCode, "detail", detail)
		return rejected(detail, MsgRegistrationFailed)
	}
	fetch.Drain(resp)
	s.logger.InfoContext(ctx, "registered", "email", email)

	if !s.current(gen) {
		return &Failure{Kind: ErrSuperseded, Message: MsgSuperseded}
	}
	return s.login(ctx, gen, email, password)
}

func (s *Store) login(ctx context.Context, gen uint64, email, password string) error {
	token, err := s.requestToken(ctx, email, password)
	if err != nil {
		return err
	}

	if err := s.commit(gen, func() error {
		if err := s.repo.Put(TokenKey, []byte(token)); err != nil {
			s.logger.ErrorContext(ctx, "persisting token", "error", err)
			return &Failure{Kind: ErrStorage, Message: MsgStorage, Err: err}
		}
		s.setTokenLocked(token)
		s.user = nil
		return nil
	}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "logged in", "email", email)

	if err := s.fetchProfile(ctx, gen, token); err != nil {
		// A profile that failed to load in transit can be fetched again
		// later; a rejected or superseded session cannot.
		if errors.Is(err, ErrExpired) || errors.Is(err, ErrSuperseded) {
			return err
		}
		s.logger.WarnContext(ctx, "profile fetch after login failed", "error", err)
	}
	return nil
}

// FetchProfile reloads the current user's profile. A rejection clears the
// session; a transport failure leaves it as it was.
func (s *Store) FetchProfile(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	token := s.tokenLocked()
	s.mu.Unlock()

	if token == "" {
		return &Failure{Kind: ErrNotAuthenticated, Message: MsgNotAuthenticated}
	}
	return s.fetchProfile(ctx, gen, token)
}

// Logout removes the persisted token and clears the in-memory session.
// Calling it while logged out is harmless. Pending calls from before the
// logout are discarded when they finish.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	err := s.repo.Delete(TokenKey)
	s.clearLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	s.changes.Publish(st)
	if err != nil {
		s.logger.ErrorContext(ctx, "removing persisted token", "error", err)
		return &Failure{Kind: ErrStorage, Message: MsgStorage, Err: err}
	}
	s.logger.DebugContext(ctx, "logged out")
	return nil
}

// Expire clears the session if token is still the current one. It is the
// path taken when an authenticated call is answered with 401, and it leaves
// a newer session alone.
func (s *Store) Expire(ctx context.Context, token string) bool {
	s.mu.Lock()
	if token == "" || s.tokenLocked() != token {
		s.mu.Unlock()
		return false
	}
	s.gen++
	err := s.repo.Delete(TokenKey)
	s.clearLocked()
	st := s.stateLocked()
	s.mu.Unlock()

	s.changes.Publish(st)
	if err != nil {
		s.logger.ErrorContext(ctx, "removing persisted token", "error", err)
	}
	s.logger.InfoContext(ctx, "session expired, signed out")
	return true
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Store) requestToken(ctx context.Context, email, password string) (string, error) {
	req, err := fetch.NewJSONRequest(ctx, http.MethodPost, s.endpoint("auth", "login"), credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return "", &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "login request failed", "error", err)
		return "", transportFailure(err)
	}
	if !fetch.OK(resp.StatusCode) {
		detail := fetch.ErrorDetail(resp)
		s.logger.InfoContext(ctx, "login rejected", "status", resp.StatusCode, "detail", detail)
		return "", rejected(detail, MsgLoginFailed)
	}

	var body tokenResponse
	if err := fetch.DecodeJSON(resp, &body); err != nil {
		s.logger.WarnContext(ctx, "login response unreadable", "error", err)
		return "", &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
	}
	if body.AccessToken == "" {
		return "", &Failure{Kind: ErrRejected, Message: MsgLoginFailed}
	}
	return body.AccessToken, nil
}

func (s *Store) fetchProfile(ctx context.Context, gen uint64, token string) error {
	req, err := fetch.NewJSONRequest(ctx, http.MethodGet, s.endpoint("auth", "me"), nil)
	if err != nil {
		return &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
	}
	setBearer(req, token)

	resp, err := s.fetcher.Do(req)
	if err != nil {
		s.logger.WarnContext(ctx, "profile fetch failed", "error", err)
		return transportFailure(err)
	}
	if !fetch.OK(resp.StatusCode) {
		fetch.Drain(resp)
		s.logger.InfoContext(ctx, "profile fetch rejected token", "status", resp.StatusCode)
		if !s.Expire(ctx, token) {
			return &Failure{Kind: ErrSuperseded, Message: MsgSuperseded}
		}
		return &Failure{Kind: ErrExpired, Message: MsgSessionExpired}
	}

	var u User
	if err := fetch.DecodeJSON(resp, &u); err != nil {
		s.logger.WarnContext(ctx, "profile response unreadable", "error", err)
		return &Failure{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
	}

	return s.commit(gen, func() error {
		if s.tokenLocked() != token {
			return &Failure{Kind: ErrSuperseded, Message: MsgSuperseded}
		}
		s.user = &u
		return nil
	})
}

func (s *Store) endpoint(elem ...string) string {
	return s.base.JoinPath(elem...).String()
}

func (s *Store) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// commit applies fn if gen is still current and notifies subscribers when
// fn succeeds.
func (s *Store) commit(gen uint64, fn func() error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return &Failure{Kind: ErrSuperseded, Message: MsgSuperseded}
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.changes.Publish(st)
	return nil
}

func (s *Store) finishLoading() {
	s.mu.Lock()
	s.loading = false
	st := s.stateLocked()
	s.mu.Unlock()
	s.changes.Publish(st)
}

func (s *Store) discardPersisted(ctx context.Context) {
	if err := s.repo.Delete(TokenKey); err != nil {
		s.logger.ErrorContext(ctx, "removing persisted token", "error", err)
	}
}

func (s *Store) stateLocked() State {
	return State{
		Token:   s.tokenLocked(),
		User:    copyUser(s.user),
		Loading: s.loading,
	}
}

func (s *Store) tokenLocked() string {
	if s.token == nil {
		return ""
	}
	buf, err := s.token.Open()
	if err != nil {
		s.logger.Error("opening token enclave", "error", err)
		return ""
	}
	defer buf.Destroy()
	return string(buf.Bytes())
}

func (s *Store) setTokenLocked(token string) {
	// NewEnclave wipes its argument, so hand it a private copy.
	s.token = memguard.NewEnclave([]byte(token))
}

func (s *Store) clearLocked() {
	s.token = nil
	s.user = nil
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
