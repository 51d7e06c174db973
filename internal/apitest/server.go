// Package apitest runs an in-memory stand-in for the TechSync HTTP API so
// that client packages can be tested end to end. It mirrors the real
// server's status codes and {"detail": ...} error bodies, and lets tests
// stall or fail individual routes.
package apitest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/techsync/internal/util"
)

// Route keys accepted by Stall, FailWith and Calls.
const (
	RouteLogin       = "POST /auth/login"
	RouteRegister    = "POST /auth/register"
	RouteMe          = "GET /auth/me"
	RouteListOrders  = "GET /work-orders"
	RouteCreateOrder = "POST /work-orders"
	RouteUpdateOrder = "PUT /work-orders/{id}"
	RouteDeleteOrder = "DELETE /work-orders/{id}"
)

var validStatuses = map[string]bool{
	"pending":     true,
	"in_progress": true,
	"completed":   true,
	"cancelled":   true,
}

// User is an account known to the fake server.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`

	passwordHash []byte
}

// Order is a work order as the fake server stores it.
type Order struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

// Server is a running fake API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	users      map[string]*User
	tokens     map[string]string
	orders     map[int64]*Order
	nextUserID int64
	nextID     int64
	stalls     map[string]chan struct{}
	forced     map[string]int
	calls      map[string]int
}

// New starts a fake API server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		users:      make(map[string]*User),
		tokens:     make(map[string]string),
		orders:     make(map[int64]*Order),
		nextUserID: 1,
		nextID:     1,
		stalls:     make(map[string]chan struct{}),
		forced:     make(map[string]int),
		calls:      make(map[string]int),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(func() {
		s.releaseAll()
		s.Close()
	})
	return s
}

// BaseURL returns the server address as a *url.URL.
func (s *Server) BaseURL() *url.URL {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Post("/auth/login", s.route(RouteLogin, s.login))
	r.Post("/auth/register", s.route(RouteRegister, s.register))
	r.Get("/auth/me", s.route(RouteMe, s.authed(s.me)))
	r.Get("/work-orders", s.route(RouteListOrders, s.authed(s.listOrders)))
	r.Post("/work-orders", s.route(RouteCreateOrder, s.authed(s.createOrder)))
	r.Put("/work-orders/{id}", s.route(RouteUpdateOrder, s.authed(s.updateOrder)))
	r.Delete("/work-orders/{id}", s.route(RouteDeleteOrder, s.authed(s.deleteOrder)))
	return r
}

// AddUser creates an account directly.
func (s *Server) AddUser(email, password, fullName string) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{
		ID:           s.nextUserID,
		Email:        email,
		FullName:     fullName,
		Role:         "technician",
		IsActive:     true,
		passwordHash: hash,
	}
	s.nextUserID++
	s.users[util.NormalizeEmail(email)] = u
	return u
}

// LookupUser returns the account registered under email.
func (s *Server) LookupUser(email string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[util.NormalizeEmail(email)]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// IssueToken returns a fresh valid token for email's account.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(util.NormalizeEmail(email))
}

// RevokeToken makes token invalid for subsequent requests.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// SeedOrder stores a work order and returns it.
func (s *Server) SeedOrder(title, description, status string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &Order{ID: s.nextID, Title: title, Status: status}
	if description != "" {
		o.Description = &description
	}
	s.nextID++
	s.orders[o.ID] = o
	return *o
}

// Order returns the stored work order with id.
func (s *Server) Order(id int64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// OrderCount reports how many work orders are stored.
func (s *Server) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Stall makes requests to route block until release is called or the
// client gives up.
func (s *Server) Stall(route string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.stalls[route] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.stalls[route] == ch {
				delete(s.stalls, route)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// FailWith makes route answer with status until cleared with status 0.
func (s *Server) FailWith(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.forced, route)
		return
	}
	s.forced[route] = status
}

// Calls reports how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls reports how many requests reached any route.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *Server) releaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for route, ch := range s.stalls {
		close(ch)
		delete(s.stalls, route)
	}
}

func (s *Server) issueLocked(email string) string {
	token := uuid.NewString()
	s.tokens[token] = email
	return token
}

// route wraps h with call counting, stalls and forced statuses.
func (s *Server) route(key string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[key]++
		stall := s.stalls[key]
		forced := s.forced[key]
		s.mu.Unlock()

		if stall != nil {
			select {
			case <-stall:
			case <-r.Context().Done():
				return
			}
		}
		if forced != 0 {
			writeDetail(w, forced, http.StatusText(forced))
			return
		}
		h(w, r)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *User)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		s.mu.Lock()
		email, ok := s.tokens[token]
		u := s.users[email]
		s.mu.Unlock()
		if !ok || u == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		h(w, r, u)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	key := util.NormalizeEmail(req.Email)
	s.mu.Lock()
	u := s.users[key]
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	s.mu.Lock()
	token := s.issueLocked(key)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if len(req.Password) < 8 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "Password must be at least 8 characters"}},
		})
		return
	}
	if req.Role != "admin" && req.Role != "technician" {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid role")
		return
	}
	if _, exists := s.LookupUser(req.Email); exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	u := s.AddUser(req.Email, req.Password, strings.TrimSpace(req.FullName))
	s.mu.Lock()
	u.Role = req.Role
	out := *u
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, u *User) {
	s.mu.Lock()
	out := *u
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, _ *User) {
	s.mu.Lock()
	out := make([]Order, 0, len(s.orders))
	for id := int64(1); id < s.nextID; id++ {
		if o, ok := s.orders[id]; ok {
			out = append(out, *o)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

type orderPayload struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

func decodeOrder(r *http.Request) (orderPayload, error) {
	p := orderPayload{Status: "pending"}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return p, errors.New("title is required")
	}
	if !validStatuses[p.Status] {
		return p, errors.New("invalid status")
	}
	return p, nil
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request, _ *User) {
	p, err := decodeOrder(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	o := &Order{ID: s.nextID, Title: p.Title, Description: p.Description, Status: p.Status}
	s.nextID++
	s.orders[o.ID] = o
	out := *o
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request, _ *User) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Work order not found")
		return
	}
	p, err := decodeOrder(r)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	o, ok := s.orders[id]
	if ok {
		o.Title, o.Description, o.Status = p.Title, p.Description, p.Status
	}
	var out Order
	if ok {
		out = *o
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Work order not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request, _ *User) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Work order not found")
		return
	}
	s.mu.Lock()
	_, ok := s.orders[id]
	delete(s.orders, id)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Work order not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
