// Package apitest runs an in-process stand-in for the rides REST backend so
// the client components can be exercised end to end in tests.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"campus-rides/pkg/jwt"
	"campus-rides/pkg/validation"
)

// Provider is the populated providerId of a ride.
type Provider struct {
	ID            string  `json:"_id"`
	Name          string  `json:"name"`
	AverageRating float64 `json:"averageRating,omitempty"`
	TotalReviews  int     `json:"totalReviews,omitempty"`
}

// Ride is a listing as the backend serializes it.
type Ride struct {
	ID             string   `json:"_id"`
	PickupLocation string   `json:"pickupLocation"`
	Destination    string   `json:"destination"`
	Date           string   `json:"date"`
	Time           string   `json:"time"`
	PricePerSeat   float64  `json:"pricePerSeat"`
	VehicleType    string   `json:"vehicleType"`
	AvailableSeats int      `json:"availableSeats"`
	TotalSeats     int      `json:"totalSeats"`
	Provider       Provider `json:"providerId"`
}

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Query         map[string]string
	Authorization string
	RequestID     string
}

type account struct {
	hash    []byte
	profile map[string]any
}

type failure struct {
	status  int
	message string
}

// Backend is the fake rides API.
type Backend struct {
	Server *httptest.Server
	Secret []byte

	mu       sync.Mutex
	accounts map[string]*account // by email
	rides    []Ride
	requests []Request
	failures map[string]failure // "METHOD /path" -> forced failure
}

// New starts a Backend; call Close when done.
func New() *Backend {
	b := &Backend{
		Secret:   []byte("apitest-secret"),
		accounts: map[string]*account{},
		failures: map[string]failure{},
	}

	r := chi.NewRouter()
	r.Use(b.record, b.injectFailures)
	r.Post("/api/auth/login", b.login)
	r.Post("/api/auth/register", b.register)
	r.Group(func(r chi.Router) {
		r.Use(b.requireAuth)
		r.Get("/api/auth/profile", b.getProfile)
		r.Put("/api/auth/profile", b.putProfile)
	})
	r.Get("/api/rides", b.listRides)

	b.Server = httptest.NewServer(r)
	return b
}

// URL is the API base URL (with the /api prefix).
func (b *Backend) URL() string { return b.Server.URL + "/api" }

// Close shuts the server down.
func (b *Backend) Close() { b.Server.Close() }

// AddUser registers an account and returns its id.
func (b *Backend) AddUser(email, password, name string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(email)] = &account{
		hash: hash,
		profile: map[string]any{
			"_id":           id,
			"name":          name,
			"email":         email,
			"role":          "student",
			"averageRating": 4.5,
		},
	}
	return id
}

// TokenFor issues a valid token for the account with email.
func (b *Backend) TokenFor(email string) string {
	b.mu.Lock()
	acc := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()
	if acc == nil {
		panic("apitest: unknown account " + email)
	}
	tok, err := jwt.Generate(b.Secret, acc.profile["_id"].(string), email, "student", time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

// SeedRides replaces the ride listings.
func (b *Backend) SeedRides(rides ...Ride) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rides = append([]Ride(nil), rides...)
}

// Fail makes every request to method+path answer status with message until
// Recover is called. An empty message sends a body without one.
func (b *Backend) Fail(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, message: message}
}

// Recover clears all forced failures.
func (b *Backend) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = map[string]failure{}
}

// Requests returns the requests seen so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests hit method+path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request to method+path.
func (b *Backend) LastRequest(method, path string) (Request, bool) {
	reqs := b.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return Request{}, false
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         q,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		f, ok := b.failures[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if ok {
			if f.message == "" {
				writeJSON(w, f.status, map[string]any{"success": false})
				return
			}
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxAccount struct{}

func withAccount(ctx context.Context, acc *account) context.Context {
	return context.WithValue(ctx, ctxAccount{}, acc)
}

func accountFrom(ctx context.Context) *account {
	acc, _ := ctx.Value(ctxAccount{}).(*account)
	return acc
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}
		claims, err := jwt.Validate(b.Secret, auth[len("Bearer "):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token is not valid")
			return
		}
		b.mu.Lock()
		acc := b.accounts[strings.ToLower(claims.Email)]
		b.mu.Unlock()
		if acc == nil {
			writeError(w, http.StatusUnauthorized, "Token is not valid")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), acc)))
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	b.mu.Lock()
	acc := b.accounts[strings.ToLower(req.Email)]
	b.mu.Unlock()
	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	b.writeAuth(w, http.StatusOK, req.Email, acc)
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email, _ := req["email"].(string)
	password, _ := req["password"].(string)
	name, _ := req["name"].(string)
	if !validation.ValidateEmail(email) {
		writeError(w, http.StatusBadRequest, "Please provide a valid email")
		return
	}
	if len(password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}
	b.mu.Lock()
	_, exists := b.accounts[strings.ToLower(email)]
	b.mu.Unlock()
	if exists {
		writeError(w, http.StatusBadRequest, "User already exists with this email")
		return
	}
	b.AddUser(email, password, name)

	b.mu.Lock()
	acc := b.accounts[strings.ToLower(email)]
	for k, v := range req {
		if k != "password" && k != "email" && k != "name" {
			acc.profile[k] = v
		}
	}
	b.mu.Unlock()
	b.writeAuth(w, http.StatusCreated, email, acc)
}

func (b *Backend) writeAuth(w http.ResponseWriter, status int, email string, acc *account) {
	token := b.TokenFor(email)
	b.mu.Lock()
	user := copyProfile(acc.profile)
	b.mu.Unlock()
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    map[string]any{"token": token, "user": user},
	})
}

func (b *Backend) getProfile(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r.Context())
	b.mu.Lock()
	user := copyProfile(acc.profile)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": user}})
}

func (b *Backend) putProfile(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := req["email"]; ok {
		writeError(w, http.StatusBadRequest, "Email cannot be changed")
		return
	}
	acc := accountFrom(r.Context())
	b.mu.Lock()
	for k, v := range req {
		if k != "password" && k != "_id" {
			acc.profile[k] = v
		}
	}
	user := copyProfile(acc.profile)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": user}})
}

func (b *Backend) listRides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}
	maxPrice, _ := strconv.ParseFloat(q.Get("maxPrice"), 64)

	b.mu.Lock()
	var matched []Ride
	for _, ride := range b.rides {
		if p := q.Get("pickup"); p != "" && !containsFold(ride.PickupLocation, p) {
			continue
		}
		if d := q.Get("destination"); d != "" && !containsFold(ride.Destination, d) {
			continue
		}
		if d := q.Get("date"); d != "" && ride.Date != d {
			continue
		}
		if v := q.Get("vehicleType"); v != "" && ride.VehicleType != v {
			continue
		}
		if maxPrice > 0 && ride.PricePerSeat > maxPrice {
			continue
		}
		matched = append(matched, ride)
	}
	b.mu.Unlock()

	sortRides(matched, q.Get("sortBy"))

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	out := matched[start:end]
	if out == nil {
		out = []Ride{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"rides": out,
			"pagination": map[string]any{
				"currentPage": page,
				"totalPages":  totalPages,
				"totalRides":  total,
			},
		},
	})
}

func sortRides(rides []Ride, by string) {
	less := func(i, j int) bool { return rides[i].Date+rides[i].Time < rides[j].Date+rides[j].Time }
	switch by {
	case "price":
		less = func(i, j int) bool { return rides[i].PricePerSeat < rides[j].PricePerSeat }
	case "-price":
		less = func(i, j int) bool { return rides[i].PricePerSeat > rides[j].PricePerSeat }
	case "seats":
		less = func(i, j int) bool { return rides[i].AvailableSeats > rides[j].AvailableSeats }
	}
	sort.SliceStable(rides, less)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func copyProfile(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
