package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campus-rides/internal/session"
	"campus-rides/pkg/apiclient"
	"campus-rides/pkg/jwt"
	"campus-rides/pkg/validation"
)

// SessionService is the session store as the handlers use it.
type SessionService interface {
	Snapshot() session.State
	Claims() (*jwt.Claims, error)
	Login(ctx context.Context, email, password string) (session.User, error)
	Register(ctx context.Context, data map[string]any) (session.User, error)
	Logout(ctx context.Context)
	LoadUser(ctx context.Context) (session.User, error)
	UpdateProfile(ctx context.Context, fields map[string]any) (session.User, error)
	ClearError(ctx context.Context)
}

// SessionView is the public shape of the session. The token never leaves
// the process.
type SessionView struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	Loading         bool         `json:"loading"`
	User            session.User `json:"user"`
	Error           string       `json:"error,omitempty"`
	Claims          *ClaimsView  `json:"claims,omitempty"`
}

// ClaimsView summarizes the unverified token claims.
type ClaimsView struct {
	Subject   string     `json:"subject,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Expired   bool       `json:"expired"`
}

// NewSessionView builds the view from a state and, when the token is a
// JWT, its claims.
func NewSessionView(s session.State, claims *jwt.Claims) SessionView {
	v := SessionView{
		IsAuthenticated: s.IsAuthenticated(),
		Loading:         s.Loading,
		User:            s.User,
		Error:           s.Err,
	}
	if claims != nil && s.IsAuthenticated() {
		cv := &ClaimsView{
			Subject: claims.SubjectID(),
			Email:   claims.Email,
			Role:    claims.Role,
			Expired: claims.Expired(time.Now()),
		}
		if exp := claims.Expiry(); !exp.IsZero() {
			cv.ExpiresAt = &exp
		}
		v.Claims = cv
	}
	return v
}

// CurrentSessionView reads svc and builds its view.
func CurrentSessionView(svc SessionService) SessionView {
	claims, _ := svc.Claims()
	return NewSessionView(svc.Snapshot(), claims)
}

// SessionHandler exposes the session store.
type SessionHandler struct{ svc SessionService }

// NewSessionHandler wires a handler to the session store.
func NewSessionHandler(svc SessionService) *SessionHandler { return &SessionHandler{svc: svc} }

// Routes returns a chi.Router with all session routes.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Post("/logout", h.Logout)
	r.Post("/refresh", h.Refresh)
	r.Put("/profile", h.UpdateProfile)
	r.Delete("/error", h.ClearError)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User    session.User `json:"user"`
	Message string       `json:"message,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentSessionView(h.svc))
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user, Message: "Login successful!"})
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user, Message: "Registration successful!"})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.svc.Logout(r.Context())
	writeJSON(w, http.StatusOK, CurrentSessionView(h.svc))
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.LoadUser(r.Context())
	if errors.Is(err, session.ErrSessionInvalid) {
		writeError(w, http.StatusUnauthorized, failureMessage(err))
		return
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user, Message: "Profile updated successfully!"})
}

func (h *SessionHandler) ClearError(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearError(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// writeFailure maps an operation error to a status: validation 400, backend
// 4xx passed through, anything else 502.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), failureMessage(err))
}

func statusFor(err error) int {
	if validation.IsValidation(err) {
		return http.StatusBadRequest
	}
	if s := apiclient.StatusCode(err); s >= 400 && s < 500 {
		return s
	}
	return http.StatusBadGateway
}

func failureMessage(err error) string {
	var se *session.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
