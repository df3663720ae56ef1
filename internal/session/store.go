package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"campus-rides/internal/metrics"
	"campus-rides/internal/notify"
	"campus-rides/pkg/apiclient"
	"campus-rides/pkg/jwt"
	"campus-rides/pkg/sequence"
)

// ErrSessionInvalid marks a profile load that failed while a token was
// held. The session has been cleared when it is returned.
var ErrSessionInvalid = errors.New("session invalid")

// Error is returned by failed session operations. Message is what the user
// is shown.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Op + ": " + e.Message }
func (e *Error) Unwrap() error { return e.Err }

// API is the part of the backend client the store needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	SetBearer(token string)
}

// Change is delivered to subscribers after every transition.
type Change struct {
	Event string
	State State
}

type authPayload struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type userPayload struct {
	User User `json:"user"`
}

// Store owns the session state. Transitions go through Reduce under mu.
// Their side effects (credential persistence and the client's bearer
// header) and subscriber delivery run after mu is released, one transition
// at a time in the order the transitions were applied.
type Store struct {
	api      API
	creds    CredentialStore
	notifier notify.Notifier

	mu        sync.Mutex
	state     State
	listeners map[int]func(Change)
	nextID    int

	effects sequence.Sequencer

	initOnce sync.Once
	initErr  error
}

// NewStore returns a store in the loading state. Call Initialize once the
// process is ready to talk to the backend.
func NewStore(api API, creds CredentialStore, n notify.Notifier) *Store {
	if n == nil {
		n = notify.Discard
	}
	return &Store{
		api:       api,
		creds:     creds,
		notifier:  n,
		state:     State{Loading: true},
		listeners: make(map[int]func(Change)),
	}
}

// Initialize restores a persisted credential and loads its user. Only the
// first call does any work; later calls return the first result.
func (s *Store) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		token, err := s.creds.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("[session] credential store unreadable, starting signed out")
			token = ""
		}
		if token == "" {
			s.dispatch(ctx, SessionAbsent{})
			return
		}
		s.dispatch(ctx, TokenRestored{Token: token})
		_, s.initErr = s.LoadUser(ctx)
	})
	return s.initErr
}

// Login exchanges credentials for a session.
func (s *Store) Login(ctx context.Context, email, password string) (User, error) {
	body := map[string]string{"email": email, "password": password}
	return s.authenticate(ctx, "login", "/auth/login", body, "Login failed", "Login successful!")
}

// Register creates an account and signs it in.
func (s *Store) Register(ctx context.Context, data map[string]any) (User, error) {
	return s.authenticate(ctx, "register", "/auth/register", data, "Registration failed", "Registration successful!")
}

func (s *Store) authenticate(ctx context.Context, op, path string, body any, fallback, success string) (User, error) {
	s.dispatch(ctx, LoadStarted{})

	var resp authPayload
	err := s.api.Post(ctx, path, body, &resp)
	if err == nil && resp.Token == "" {
		err = errors.New("response carried no token")
	}
	if err != nil {
		msg := apiclient.Message(err, fallback)
		s.dispatch(ctx, AuthFailed{Message: msg})
		s.toast(ctx, notify.LevelError, msg)
		return nil, &Error{Op: op, Message: msg, Err: err}
	}

	next := s.dispatch(ctx, AuthSucceeded{Token: resp.Token, User: resp.User})
	s.toast(ctx, notify.LevelSuccess, success)
	log.Info().Str("user", next.User.ID()).Msgf("[session] %s ok", op)
	return next.User.Clone(), nil
}

// LoadUser fetches the profile for the held token. Any failure clears the
// session and wraps ErrSessionInvalid; no toast is raised.
func (s *Store) LoadUser(ctx context.Context) (User, error) {
	s.dispatch(ctx, LoadStarted{})

	var resp userPayload
	if err := s.api.Get(ctx, "/auth/profile", nil, &resp); err != nil {
		msg := apiclient.Message(err, "Failed to load user")
		s.dispatch(ctx, AuthFailed{Message: msg})
		log.Warn().Err(err).Msg("[session] profile load failed, session cleared")
		return nil, &Error{Op: "load user", Message: msg, Err: fmt.Errorf("%w: %w", ErrSessionInvalid, err)}
	}

	next := s.dispatch(ctx, UserLoaded{User: resp.User})
	return next.User.Clone(), nil
}

// UpdateProfile sends fields to the backend and merges the returned user
// over the current one. On failure the session is left untouched.
func (s *Store) UpdateProfile(ctx context.Context, fields map[string]any) (User, error) {
	var resp userPayload
	if err := s.api.Put(ctx, "/auth/profile", fields, &resp); err != nil {
		msg := apiclient.Message(err, "Failed to update profile")
		s.toast(ctx, notify.LevelError, msg)
		return nil, &Error{Op: "update profile", Message: msg, Err: err}
	}

	next := s.dispatch(ctx, ProfileMerged{Fields: resp.User})
	s.toast(ctx, notify.LevelSuccess, "Profile updated successfully!")
	return next.User.Clone(), nil
}

// Logout ends the session locally. The backend is not contacted.
func (s *Store) Logout(ctx context.Context) {
	s.dispatch(ctx, LoggedOut{})
	s.toast(ctx, notify.LevelInfo, "Logged out successfully")
}

// ClearError dismisses the last error message.
func (s *Store) ClearError(ctx context.Context) {
	s.dispatch(ctx, ErrorCleared{})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Claims decodes the held token without verifying it. It returns
// jwt.ErrNotJWT for opaque tokens and (nil, nil) when signed out.
func (s *Store) Claims() (*jwt.Claims, error) {
	token := s.Snapshot().Token
	if token == "" {
		return nil, nil
	}
	return jwt.Inspect(token)
}

// Subscribe registers fn for every later transition and returns a function
// that removes it. fn runs on the goroutine that caused the transition and
// must not call the store's operations.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) dispatch(ctx context.Context, ev Event) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, ev)
	s.state = next
	ticket := s.effects.Ticket()
	listeners := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(ev.Name()).Inc()
	s.effects.Run(ticket, func() {
		s.applyEffects(ctx, ev, prev, next)
		for _, fn := range listeners {
			fn(Change{Event: ev.Name(), State: next.clone()})
		}
	})
	return next
}

// applyEffects runs in ticket order without s.mu held.
func (s *Store) applyEffects(ctx context.Context, ev Event, prev, next State) {
	switch ev.(type) {
	case AuthSucceeded:
		if err := s.creds.Save(ctx, next.Token); err != nil {
			log.Error().Err(err).Msg("[session] failed to persist token")
		}
	case AuthFailed, LoggedOut:
		if err := s.creds.Clear(ctx); err != nil {
			log.Error().Err(err).Msg("[session] failed to clear token")
		}
	}
	if prev.Token != next.Token {
		s.api.SetBearer(next.Token)
	}
}

func (s *Store) toast(ctx context.Context, level notify.Level, msg string) {
	s.notifier.Notify(ctx, notify.New(level, "session", msg))
}
