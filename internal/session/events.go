package session

import "fmt"

// Event is a session transition. The set is closed: only this package
// declares implementations, and Reduce handles every one of them.
type Event interface {
	Name() string
	sessionEvent()
}

// TokenRestored: a persisted credential was found at startup.
type TokenRestored struct{ Token string }

// LoadStarted: a login, register or profile load is in flight.
type LoadStarted struct{}

// AuthSucceeded: login or register returned a credential and a user.
type AuthSucceeded struct {
	Token string
	User  User
}

// UserLoaded: the profile for the current credential was fetched.
type UserLoaded struct{ User User }

// SessionAbsent: startup found no persisted credential.
type SessionAbsent struct{}

// AuthFailed: login, register or profile load failed. Clears the session.
type AuthFailed struct{ Message string }

// LoggedOut: explicit logout.
type LoggedOut struct{}

// ProfileMerged: a profile update returned fields to lay over the user.
type ProfileMerged struct{ Fields User }

// ErrorCleared: the UI dismissed the last error.
type ErrorCleared struct{}

func (TokenRestored) Name() string { return "token_restored" }
func (LoadStarted) Name() string   { return "load_started" }
func (AuthSucceeded) Name() string { return "auth_succeeded" }
func (UserLoaded) Name() string    { return "user_loaded" }
func (SessionAbsent) Name() string { return "session_absent" }
func (AuthFailed) Name() string    { return "auth_failed" }
func (LoggedOut) Name() string     { return "logged_out" }
func (ProfileMerged) Name() string { return "profile_merged" }
func (ErrorCleared) Name() string  { return "error_cleared" }

func (TokenRestored) sessionEvent() {}
func (LoadStarted) sessionEvent()   {}
func (AuthSucceeded) sessionEvent() {}
func (UserLoaded) sessionEvent()    {}
func (SessionAbsent) sessionEvent() {}
func (AuthFailed) sessionEvent()    {}
func (LoggedOut) sessionEvent()     {}
func (ProfileMerged) sessionEvent() {}
func (ErrorCleared) sessionEvent()  {}

// Reduce returns the state after ev. It has no side effects.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case TokenRestored:
		s.Token = e.Token
		s.Loading = true
		s.Err = ""
	case LoadStarted:
		s.Loading = true
		s.Err = ""
	case AuthSucceeded:
		s.User = e.User
		s.Token = e.Token
		s.Loading = false
		s.Err = ""
	case UserLoaded:
		s.User = e.User
		s.Loading = false
		s.Err = ""
	case SessionAbsent, LoggedOut:
		s.User = nil
		s.Token = ""
		s.Loading = false
		s.Err = ""
	case AuthFailed:
		s.User = nil
		s.Token = ""
		s.Loading = false
		s.Err = e.Message
	case ProfileMerged:
		s.User = s.User.Merge(e.Fields)
	case ErrorCleared:
		s.Err = ""
	default:
		panic(fmt.Sprintf("session: unhandled event %T", ev))
	}
	return s
}
