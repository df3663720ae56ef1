package session

// User is the profile record returned by the backend. Beyond id, name and
// rating its fields are opaque to the client and kept as decoded.
type User map[string]any

// ID returns the user id ("id" or "_id").
func (u User) ID() string {
	return u.str("id", "_id")
}

// Name returns the display name.
func (u User) Name() string {
	return u.str("name")
}

// Email returns the account email.
func (u User) Email() string {
	return u.str("email")
}

// Rating returns the average rating, 0 when unrated.
func (u User) Rating() float64 {
	for _, k := range []string{"averageRating", "rating"} {
		if v, ok := u[k].(float64); ok {
			return v
		}
	}
	return 0
}

// Merge returns a new record with fields laid over u.
func (u User) Merge(fields User) User {
	out := make(User, len(u)+len(fields))
	for k, v := range u {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy; nil stays nil.
func (u User) Clone() User {
	if u == nil {
		return nil
	}
	return u.Merge(nil)
}

func (u User) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := u[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// State is the client-held authentication session.
type State struct {
	User    User
	Token   string
	Loading bool
	Err     string
}

// IsAuthenticated is derived from the token, never stored.
func (s State) IsAuthenticated() bool {
	return s.Token != ""
}

func (s State) clone() State {
	s.User = s.User.Clone()
	return s
}
