package session

import "github.com/jrsteele09/go-alert-web/users"

// Snapshot is a point in time copy of a Store's state. Mutating it never affects the Store.
type Snapshot struct {
	Status      Status      `json:"status"`
	User        *users.User `json:"user,omitempty"`
	Token       string      `json:"-"`
	LastError   string      `json:"lastError,omitempty"`
	Notice      string      `json:"notice,omitempty"`
	Initialized bool        `json:"initialized"`
}

func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil && s.Token != ""
}

// Loading is true until the first initialisation has settled
func (s Snapshot) Loading() bool {
	return !s.Initialized
}

// Consistent reports whether user, token and status agree with each other
func (s Snapshot) Consistent() bool {
	hasUser, hasToken := s.User != nil, s.Token != ""
	switch s.Status {
	case StatusAuthenticated:
		return hasUser && hasToken && s.User.Role.Valid()
	default:
		return !hasUser && !hasToken
	}
}

// Role returns the user's role, or "" when signed out
func (s Snapshot) Role() users.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}
