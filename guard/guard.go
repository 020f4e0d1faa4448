// Package guard decides what a navigation to a protected route renders.
package guard

import (
	"net/url"
	"slices"

	"github.com/jrsteele09/go-alert-web/permissions"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/users"
)

type Outcome string

const (
	Loading             Outcome = "loading"
	RedirectLogin       Outcome = "redirect_login"
	PendingVerification Outcome = "pending_verification"
	Unauthorized        Outcome = "unauthorized"
	Allow               Outcome = "allow"
)

const (
	LoginRoute       = "/login"
	MsgSignInToView  = "Please sign in to continue."
	MsgPendingReview = "Your account is awaiting verification. Some features stay locked until an administrator approves it."
	MsgNotPermitted  = "Your role does not have access to this page."
)

// Requirement is what a route demands. No roles means any signed in user.
// A public requirement admits everyone, signed in or not.
type Requirement struct {
	Public   bool
	Roles    []users.Role
	Verified bool
}

func AnyUser() Requirement {
	return Requirement{}
}

func Roles(roles ...users.Role) Requirement {
	return Requirement{Roles: roles}
}

// ForCapability derives the requirement from the permission table so routes
// and UI actions agree on who may do what
func ForCapability(c permissions.Capability) Requirement {
	return Requirement{
		Public:   permissions.IsPublic(c),
		Roles:    permissions.RolesFor(c),
		Verified: permissions.RequiresVerified(c),
	}
}

func (r Requirement) WithVerified() Requirement {
	r.Verified = true
	return r
}

type Decision struct {
	Outcome    Outcome
	RedirectTo string // set for RedirectLogin
	Landing    string // the user's own dashboard, set for Unauthorized and PendingVerification
	Message    string
}

// Decide applies the checks in a fixed order: initialisation, authentication,
// verification, role. Each later check assumes the earlier ones passed.
func Decide(snap session.Snapshot, path string, req Requirement) Decision {
	if req.Public {
		return Decision{Outcome: Allow}
	}
	if snap.Loading() {
		return Decision{Outcome: Loading}
	}

	if !snap.Authenticated() {
		msg := snap.Notice
		if msg == "" {
			msg = MsgSignInToView
		}
		return Decision{Outcome: RedirectLogin, RedirectTo: LoginURL(path, msg), Message: msg}
	}

	user := snap.User
	if req.Verified && !user.Verified {
		return Decision{Outcome: PendingVerification, Landing: users.LandingRoute(user.Role), Message: MsgPendingReview}
	}

	if len(req.Roles) > 0 && !slices.Contains(req.Roles, user.Role) {
		return Decision{Outcome: Unauthorized, Landing: users.LandingRoute(user.Role), Message: MsgNotPermitted}
	}

	return Decision{Outcome: Allow}
}

// LoginURL builds the login redirect carrying the requested path and a message
func LoginURL(next, message string) string {
	q := url.Values{}
	if SafeNext(next) {
		q.Set("next", next)
	}
	if message != "" {
		q.Set("message", message)
	}
	if len(q) == 0 {
		return LoginRoute
	}
	return LoginRoute + "?" + q.Encode()
}

// SafeNext reports whether next is a local path that is safe to redirect to after login
func SafeNext(next string) bool {
	if next == "" || next[0] != '/' || (len(next) > 1 && (next[1] == '/' || next[1] == '\\')) {
		return false
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return false
	}
	return u.Path != LoginRoute
}
