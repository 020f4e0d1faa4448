// Package apiclient is the client side contract with the remote alert API.
package apiclient

import (
	"context"

	"github.com/jrsteele09/go-alert-web/users"
)

// API routes on the remote service
const (
	PathLogin    = "/api/auth/login"
	PathLogout   = "/api/auth/logout"
	PathProfile  = "/api/auth/profile"
	PathRegister = "/api/auth/register"
)

type LoginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type LoginResponse struct {
	User  *users.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

// ProfileUpdate carries the user editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email                   *string                        `json:"email,omitempty"`
	District                *string                        `json:"district,omitempty"`
	NotificationPreferences *users.NotificationPreferences `json:"notificationPreferences,omitempty"`
	Location                *users.Location                `json:"location,omitempty"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	District string `json:"district,omitempty"`
}

// ErrorBody is the JSON error envelope returned by the API
type ErrorBody struct {
	Code    string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// API error codes
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountRestricted  = "account_restricted"
	CodeValidation         = "validation"
	CodeTokenExpired       = "token_expired"
	CodeInvalidToken       = "invalid_token"
	CodeConflict           = "conflict"
	CodeForbidden          = "forbidden"
)

// Client is implemented by HTTPClient and by apifake.FakeClient.
// Every error returned wraps one of the internal/errors sentinels.
type Client interface {
	Login(ctx context.Context, identifier, secret string) (*LoginResponse, error)
	Profile(ctx context.Context, token string) (*users.User, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*users.User, error)
	Register(ctx context.Context, registration Registration) (*users.User, error)
}
