package apifake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-alert-web/apiclient"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/internal/utils"
	"github.com/jrsteele09/go-alert-web/users"
)

var _ apiclient.Client = (*FakeClient)(nil)

type account struct {
	secret     string
	restricted bool
	user       *users.User
}

// FakeClient is an in-memory stand-in for the remote API
type FakeClient struct {
	mu          sync.Mutex
	accounts    map[string]*account // lower-cased username -> account
	tokens      map[string]string   // token -> username
	offline     bool
	logoutErr   error
	omitToken   bool
	profileHook func(token string)
	calls       map[string]int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		calls:    make(map[string]int),
	}
}

// AddAccount registers a user that can log in with secret
func (f *FakeClient) AddAccount(user *users.User, secret string, restricted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[strings.ToLower(user.Username)] = &account{secret: secret, restricted: restricted, user: user.Clone()}
}

// IssueToken returns a valid token for an existing account without a login call
func (f *FakeClient) IssueToken(username string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + uuid.New().String()
	f.tokens[token] = strings.ToLower(username)
	return token
}

func (f *FakeClient) RevokeToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
}

func (f *FakeClient) TokenValid(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[token]
	return ok
}

// UpdateUser replaces the server side record, e.g. to simulate an approval
func (f *FakeClient) UpdateUser(user *users.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.accounts[strings.ToLower(user.Username)]; ok {
		acc.user = user.Clone()
	}
}

// SetOffline makes every call fail as if the API were unreachable
func (f *FakeClient) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *FakeClient) SetLogoutError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutErr = err
}

// SetOmitToken makes successful logins return no token
func (f *FakeClient) SetOmitToken(omit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitToken = omit
}

// SetProfileHook runs fn at the start of every Profile call, outside the fake's lock
func (f *FakeClient) SetProfileHook(fn func(token string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileHook = fn
}

func (f *FakeClient) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeClient) Login(_ context.Context, identifier, secret string) (*apiclient.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Login"]++

	if f.offline {
		return nil, fmt.Errorf("[apifake Login] %w", apperrors.ErrNetwork)
	}
	if identifier == "" || secret == "" {
		return nil, &apperrors.ValidationError{Fields: map[string]string{"identifier": "required", "secret": "required"}}
	}
	acc, ok := f.accounts[strings.ToLower(identifier)]
	if !ok || acc.secret != secret {
		return nil, fmt.Errorf("[apifake Login] %w", apperrors.ErrInvalidCredentials)
	}
	if acc.restricted {
		return nil, fmt.Errorf("[apifake Login] %w", apperrors.ErrAccountRestricted)
	}

	resp := &apiclient.LoginResponse{User: acc.user.Clone()}
	if !f.omitToken {
		resp.Token = "tok-" + uuid.New().String()
		f.tokens[resp.Token] = strings.ToLower(acc.user.Username)
	}
	return resp, nil
}

func (f *FakeClient) Profile(_ context.Context, token string) (*users.User, error) {
	f.mu.Lock()
	hook := f.profileHook
	f.calls["Profile"]++
	f.mu.Unlock()

	if hook != nil {
		hook(token)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, fmt.Errorf("[apifake Profile] %w", apperrors.ErrNetwork)
	}
	acc, err := f.accountForToken(token)
	if err != nil {
		return nil, err
	}
	return acc.user.Clone(), nil
}

func (f *FakeClient) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Logout"]++

	if f.offline {
		return fmt.Errorf("[apifake Logout] %w", apperrors.ErrNetwork)
	}
	if f.logoutErr != nil {
		return f.logoutErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *FakeClient) UpdateProfile(_ context.Context, token string, update apiclient.ProfileUpdate) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateProfile"]++

	if f.offline {
		return nil, fmt.Errorf("[apifake UpdateProfile] %w", apperrors.ErrNetwork)
	}
	acc, err := f.accountForToken(token)
	if err != nil {
		return nil, err
	}
	if update.Email != nil {
		if !strings.Contains(*update.Email, "@") {
			return nil, &apperrors.ValidationError{Fields: map[string]string{"email": "must be a valid email address"}}
		}
		acc.user.Email = *update.Email
	}
	acc.user.District = utils.ValueOr(update.District, acc.user.District)
	acc.user.NotificationPreferences = utils.ValueOr(update.NotificationPreferences, acc.user.NotificationPreferences)
	if update.Location != nil {
		loc := *update.Location
		acc.user.Location = &loc
	}
	return acc.user.Clone(), nil
}

func (f *FakeClient) Register(_ context.Context, registration apiclient.Registration) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Register"]++

	if f.offline {
		return nil, fmt.Errorf("[apifake Register] %w", apperrors.ErrNetwork)
	}
	fields := map[string]string{}
	if _, taken := f.accounts[strings.ToLower(registration.Username)]; taken {
		fields["username"] = "already taken"
	}
	if err := users.ValidateUsername(registration.Username); err != nil {
		fields["username"] = err.Error()
	}
	if !strings.Contains(registration.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if err := users.ValidatePasswordStrength(registration.Password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		return nil, &apperrors.ValidationError{Fields: fields}
	}

	u := &users.User{
		ID:       uuid.New().String(),
		Username: registration.Username,
		Email:    registration.Email,
		District: registration.District,
		Role:     users.RoleCitizen,
	}
	f.accounts[strings.ToLower(u.Username)] = &account{secret: registration.Password, user: u}
	return u.Clone(), nil
}

// accountForToken expects the lock to be held
func (f *FakeClient) accountForToken(token string) (*account, error) {
	username, ok := f.tokens[token]
	if !ok {
		return nil, fmt.Errorf("[apifake] %w", apperrors.ErrTokenExpired)
	}
	acc, ok := f.accounts[username]
	if !ok {
		return nil, fmt.Errorf("[apifake] %w", apperrors.ErrTokenExpired)
	}
	if acc.restricted {
		return nil, fmt.Errorf("[apifake] %w", apperrors.ErrAccountRestricted)
	}
	return acc, nil
}
