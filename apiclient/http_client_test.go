package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-alert-web/apiclient"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/mockapi"
	"github.com/jrsteele09/go-alert-web/sanitize"
	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/jrsteele09/go-alert-web/users"
	fakeuserrepo "github.com/jrsteele09/go-alert-web/users/repofake"
	"github.com/stretchr/testify/require"
)

const seedPassword = "Passw0rd!"

type testFixture struct {
	server *httptest.Server
	client *apiclient.HTTPClient
	jar    http.CookieJar
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, mockapi.Seed(repo, seedPassword))
	server := httptest.NewServer(mockapi.New(repo, mockapi.WithSecret("test-secret")))
	t.Cleanup(server.Close)

	jar, err := apiclient.NewCookieJar()
	require.NoError(t, err)
	client, err := apiclient.New(server.URL, apiclient.WithTimeout(2*time.Second), apiclient.WithCookieJar(jar))
	require.NoError(t, err)

	return &testFixture{server: server, client: client, jar: jar}
}

// statusServer always answers with the given status and body
func statusServer(t *testing.T, status int, body string) *apiclient.HTTPClient {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	return client
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := apiclient.New("ftp://example.org")
	require.Error(t, err)
	_, err = apiclient.New("://bad")
	require.Error(t, err)
}

func TestLoginAndProfile(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	resp, err := f.client.Login(ctx, "operator", seedPassword)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, users.RoleOperator, resp.User.Role)

	u, err := f.client.Profile(ctx, resp.Token)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, u.ID)

	require.NoError(t, f.client.Logout(ctx, resp.Token))

	_, err = f.client.Profile(ctx, resp.Token)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestLoginErrorClassification(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.client.Login(ctx, "citizen", "wrongpass")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.client.Login(ctx, "blocked", seedPassword)
	require.ErrorIs(t, err, apperrors.ErrAccountRestricted)

	_, err = f.client.Login(ctx, "", "")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Field("identifier"))
}

func TestNetworkErrors(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := apiclient.New(url, apiclient.WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.Login(ctx, "citizen", seedPassword)
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = client.Profile(ctx, "tok")
	require.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestStatusFallbackClassification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *apiclient.HTTPClient) error
		want   error
	}{
		{
			name: "401 on login", status: http.StatusUnauthorized, body: `{}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrInvalidCredentials,
		},
		{
			name: "401 on profile", status: http.StatusUnauthorized, body: ``,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Profile(ctx, "tok"); return err },
			want: apperrors.ErrTokenExpired,
		},
		{
			name: "403 on login", status: http.StatusForbidden, body: `{"message":"pending approval"}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrAccountRestricted,
		},
		{
			name: "503", status: http.StatusServiceUnavailable, body: `upstream down`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrNetwork,
		},
		{
			name: "409 register", status: http.StatusConflict, body: `{"error":"conflict","fields":{"username":"already taken"}}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Register(ctx, apiclient.Registration{}); return err },
			want: apperrors.ErrValidation,
		},
		{
			name: "418", status: http.StatusTeapot, body: `{}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrInternal,
		},
		{
			name: "success with unknown role", status: http.StatusOK, body: `{"user":{"id":"u1","role":"root"},"token":"t"}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrInvalidResponse,
		},
		{
			name: "success without user", status: http.StatusOK, body: `{"token":"t"}`,
			call: func(c *apiclient.HTTPClient) error { _, err := c.Login(ctx, "a", "b"); return err },
			want: apperrors.ErrInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(statusServer(t, tt.status, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBearerTokenIsAttached(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	require.NoError(t, client.Logout(context.Background(), "abc123"))
	require.Equal(t, "Bearer abc123", got)

	require.NoError(t, client.Logout(context.Background(), ""))
}

func TestUpdateProfileAndRegister(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	resp, err := f.client.Login(ctx, "citizen", seedPassword)
	require.NoError(t, err)

	district := "harbour"
	u, err := f.client.UpdateProfile(ctx, resp.Token, apiclient.ProfileUpdate{District: &district})
	require.NoError(t, err)
	require.Equal(t, "harbour", u.District)

	bad := "nope"
	_, err = f.client.UpdateProfile(ctx, resp.Token, apiclient.ProfileUpdate{Email: &bad})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Field("email"))

	created, err := f.client.Register(ctx, apiclient.Registration{Username: "fresh", Email: "fresh@example.org", Password: "Str0ngPass"})
	require.NoError(t, err)
	require.Equal(t, users.RoleCitizen, created.Role)
}

func TestPurgeDropsAPICookies(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	_, err := f.client.Login(ctx, "citizen", seedPassword)
	require.NoError(t, err)
	require.NotEmpty(t, f.jar.Cookies(f.client.BaseURL()))

	s := sanitize.New(storage.NewMemory(), storage.NewMemory(), sanitize.WithCookieJar(f.jar, f.client.BaseURL()))
	s.Purge(ctx)

	require.Empty(t, f.jar.Cookies(f.client.BaseURL()))
}
