package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-alert-web/guard"
	"github.com/jrsteele09/go-alert-web/internal/config"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/mockapi"
	"github.com/jrsteele09/go-alert-web/server"
	"github.com/jrsteele09/go-alert-web/server/devices"
	"github.com/jrsteele09/go-alert-web/session"
	"github.com/jrsteele09/go-alert-web/users"
	fakeuserrepo "github.com/jrsteele09/go-alert-web/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const seedPassword = "Passw0rd!"

type testFixture struct {
	repo   *fakeuserrepo.FakeUserRepo
	api    *httptest.Server
	config config.Config
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, mockapi.Seed(repo, seedPassword))
	api := httptest.NewServer(mockapi.New(repo, mockapi.WithSecret("test-secret")))
	t.Cleanup(api.Close)

	t.Setenv("ENV", "TEST")
	t.Setenv("API_BASE_URL", api.URL)
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("SESSION_INIT_WAIT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	c, err := config.New()
	require.NoError(t, err)

	return &testFixture{repo: repo, api: api, config: c}
}

// newServer starts a web front end replica. A nil client keeps everything in memory.
func (f *testFixture) newServer(t *testing.T, client redis.UniversalClient) *httptest.Server {
	t.Helper()

	var backend devices.Backend = devices.NewMemoryBackend()
	if client != nil {
		backend = devices.NewRedisBackend(client, "test:", time.Hour, 24*time.Hour)
	}
	registry := devices.NewRegistry(devices.StoreFactory(backend, f.config.GetAPIBaseURL(), f.config.GetAPITimeout()))
	t.Cleanup(registry.Close)

	s, err := server.New(f.config, registry, server.NewSessionManager(f.config, client, "test:"))
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

// newBrowser returns a client with its own cookie jar that does not follow redirects
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, u string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(u)
	require.NoError(t, err)
	return readBody(t, resp)
}

func post(t *testing.T, c *http.Client, u string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(u, form)
	require.NoError(t, err)
	return readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) (*http.Response, string) {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func login(t *testing.T, c *http.Client, base, username string) *http.Response {
	t.Helper()
	resp, _ := post(t, c, base+server.RouteAuthLogin, url.Values{
		"identifier": {username},
		"password":   {seedPassword},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	return resp
}

func TestLoginRedirectsToRoleLanding(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	tests := []struct {
		username string
		landing  string
	}{
		{"admin", users.RouteAdminDashboard},
		{"authority", users.RouteAuthorityDashboard},
		{"operator", users.RouteOperatorDashboard},
		{"citizen", users.RouteCitizenDashboard},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			browser := newBrowser(t)
			resp := login(t, browser, ts.URL, tt.username)
			require.Equal(t, tt.landing, resp.Header.Get("Location"))

			resp, body := get(t, browser, ts.URL+tt.landing)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, body, tt.username)
		})
	}
}

func TestLoginHonoursSafeNext(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	browser := newBrowser(t)
	resp, _ := post(t, browser, ts.URL+server.RouteAuthLogin, url.Values{
		"identifier": {"authority"},
		"password":   {seedPassword},
		"next":       {server.RouteAnalytics},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteAnalytics, resp.Header.Get("Location"))

	browser = newBrowser(t)
	resp, _ = post(t, browser, ts.URL+server.RouteAuthLogin, url.Values{
		"identifier": {"authority"},
		"password":   {seedPassword},
		"next":       {"https://evil.example.com/"},
	})
	require.Equal(t, users.RouteAuthorityDashboard, resp.Header.Get("Location"))
}

func TestLoginFailures(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	tests := []struct {
		name     string
		form     url.Values
		expected string
	}{
		{"wrong password", url.Values{"identifier": {"citizen"}, "password": {"nope"}}, apperrors.MsgInvalidCredentials},
		{"unknown user", url.Values{"identifier": {"ghost"}, "password": {seedPassword}}, apperrors.MsgInvalidCredentials},
		{"blocked account", url.Values{"identifier": {"blocked"}, "password": {seedPassword}}, apperrors.MsgAccountRestricted},
		{"missing password", url.Values{"identifier": {"citizen"}}, "Username or email and password are required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser := newBrowser(t)
			resp, _ := post(t, browser, ts.URL+server.RouteAuthLogin, tt.form)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)

			loc, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			require.Equal(t, server.RouteLogin, loc.Path)
			require.Equal(t, tt.expected, loc.Query().Get("error"))
			require.Equal(t, tt.form.Get("identifier"), loc.Query().Get("identifier"))
			require.Empty(t, loc.Query().Get("retry"))

			resp, body := get(t, browser, ts.URL+resp.Header.Get("Location"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, body, "Sign in")
		})
	}
}

func TestLoginOffersRetryWhenAPIUnreachable(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)

	resp, body := get(t, browser, ts.URL+server.RouteLogin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, body, "once the connection is back")

	f.api.Close()
	resp, _ = post(t, browser, ts.URL+server.RouteAuthLogin, url.Values{
		"identifier": {"citizen"},
		"password":   {seedPassword},
		"remember":   {"on"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, apperrors.MsgNetwork, loc.Query().Get("error"))
	require.Equal(t, "1", loc.Query().Get("retry"))
	require.Equal(t, "1", loc.Query().Get("remember"))

	resp, body = get(t, browser, ts.URL+resp.Header.Get("Location"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "once the connection is back")
	require.Contains(t, body, `name="remember" checked`)
}

func TestHTMXLoginUsesRedirectHeader(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	browser := newBrowser(t)
	req, err := http.NewRequest(http.MethodPost, ts.URL+server.RouteAuthLogin, strings.NewReader(url.Values{
		"identifier": {"operator"},
		"password":   {seedPassword},
	}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	resp, err := browser.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, users.RouteOperatorDashboard, resp.Header.Get("HX-Redirect"))
}

func TestAnonymousIsSentToLoginWithNext(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)

	resp, _ := get(t, browser, ts.URL+server.RouteAnalytics+"?range=7d")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, guard.LoginURL(server.RouteAnalytics+"?range=7d", guard.MsgSignInToView), resp.Header.Get("Location"))

	resp, _ = get(t, browser, ts.URL+"/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteAlerts, resp.Header.Get("Location"))

	resp, body := get(t, browser, ts.URL+server.RouteAlerts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "browsing as a guest")
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestUnverifiedUserSeesPendingUntilRefreshed(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)

	resp := login(t, browser, ts.URL, "pending")
	require.Equal(t, users.RouteCitizenDashboard, resp.Header.Get("Location"))

	resp, body := get(t, browser, ts.URL+server.RouteIncidentsReport)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, body, "Verification pending")
	require.Contains(t, body, f.config.GetSupportContact())

	require.NoError(t, f.repo.SetVerified("user-pending", true))

	resp, _ = post(t, browser, ts.URL+server.RouteAuthRefresh, url.Values{"next": {server.RouteIncidentsReport}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteIncidentsReport, resp.Header.Get("Location"))

	resp, _ = get(t, browser, ts.URL+server.RouteIncidentsReport)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWrongRoleIsUnauthorized(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)
	login(t, browser, ts.URL, "citizen")

	for _, path := range []string{server.RouteAdminUsers, server.RouteAlertsNew, users.RouteAdminDashboard} {
		resp, body := get(t, browser, ts.URL+path)
		require.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		require.Contains(t, body, "Access denied")
		require.Contains(t, body, `href="`+users.RouteCitizenDashboard+`"`)
	}
}

func TestPageLinksFollowCapabilities(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	admin := newBrowser(t)
	login(t, admin, ts.URL, "admin")
	_, body := get(t, admin, ts.URL+users.RouteAdminDashboard)
	require.Contains(t, body, `href="/admin/users"`)
	require.Contains(t, body, `href="/alerts/new"`)

	citizen := newBrowser(t)
	login(t, citizen, ts.URL, "citizen")
	_, body = get(t, citizen, ts.URL+users.RouteCitizenDashboard)
	require.NotContains(t, body, `href="/admin/users"`)
	require.NotContains(t, body, `href="/alerts/new"`)
	require.Contains(t, body, `href="/incidents/report"`)
}

func TestLogoutEndsSessionAndExpiresCookies(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)
	login(t, browser, ts.URL, "citizen")

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	browser.Jar.SetCookies(u, []*http.Cookie{{Name: "legacy_pref", Value: "1", Path: "/"}})

	resp, _ := post(t, browser, ts.URL+server.RouteAuthLogout, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, guard.LoginURL("", session.NoticeSignedOut), resp.Header.Get("Location"))

	expired := false
	for _, c := range resp.Cookies() {
		if c.Name == "legacy_pref" {
			expired = c.MaxAge < 0
		}
	}
	require.True(t, expired, "legacy cookie should be expired")

	resp, _ = get(t, browser, ts.URL+users.RouteCitizenDashboard)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, guard.LoginURL(users.RouteCitizenDashboard, session.NoticeSignedOut), resp.Header.Get("Location"))
}

func TestDevicesAreIsolated(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	signedIn := newBrowser(t)
	login(t, signedIn, ts.URL, "admin")

	other := newBrowser(t)
	resp, _ := get(t, other, ts.URL+users.RouteAdminDashboard)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = get(t, signedIn, ts.URL+users.RouteAdminDashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionAPI(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)

	resp, body := get(t, browser, ts.URL+server.RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var anon map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &anon))
	require.Equal(t, false, anon["authenticated"])
	require.Equal(t, true, anon["initialized"])

	login(t, browser, ts.URL, "authority")

	resp, body = get(t, browser, ts.URL+server.RouteAPISession)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotContains(t, strings.ToLower(body), "token")
	require.NotContains(t, body, "password")

	var got struct {
		Authenticated bool        `json:"authenticated"`
		Landing       string      `json:"landing"`
		User          *users.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.True(t, got.Authenticated)
	require.Equal(t, users.RouteAuthorityDashboard, got.Landing)
	require.Equal(t, users.RoleAuthority, got.User.Role)

	resp, body = get(t, browser, ts.URL+server.RouteAPICapabilities)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var caps struct {
		Role         users.Role      `json:"role"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &caps))
	require.Equal(t, users.RoleAuthority, caps.Role)
	require.True(t, caps.Capabilities["createAlerts"])
	require.False(t, caps.Capabilities["manageUsers"])
}

func TestCorsPreflight(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"allowed origin", "http://localhost:3000", true},
		{"other origin", "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, ts.URL+server.RouteAPISession, nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)

			resp, err := newBrowser(t).Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			require.Equal(t, http.StatusNoContent, resp.StatusCode)
			if tt.allowed {
				require.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
				require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
			} else {
				require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	t.Run("mismatched confirmation", func(t *testing.T) {
		resp, body := post(t, newBrowser(t), ts.URL+server.RouteAuthRegister, url.Values{
			"username":         {"newbie"},
			"email":            {"newbie@example.org"},
			"password":         {"Str0ng!Pass"},
			"confirm_password": {"Str0ng!Pazz"},
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Contains(t, body, "passwords do not match")
		require.Contains(t, body, `value="newbie@example.org"`)
	})

	t.Run("duplicate username is reported by the API", func(t *testing.T) {
		resp, _ := post(t, newBrowser(t), ts.URL+server.RouteAuthRegister, url.Values{
			"username":         {"citizen"},
			"email":            {"someone-else@example.org"},
			"password":         {"Str0ng!Pass"},
			"confirm_password": {"Str0ng!Pass"},
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("success does not sign in", func(t *testing.T) {
		browser := newBrowser(t)
		resp, _ := post(t, browser, ts.URL+server.RouteAuthRegister, url.Values{
			"username":         {"newbie"},
			"email":            {"newbie@example.org"},
			"password":         {"Str0ng!Pass"},
			"confirm_password": {"Str0ng!Pass"},
			"district":         {"east"},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, server.RouteLogin, loc.Path)
		require.Equal(t, "newbie", loc.Query().Get("identifier"))

		resp, _ = get(t, browser, ts.URL+users.RouteCitizenDashboard)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		created, err := f.repo.GetByUsername("newbie")
		require.NoError(t, err)
		require.False(t, created.Verified)
	})
}

func TestValidatePassword(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	resp, body := post(t, newBrowser(t), ts.URL+server.RouteAPIValidatePassword, url.Values{"password": {"short"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "text-danger")
	require.Contains(t, resp.Header.Get("HX-Trigger"), "passwordInvalid")

	resp, body = post(t, newBrowser(t), ts.URL+server.RouteAPIValidatePassword, url.Values{"password": {"Str0ng!Pass"}})
	require.Contains(t, body, "Strong password")
	require.Contains(t, resp.Header.Get("HX-Trigger"), "passwordValid")
}

func TestProfileUpdate(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)
	browser := newBrowser(t)
	login(t, browser, ts.URL, "citizen")

	resp, body := get(t, browser, ts.URL+server.RouteProfile)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `value="north"`)

	resp, _ = post(t, browser, ts.URL+server.RouteProfile, url.Values{
		"district":     {"east"},
		"notify_sms":   {"on"},
		"min_severity": {"severe"},
		"latitude":     {"51.5"},
		"longitude":    {"-0.12"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteProfile+"?message=Profile+updated.", resp.Header.Get("Location"))

	saved, err := f.repo.GetByID("user-citizen")
	require.NoError(t, err)
	require.Equal(t, "east", saved.District)
	require.True(t, saved.NotificationPreferences.SMS)
	require.Equal(t, "severe", saved.NotificationPreferences.MinSeverity)
	require.NotNil(t, saved.Location)
	require.InDelta(t, 51.5, saved.Location.Latitude, 0.0001)

	resp, body = get(t, browser, ts.URL+resp.Header.Get("Location"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `value="east"`)
	require.Contains(t, body, "Profile updated.")

	resp, body = post(t, browser, ts.URL+server.RouteProfile, url.Values{"latitude": {"123"}, "longitude": {"0"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, body, "latitude must be between")
}

func TestDeviceSurvivesReplicaSwitchWithRedis(t *testing.T) {
	f := setupTestFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	replicaA := f.newServer(t, client)
	replicaB := f.newServer(t, client)

	// cookie jars ignore ports, so both replicas see the same device cookie
	browser := newBrowser(t)
	login(t, browser, replicaA.URL, "operator")

	resp, body := get(t, browser, replicaB.URL+users.RouteOperatorDashboard)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "operator")

	resp, _ = post(t, browser, replicaB.URL+server.RouteAuthLogout, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, _ := get(t, browser, replicaA.URL+users.RouteOperatorDashboard)
		return resp.StatusCode == http.StatusSeeOther
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStaticAssets(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.newServer(t, nil)

	resp, body := get(t, newBrowser(t), ts.URL+"/static/app.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	require.Contains(t, body, ".card")

	resp, _ = get(t, newBrowser(t), ts.URL+"/favicon.svg")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	require.Empty(t, resp.Cookies(), "assets must not mint a device cookie")
}
