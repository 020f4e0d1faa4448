package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/users"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

var _ Client = (*HTTPClient)(nil)

const maxErrorBody = 64 << 10

type HTTPClient struct {
	baseURL   *url.URL
	transport http.RoundTripper
	jar       http.CookieJar
	timeout   time.Duration
}

type Option func(*HTTPClient)

func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		c.timeout = timeout
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *HTTPClient) {
		c.transport = transport
	}
}

func WithCookieJar(jar http.CookieJar) Option {
	return func(c *HTTPClient) {
		c.jar = jar
	}
}

// NewCookieJar returns a jar that enforces public suffix domain rules
func NewCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("[apiclient New] invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("[apiclient New] base URL must be http or https: %q", baseURL)
	}

	c := &HTTPClient{
		baseURL:   u,
		transport: http.DefaultTransport,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.jar == nil {
		if c.jar, err = NewCookieJar(); err != nil {
			return nil, fmt.Errorf("[apiclient New] cookie jar: %w", err)
		}
	}
	return c, nil
}

// BaseURL is the API origin, used to scope cookie expiry on purge
func (c *HTTPClient) BaseURL() *url.URL {
	u := *c.baseURL
	if u.Path == "" {
		u.Path = "/"
	}
	return &u
}

func (c *HTTPClient) Login(ctx context.Context, identifier, secret string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, PathLogin, "", LoginRequest{Identifier: identifier, Secret: secret}, &resp, loginCall)
	if err != nil {
		return nil, fmt.Errorf("[apiclient Login] %w", err)
	}
	if err := checkUser(resp.User); err != nil {
		return nil, fmt.Errorf("[apiclient Login] %w", err)
	}
	return &resp, nil
}

func (c *HTTPClient) Profile(ctx context.Context, token string) (*users.User, error) {
	if token == "" {
		return nil, fmt.Errorf("[apiclient Profile] %w", apperrors.ErrInvalidToken)
	}
	var u users.User
	if err := c.do(ctx, http.MethodGet, PathProfile, token, nil, &u, authedCall); err != nil {
		return nil, fmt.Errorf("[apiclient Profile] %w", err)
	}
	if err := checkUser(&u); err != nil {
		return nil, fmt.Errorf("[apiclient Profile] %w", err)
	}
	return &u, nil
}

func (c *HTTPClient) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, PathLogout, token, nil, nil, authedCall); err != nil {
		return fmt.Errorf("[apiclient Logout] %w", err)
	}
	return nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*users.User, error) {
	if token == "" {
		return nil, fmt.Errorf("[apiclient UpdateProfile] %w", apperrors.ErrInvalidToken)
	}
	var u users.User
	if err := c.do(ctx, http.MethodPut, PathProfile, token, update, &u, authedCall); err != nil {
		return nil, fmt.Errorf("[apiclient UpdateProfile] %w", err)
	}
	if err := checkUser(&u); err != nil {
		return nil, fmt.Errorf("[apiclient UpdateProfile] %w", err)
	}
	return &u, nil
}

func (c *HTTPClient) Register(ctx context.Context, registration Registration) (*users.User, error) {
	var u users.User
	if err := c.do(ctx, http.MethodPost, PathRegister, "", registration, &u, publicCall); err != nil {
		return nil, fmt.Errorf("[apiclient Register] %w", err)
	}
	if err := checkUser(&u); err != nil {
		return nil, fmt.Errorf("[apiclient Register] %w", err)
	}
	return &u, nil
}

// httpClient returns a client that presents token as a bearer credential when set
func (c *HTTPClient) httpClient(token string) *http.Client {
	transport := c.transport
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		}
	}
	return &http.Client{
		Transport: transport,
		Jar:       c.jar,
		Timeout:   c.timeout,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, in, out any, kind callKind) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode %s: %w", apperrors.ErrInvalidResponse, path, err)
		}
		return nil
	}

	var errBody ErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(data) > 0 {
		_ = json.Unmarshal(data, &errBody)
	}
	return classify(resp.StatusCode, errBody, kind)
}

func checkUser(u *users.User) error {
	if u == nil || u.ID == "" {
		return fmt.Errorf("%w: missing user record", apperrors.ErrInvalidResponse)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperrors.ErrInvalidResponse, u.Role)
	}
	return nil
}
