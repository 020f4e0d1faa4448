// Package sanitize wipes every client held session artifact.
package sanitize

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-alert-web/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// LegacyKeys are key names written by earlier client versions. They are removed
// on every purge even though current code never writes most of them.
var LegacyKeys = []string{
	"token",
	"authToken",
	"auth_token",
	"refreshToken",
	"refresh_token",
	"user",
	"currentUser",
	"cached_user",
	"remember",
	"rememberMe",
	"remember_me",
	"breadcrumbs",
	"nav_history",
	"lastVisitedPath",
}

type Sanitizer struct {
	stores  []storage.Storage
	jar     http.CookieJar
	origins []*url.URL
	logger  zerolog.Logger
}

type Option func(*Sanitizer)

// WithCookieJar expires cookies held in jar for each origin on purge
func WithCookieJar(jar http.CookieJar, origins ...*url.URL) Option {
	return func(s *Sanitizer) {
		s.jar = jar
		s.origins = append(s.origins, origins...)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sanitizer) {
		s.logger = logger
	}
}

func New(durable, session storage.Storage, opts ...Option) *Sanitizer {
	s := &Sanitizer{
		stores: []storage.Storage{durable, session},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purge clears every store, removes the legacy keys and expires every visible cookie.
// It never fails; problems are logged and the remaining steps still run.
func (s *Sanitizer) Purge(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Recovered from panic during purge")
		}
	}()

	// the purge must finish even if the caller's request is cancelled
	ctx = context.WithoutCancel(ctx)

	for i, store := range s.stores {
		if store == nil {
			continue
		}
		for _, key := range LegacyKeys {
			if err := store.Delete(ctx, key); err != nil {
				s.logger.Warn().Err(err).Int("store", i).Str("key", key).Msg("Purge: failed to remove key")
			}
		}
		if err := store.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Int("store", i).Msg("Purge: failed to clear store")
		}
	}

	if s.jar != nil {
		for _, origin := range s.origins {
			s.expireJar(origin)
		}
	}
}

func (s *Sanitizer) expireJar(origin *url.URL) {
	visible := s.jar.Cookies(origin)
	if len(visible) == 0 {
		return
	}
	expired := make([]*http.Cookie, 0, len(visible)*9)
	for _, c := range visible {
		expired = append(expired, Variants(c.Name, origin.Hostname(), origin.Path)...)
	}
	s.jar.SetCookies(origin, expired)
	s.logger.Debug().Int("cookies", len(visible)).Str("origin", origin.Host).Msg("Purge: expired cookies")
}

// Variants returns deletion cookies for name across the bare path, the root path,
// the host-only and full hostname domains, and every parent domain down to the registrable one.
func Variants(name, host, path string) []*http.Cookie {
	paths := []string{""}
	if path != "" && path != "/" {
		paths = append(paths, path)
	}
	paths = append(paths, "/")

	domains := []string{"", host}
	for _, parent := range ParentDomains(host) {
		domains = append(domains, "."+parent)
	}

	out := make([]*http.Cookie, 0, len(paths)*len(domains))
	seen := make(map[string]struct{}, len(paths)*len(domains))
	for _, d := range domains {
		for _, p := range paths {
			key := d + ";" + p
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, &http.Cookie{
				Name:    name,
				Value:   "",
				Path:    p,
				Domain:  d,
				MaxAge:  -1,
				Expires: time.Unix(0, 0),
			})
		}
	}
	return out
}

// ParentDomains lists the parents of host from the nearest up to its registrable domain.
// api.alerts.example.org yields alerts.example.org and example.org.
func ParentDomains(host string) []string {
	registrable := RegistrableDomain(host)
	if registrable == "" {
		return nil
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	var parents []string
	for d := host; d != registrable; {
		i := strings.Index(d, ".")
		if i < 0 {
			break
		}
		d = d[i+1:]
		parents = append(parents, d)
	}
	return parents
}

// RegistrableDomain returns the eTLD+1 of host, or "" for IPs, single label hosts and public suffixes
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

// ExpireCookies writes expired Set-Cookie headers for every cookie the request carries,
// across the same path and domain variants as Purge. Names in skip are left alone.
func ExpireCookies(w http.ResponseWriter, r *http.Request, skip ...string) int {
	skipped := make(map[string]struct{}, len(skip))
	for _, name := range skip {
		skipped[name] = struct{}{}
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	count := 0
	done := map[string]struct{}{}
	for _, c := range r.Cookies() {
		if _, ok := skipped[c.Name]; ok {
			continue
		}
		if _, ok := done[c.Name]; ok {
			continue
		}
		done[c.Name] = struct{}{}
		for _, v := range Variants(c.Name, host, cookieDir(r.URL.Path)) {
			http.SetCookie(w, v)
		}
		count++
	}
	return count
}

// cookieDir is the default cookie path for a request path
func cookieDir(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
