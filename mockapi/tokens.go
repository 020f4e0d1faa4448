package mockapi

import (
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-alert-web/internal/errors"
	"github.com/jrsteele09/go-alert-web/users"
)

// Claims carried by access tokens
type Claims struct {
	Role string `json:"role"`
	jwtlib.RegisteredClaims
}

// TokenIssuer creates and verifies HS256 access tokens
type TokenIssuer struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
	revoked *RevokedTokens
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	return &TokenIssuer{
		secret:  []byte(secret),
		issuer:  issuer,
		ttl:     ttl,
		now:     now,
		revoked: NewRevokedTokens(now),
	}
}

func (t *TokenIssuer) Create(user *users.User) (string, error) {
	now := t.now()
	claims := Claims{
		Role: string(user.Role),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    t.issuer,                              // The issuer of the token
			Subject:   user.ID,                               // The user the token was issued to
			IssuedAt:  jwtlib.NewNumericDate(now),            // Issued At
			ExpiresAt: jwtlib.NewNumericDate(now.Add(t.ttl)), // Expiry
			ID:        uuid.New().String(),                   // Unique token ID for revocation
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and rejects expired or revoked tokens
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(tok *jwtlib.Token) (any, error) {
		return t.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(t.issuer),
		jwtlib.WithTimeFunc(t.now),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		if err != nil && apperrors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}
	if t.revoked.IsRevoked(claims.ID) {
		return nil, apperrors.ErrTokenExpired
	}
	return claims, nil
}

// Revoke invalidates a verified token until its natural expiry
func (t *TokenIssuer) Revoke(claims *Claims) {
	exp := t.now().Add(t.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	t.revoked.Add(claims.ID, exp)
}

// RevokedTokens remembers revoked token ids until they would have expired anyway
type RevokedTokens struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	now     func() time.Time
}

func NewRevokedTokens(now func() time.Time) *RevokedTokens {
	return &RevokedTokens{
		revoked: make(map[string]time.Time),
		now:     now,
	}
}

func (c *RevokedTokens) Add(jti string, exp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
}

func (c *RevokedTokens) IsRevoked(jti string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists
}

// Cleanup removes expired entries
func (c *RevokedTokens) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
}

func (c *RevokedTokens) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}
