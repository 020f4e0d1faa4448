package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-alert-web/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 12*time.Hour, c.GetSessionLifetime())
	require.False(t, c.UseRedis())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
}

func TestNewFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.org, https://b.example.org")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":9090", c.GetPort())
	require.True(t, c.UseRedis())
	require.Equal(t, 3*time.Second, c.GetAPITimeout())
	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example.org"))
	require.True(t, origins.IsAllowedOrigin("https://b.example.org"))
	require.False(t, origins.IsAllowedOrigin("https://c.example.org"))
}

func TestNewRejectsBadDuration(t *testing.T) {
	t.Setenv("SESSION_LIFETIME", "forever")

	_, err := config.New()
	require.Error(t, err)
}
