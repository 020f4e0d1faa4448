package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type MockAPIConfig interface {
	GetPort() string
	GetEnv() string
	GetLogLevel() string
	GetJWTSecret() string
	GetTokenTTL() time.Duration
	GetSeedPassword() string
}

type MockAPI struct {
	Port         string        `env:"MOCKAPI_PORT" envDefault:"8081"`
	Environment  string        `env:"ENV" envDefault:"DEV"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret    string        `env:"MOCKAPI_JWT_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL     time.Duration `env:"MOCKAPI_TOKEN_TTL" envDefault:"1h"`
	SeedPassword string        `env:"MOCKAPI_SEED_PASSWORD" envDefault:"Passw0rd!"`
}

var _ MockAPIConfig = MockAPI{}

// NewMockAPI reads the development API settings from the environment
func NewMockAPI() (MockAPIConfig, error) {
	c := MockAPI{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config NewMockAPI] failed to parse environment: %w", err)
	}
	return c, nil
}

func (m MockAPI) GetPort() string {
	if !strings.HasPrefix(m.Port, ":") {
		return ":" + m.Port
	}
	return m.Port
}

func (m MockAPI) GetEnv() string {
	return m.Environment
}

func (m MockAPI) GetLogLevel() string {
	return m.LogLevel
}

func (m MockAPI) GetJWTSecret() string {
	return m.JWTSecret
}

func (m MockAPI) GetTokenTTL() time.Duration {
	return m.TokenTTL
}

func (m MockAPI) GetSeedPassword() string {
	return m.SeedPassword
}
