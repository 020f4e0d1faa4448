package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
	SessionConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetSupportContact() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	API
	Storage
	Session
	Cors
}

// New reads the configuration from the environment. Unset variables fall back to their defaults.
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] failed to parse environment: %w", err)
	}
	return c, nil
}
