package config

import "time"

type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
}

type API struct {
	BaseURL string        `env:"API_BASE_URL" envDefault:"http://localhost:8081"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
}

var _ APIConfig = API{}

// GetAPIBaseURL returns the remote alert API root (e.g., "https://api.alerts.example.org")
func (a API) GetAPIBaseURL() string {
	return a.BaseURL
}

func (a API) GetAPITimeout() time.Duration {
	return a.Timeout
}
