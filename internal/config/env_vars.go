package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port           string `env:"PORT" envDefault:"8080"`
	AppName        string `env:"APP_NAME" envDefault:"Alert Web"`
	Environment    string `env:"ENV" envDefault:"DEV"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	SupportContact string `env:"SUPPORT_CONTACT" envDefault:"support@alerts.example.org"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return e.Environment
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetSupportContact is shown on the pending verification page
func (e EnvVars) GetSupportContact() string {
	return e.SupportContact
}
