package config

import "time"

type SessionConfig interface {
	GetSessionLifetime() time.Duration
	GetRememberLifetime() time.Duration
	GetInitWait() time.Duration
	GetDeviceIdleTTL() time.Duration
	GetSecureCookies() bool
}

type Session struct {
	Lifetime         time.Duration `env:"SESSION_LIFETIME" envDefault:"12h"`
	RememberLifetime time.Duration `env:"REMEMBER_LIFETIME" envDefault:"720h"` // 30 days
	InitWait         time.Duration `env:"SESSION_INIT_WAIT" envDefault:"2s"`
	DeviceIdleTTL    time.Duration `env:"DEVICE_IDLE_TTL" envDefault:"1h"`
	SecureCookies    bool          `env:"SECURE_COOKIES" envDefault:"false"`
}

var _ SessionConfig = Session{}

// GetSessionLifetime bounds the session scoped token tier
func (s Session) GetSessionLifetime() time.Duration {
	return s.Lifetime
}

func (s Session) GetRememberLifetime() time.Duration {
	return s.RememberLifetime
}

// GetInitWait is how long a request waits for session initialisation before the loading view is shown
func (s Session) GetInitWait() time.Duration {
	return s.InitWait
}

func (s Session) GetDeviceIdleTTL() time.Duration {
	return s.DeviceIdleTTL
}

func (s Session) GetSecureCookies() bool {
	return s.SecureCookies
}
