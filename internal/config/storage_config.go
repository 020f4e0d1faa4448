package config

type StorageConfig interface {
	GetRedisURL() string
	GetStoragePrefix() string
	UseRedis() bool
}

type Storage struct {
	RedisURL string `env:"REDIS_URL"` // Optional, memory storage is used when empty
	Prefix   string `env:"STORAGE_PREFIX" envDefault:"alertweb:"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetRedisURL() string {
	return s.RedisURL
}

func (s Storage) GetStoragePrefix() string {
	return s.Prefix
}

func (s Storage) UseRedis() bool {
	return s.RedisURL != ""
}
