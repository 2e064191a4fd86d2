package cache

import "time"

// Config contains Redis configuration
type Config struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	SessionTTL     time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// DefaultConfig returns the counter defaults
func DefaultConfig() Config {
	return Config{
		RedisURL:       "redis://localhost:6379/0",
		MaxConnections: 10,
		MinIdleConns:   2,
		SessionTTL:     24 * time.Hour,
		KeyPrefix:      "framesentinel",
	}
}
