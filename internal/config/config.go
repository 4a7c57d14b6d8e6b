package config

import (
	"errors"
	"time"
)

// Config holds server configuration values. JWTSecret comes from the
// environment only and is never written to the config file.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
	BusCapacity       int           `mapstructure:"bus_capacity" yaml:"bus_capacity"`
	LoginRateLimit    int           `mapstructure:"login_rate_limit" yaml:"login_rate_limit"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"-"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":3000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "relayd.db",
		JWTIssuer:         "relayd",
		TokenTTL:          30 * time.Minute,
		BusCapacity:       1024,
		LoginRateLimit:    30,
	}
}

// Validate checks the parts of the configuration the process cannot run
// without. The signing secret is read once at startup and held for the
// process lifetime, so a missing secret fails fast here.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required, set RELAY_JWT_SECRET")
	}
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	return nil
}
