package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; every field can be set via
// environment variable or a yaml config file.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	Issuer    string `mapstructure:"ISSUER"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// Token lifetimes
	AccessTokenTTLMin   int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	IDTokenTTLMin       int `mapstructure:"ID_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	AuthCodeTTLMin      int `mapstructure:"AUTH_CODE_TTL_MIN"`

	// Signing keys
	KeyRotationPeriodHour int `mapstructure:"KEY_ROTATION_PERIOD_HOUR"`
	RetiredKeysKept       int `mapstructure:"RETIRED_KEYS_KEPT"`

	// Session and flow policy. These are the operational knobs the engine
	// deliberately does not hardcode: consent persistence expiry and login
	// rate limiting are deployment policy.
	SessionTTLMin          int  `mapstructure:"SESSION_TTL_MIN"`
	FlowTTLMin             int  `mapstructure:"FLOW_TTL_MIN"`
	MaxLoginAttempts       int  `mapstructure:"MAX_LOGIN_ATTEMPTS"`
	ConsentGrantTTLDay     int  `mapstructure:"CONSENT_GRANT_TTL_DAY"`
	AllowEmptyScopeDefault bool `mapstructure:"ALLOW_EMPTY_SCOPE_DEFAULT"`

	// Logout fan-out: "front" collects front-channel URLs for the UI to
	// render, "back" POSTs to each client's back-channel endpoint.
	LogoutChannel        string `mapstructure:"LOGOUT_CHANNEL"`
	BackchannelTimeoutMS int    `mapstructure:"BACKCHANNEL_TIMEOUT_MS"`

	// Optional backends. Empty means in-memory.
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// IDTokenTTL returns the identity token lifetime as a duration.
func (c *ServerConfig) IDTokenTTL() time.Duration {
	return time.Duration(c.IDTokenTTLMin) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// AuthCodeTTL returns the authorization code lifetime as a duration.
func (c *ServerConfig) AuthCodeTTL() time.Duration {
	return time.Duration(c.AuthCodeTTLMin) * time.Minute
}

// SessionTTL returns the SSO session idle timeout as a duration.
func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// FlowTTL returns how long a suspended authorization flow stays resumable.
func (c *ServerConfig) FlowTTL() time.Duration {
	return time.Duration(c.FlowTTLMin) * time.Minute
}

// ConsentGrantTTL returns the persistent consent grant lifetime.
func (c *ServerConfig) ConsentGrantTTL() time.Duration {
	return time.Duration(c.ConsentGrantTTLDay) * 24 * time.Hour
}

// KeyRotationPeriod returns the signing key rotation period.
func (c *ServerConfig) KeyRotationPeriod() time.Duration {
	return time.Duration(c.KeyRotationPeriodHour) * time.Hour
}

// BackchannelTimeout returns the per-client timeout for back-channel logout.
func (c *ServerConfig) BackchannelTimeout() time.Duration {
	return time.Duration(c.BackchannelTimeoutMS) * time.Millisecond
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/lucid/")
	v.AddConfigPath("$HOME/.lucid")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("ID_TOKEN_TTL_MIN", 5)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("AUTH_CODE_TTL_MIN", 10)
	v.SetDefault("KEY_ROTATION_PERIOD_HOUR", 24)
	v.SetDefault("RETIRED_KEYS_KEPT", 1)
	v.SetDefault("SESSION_TTL_MIN", 60)
	v.SetDefault("FLOW_TTL_MIN", 15)
	v.SetDefault("MAX_LOGIN_ATTEMPTS", 5)
	v.SetDefault("CONSENT_GRANT_TTL_DAY", 365)
	v.SetDefault("ALLOW_EMPTY_SCOPE_DEFAULT", false)
	v.SetDefault("LOGOUT_CHANNEL", "front")
	v.SetDefault("BACKCHANNEL_TIMEOUT_MS", 3000)
	v.SetDefault("MONGO_DB_NAME", "lucid")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply.
		// Anything else (malformed yaml, permissions) is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
