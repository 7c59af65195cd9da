package config

import (
	"fmt"
	"time"
)

// JWTConfig holds settings for validating identity tokens. Tokens are
// issued by the external identity provider; TTL only applies to tokens
// minted locally for development.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// NewJWTConfig derives the token settings from the auth section.
func NewJWTConfig(auth AuthConfig) (*JWTConfig, error) {
	cfg := &JWTConfig{
		Secret: auth.JWTSecret,
		Issuer: auth.JWTIssuer,
		TTL:    24 * time.Hour,
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters, got %d", len(c.Secret))
	}
	if c.TTL < time.Minute {
		return fmt.Errorf("token TTL must be at least one minute, got %s", c.TTL)
	}
	return nil
}
