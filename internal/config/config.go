package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StoreConfig
	NotifierConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetSystemAdminEmail() string
	GetSystemAdminPassword() string
	GetSeedFile() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// Settings is the process configuration. It is parsed once at startup and
// treated as read-only afterwards.
type Settings struct {
	EnvVars
	Cors
	Tokens
	Security
	Store
	Notifier
}

var _ Config = (*Settings)(nil)

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("[config Load] parsing environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("[config Load] %w", err)
	}
	return s, nil
}

// Validate checks settings that would otherwise fail on the first request.
func (s *Settings) Validate() error {
	if err := s.Tokens.validate(); err != nil {
		return err
	}
	if err := s.Security.validate(); err != nil {
		return err
	}
	if err := s.Store.validate(); err != nil {
		return err
	}
	return s.Notifier.validate()
}
