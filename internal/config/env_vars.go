package config

import (
	"strings"
)

type EnvVars struct {
	Port                string `env:"PORT" envDefault:"8080"`
	AppName             string `env:"APP_NAME" envDefault:"Catalog Admin"`
	Environment         string `env:"ENV" envDefault:"DEV"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	SystemAdminEmail    string `env:"SYSTEM_ADMIN_EMAIL"`
	SystemAdminPassword string `env:"SYSTEM_ADMIN_PASSWORD"`
	SeedFile            string `env:"SEED_FILE"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
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

// GetSystemAdminEmail is the bootstrap admin account created on first start.
func (e EnvVars) GetSystemAdminEmail() string {
	return e.SystemAdminEmail
}

func (e EnvVars) GetSystemAdminPassword() string {
	return e.SystemAdminPassword
}

// GetSeedFile is an optional YAML file of accounts to create on start.
func (e EnvVars) GetSeedFile() string {
	return e.SeedFile
}
