package config

import (
	"errors"
	"time"
)

// MinSigningSecretLength is the shortest HS256 secret accepted.
const MinSigningSecretLength = 32

type TokenConfig interface {
	GetSigningSecret() string
	GetTeamID() string
	GetDomainID() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetReauthTokenExpiry() time.Duration
	GetChallengeTokenExpiry() time.Duration
}

type Tokens struct {
	SigningSecret string `env:"TOKEN_SIGNING_SECRET"`
	// TeamID and DomainID bind tokens to one deployment.
	TeamID               string        `env:"TOKEN_TEAM_ID"`
	DomainID             string        `env:"TOKEN_DOMAIN_ID"`
	AccessTokenExpiry    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenExpiry   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	ReauthTokenExpiry    time.Duration `env:"REAUTH_TOKEN_TTL" envDefault:"5m"`
	ChallengeTokenExpiry time.Duration `env:"CHALLENGE_TOKEN_TTL" envDefault:"5m"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetSigningSecret() string { return t.SigningSecret }
func (t Tokens) GetTeamID() string        { return t.TeamID }
func (t Tokens) GetDomainID() string      { return t.DomainID }

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return orDefault(t.AccessTokenExpiry, time.Hour)
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return orDefault(t.RefreshTokenExpiry, 7*24*time.Hour) // 7 days
}

func (t Tokens) GetReauthTokenExpiry() time.Duration {
	return orDefault(t.ReauthTokenExpiry, 5*time.Minute)
}

func (t Tokens) GetChallengeTokenExpiry() time.Duration {
	return orDefault(t.ChallengeTokenExpiry, 5*time.Minute)
}

func (t Tokens) validate() error {
	if len(t.SigningSecret) < MinSigningSecretLength {
		return errors.New("TOKEN_SIGNING_SECRET must be at least 32 characters")
	}
	if t.TeamID == "" || t.DomainID == "" {
		return errors.New("TOKEN_TEAM_ID and TOKEN_DOMAIN_ID are required")
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
