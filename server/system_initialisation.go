package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"gopkg.in/yaml.v3"
)

// SeedFile lists admin accounts to create at start-up.
//
//	accounts:
//	  - email: ops@example.com
//	    password: Sup3rSecret
type SeedFile struct {
	Accounts []SeedAccount `yaml:"accounts"`
}

type SeedAccount struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// InitialiseSystem creates the system admin from the environment and every
// account in the seed file. Existing accounts are left untouched.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	var seeds []SeedAccount
	if email := s.config.GetSystemAdminEmail(); email != "" {
		seeds = append(seeds, SeedAccount{Email: email, Password: s.config.GetSystemAdminPassword()})
	}

	if path := s.config.GetSeedFile(); path != "" {
		file, err := LoadSeedFile(path)
		if err != nil {
			return fmt.Errorf("[Server InitialiseSystem] %w", err)
		}
		seeds = append(seeds, file.Accounts...)
	}

	for _, seed := range seeds {
		if err := s.seedAccount(ctx, seed); err != nil {
			return fmt.Errorf("[Server InitialiseSystem] failed to seed %s: %w", seed.Email, err)
		}
	}
	return nil
}

// LoadSeedFile reads a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[LoadSeedFile] reading %s: %w", path, err)
	}
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("[LoadSeedFile] parsing %s: %w", path, err)
	}
	return &file, nil
}

func (s *Server) seedAccount(ctx context.Context, seed SeedAccount) error {
	email := accounts.NormalizeEmail(seed.Email)
	if _, err := s.repos.Accounts.GetByEmail(ctx, email); err == nil {
		s.logger.Debug().Str("email", email).Msg("admin account already exists")
		return nil
	} else if !errs.Is(err, errs.ErrNotFound) {
		return err
	}

	password := seed.Password
	generated := password == ""
	if generated {
		var err error
		if password, err = generatePassword(); err != nil {
			return fmt.Errorf("[seedAccount] generating password for %s: %w", email, err)
		}
	}

	account, err := s.auth.Register(ctx, email, password)
	if err != nil {
		if errs.Is(err, errs.ErrConflict) {
			return nil
		}
		return err
	}

	if generated {
		s.logger.Warn().
			Str("account_id", account.ID).
			Str("email", account.Email).
			Str("password", password).
			Msg("admin account created with a generated password, change it after first login")
		return nil
	}
	s.logger.Info().Str("account_id", account.ID).Str("email", account.Email).Msg("admin account created")
	return nil
}

var randRead = rand.Read

// generatePassword returns a random password that passes the strength rules.
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := randRead(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b) + "Aa1", nil
}
