package auth

import (
	"context"
	"net/mail"

	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/pkg/errors"
)

// Register creates an admin account. It is used by seeding and the
// seed-admin command; there is no self-service sign-up.
func (s *Service) Register(ctx context.Context, email, password string) (*accounts.Account, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, invalidField("email", "must be a valid email address")
	}
	if err := accounts.ValidatePasswordStrength(password); err != nil {
		return nil, invalidField("password", err.Error())
	}

	hash, err := accounts.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Register] hashing password")
	}

	account := &accounts.Account{
		Email:        accounts.NormalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    s.nowTime().UTC(),
	}
	if err := s.repos.Accounts.Create(ctx, account); err != nil {
		if errs.Is(err, errs.ErrConflict) {
			return nil, err
		}
		return nil, fatal("Register", err)
	}
	return account, nil
}
