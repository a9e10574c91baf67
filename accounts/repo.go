package accounts

import "context"

// Repo persists accounts. Lookups for a missing account return
// errors.ErrNotFound from internal/errors.
type Repo interface {
	// Create stores a new account. The email must not already be taken.
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// UpdateTwoFactor sets or clears the TOTP secret. An empty secret disables 2FA.
	UpdateTwoFactor(ctx context.Context, id, secret string, enabled bool) error
}
