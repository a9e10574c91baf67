package fakeaccountrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
)

var _ accounts.Repo = (*FakeAccountRepo)(nil)

// FakeAccountRepo keeps accounts in memory. It hands out copies so callers
// cannot mutate stored state without going through the repo.
type FakeAccountRepo struct {
	accounts map[string]*accounts.Account
	emailIds map[string]string // email to account id
	lock     sync.RWMutex
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		accounts: make(map[string]*accounts.Account),
		emailIds: make(map[string]string),
	}
}

func (ar *FakeAccountRepo) Create(_ context.Context, account *accounts.Account) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	email := accounts.NormalizeEmail(account.Email)
	if _, ok := ar.emailIds[email]; ok {
		return errs.Wrapf(errs.ErrConflict, "account %s", email)
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Email = email

	stored := *account
	ar.accounts[account.ID] = &stored
	ar.emailIds[email] = account.ID
	return nil
}

func (ar *FakeAccountRepo) GetByID(_ context.Context, id string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	a, ok := ar.accounts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (ar *FakeAccountRepo) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	ar.lock.RLock()
	id, ok := ar.emailIds[accounts.NormalizeEmail(email)]
	ar.lock.RUnlock()

	if !ok {
		return nil, errs.ErrNotFound
	}
	return ar.GetByID(ctx, id)
}

func (ar *FakeAccountRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	a, ok := ar.accounts[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (ar *FakeAccountRepo) UpdateTwoFactor(_ context.Context, id, secret string, enabled bool) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	a, ok := ar.accounts[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.TwoFactorSecret = secret
	a.TwoFactorEnabled = enabled
	a.UpdatedAt = time.Now().UTC()
	return nil
}
