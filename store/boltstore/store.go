// Package boltstore persists accounts and refresh sessions in a single bbolt
// file. It suits single-instance deployments.
package boltstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/sessions"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var (
	accountsBucket      = []byte("accounts")
	accountEmailsBucket = []byte("account_emails")
	sessionsBucket      = []byte("refresh_sessions")
	sessionTokensBucket = []byte("refresh_tokens")
)

// tokenKeyHash returns the SHA-256 hex digest of a refresh token. Only the
// digest is written to disk.
func tokenKeyHash(token string) []byte {
	h := sha256.Sum256([]byte(token))
	dst := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(dst, h[:])
	return dst
}

// storedAccount mirrors accounts.Account with the secret fields serialised.
type storedAccount struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"password_hash"`
	TwoFactorSecret  string    `json:"two_factor_secret,omitempty"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func fromAccount(a *accounts.Account) storedAccount {
	return storedAccount{
		ID:               a.ID,
		Email:            a.Email,
		PasswordHash:     a.PasswordHash,
		TwoFactorSecret:  a.TwoFactorSecret,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func (s storedAccount) toAccount() *accounts.Account {
	return &accounts.Account{
		ID:               s.ID,
		Email:            s.Email,
		PasswordHash:     s.PasswordHash,
		TwoFactorSecret:  s.TwoFactorSecret,
		TwoFactorEnabled: s.TwoFactorEnabled,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// storedSession keeps the token digest instead of the token.
type storedSession struct {
	ID        string              `json:"id"`
	SubjectID string              `json:"subject_id"`
	TokenHash string              `json:"token_hash"`
	Client    sessions.ClientInfo `json:"client"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (s storedSession) toRecord(token string) *sessions.Record {
	return &sessions.Record{
		ID:        s.ID,
		SubjectID: s.SubjectID,
		Token:     token,
		Client:    s.Client,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// Store owns the bbolt file. Accounts and Sessions return the repo views.
type Store struct {
	db      *bolt.DB
	nowFunc func() time.Time
}

// AccountRepo implements accounts.Repo.
type AccountRepo struct{ *Store }

// SessionRepo implements sessions.Repo. Records read by id or subject come
// back without Token, since only its digest is kept.
type SessionRepo struct{ *Store }

var (
	_ accounts.Repo = (*AccountRepo)(nil)
	_ sessions.Repo = (*SessionRepo)(nil)
)

// Open opens the database at path, creating it and its buckets if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{accountsBucket, accountEmailsBucket, sessionsBucket, sessionTokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db, nowFunc: time.Now}, nil
}

func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s} }
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s} }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.nowFunc().UTC()
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// Accounts

func (s *AccountRepo) Create(_ context.Context, account *accounts.Account) error {
	email := accounts.NormalizeEmail(account.Email)
	return s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(accountEmailsBucket)
		if emails.Get([]byte(email)) != nil {
			return errs.Wrapf(errs.ErrConflict, "account %s", email)
		}
		if account.ID == "" {
			account.ID = uuid.New().String()
		}
		now := s.now()
		if account.CreatedAt.IsZero() {
			account.CreatedAt = now
		}
		account.UpdatedAt = now
		account.Email = email

		if err := putJSON(tx.Bucket(accountsBucket), []byte(account.ID), fromAccount(account)); err != nil {
			return err
		}
		return emails.Put([]byte(email), []byte(account.ID))
	})
}

func getAccount(tx *bolt.Tx, id string) (*storedAccount, error) {
	v := tx.Bucket(accountsBucket).Get([]byte(id))
	if v == nil {
		return nil, errs.ErrNotFound
	}
	var sa storedAccount
	if err := json.Unmarshal(v, &sa); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", id, err)
	}
	return &sa, nil
}

func (s *AccountRepo) GetByID(_ context.Context, id string) (*accounts.Account, error) {
	var out *accounts.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		sa, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		out = sa.toAccount()
		return nil
	})
	return out, err
}

func (s *AccountRepo) GetByEmail(_ context.Context, email string) (*accounts.Account, error) {
	var out *accounts.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(accountEmailsBucket).Get([]byte(accounts.NormalizeEmail(email)))
		if id == nil {
			return errs.ErrNotFound
		}
		sa, err := getAccount(tx, string(id))
		if err != nil {
			return err
		}
		out = sa.toAccount()
		return nil
	})
	return out, err
}

func (s *AccountRepo) updateAccount(id string, mutate func(*storedAccount)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sa, err := getAccount(tx, id)
		if err != nil {
			return err
		}
		mutate(sa)
		sa.UpdatedAt = s.now()
		return putJSON(tx.Bucket(accountsBucket), []byte(id), sa)
	})
}

func (s *AccountRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.updateAccount(id, func(sa *storedAccount) {
		sa.PasswordHash = hash
	})
}

func (s *AccountRepo) UpdateTwoFactor(_ context.Context, id, secret string, enabled bool) error {
	return s.updateAccount(id, func(sa *storedAccount) {
		sa.TwoFactorSecret = secret
		sa.TwoFactorEnabled = enabled
	})
}

// Refresh sessions

func (s *SessionRepo) Insert(_ context.Context, record *sessions.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tokens := tx.Bucket(sessionTokensBucket)
		hash := tokenKeyHash(record.Token)
		if tokens.Get(hash) != nil {
			return errs.Wrapf(errs.ErrConflict, "session token")
		}
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		records := tx.Bucket(sessionsBucket)
		if records.Get([]byte(record.ID)) != nil {
			return errs.Wrapf(errs.ErrConflict, "session %s", record.ID)
		}
		now := s.now()
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now

		stored := storedSession{
			ID:        record.ID,
			SubjectID: record.SubjectID,
			TokenHash: string(hash),
			Client:    record.Client,
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
		}
		if err := putJSON(records, []byte(record.ID), stored); err != nil {
			return err
		}
		return tokens.Put(hash, []byte(record.ID))
	})
}

func getSession(tx *bolt.Tx, id string) (*storedSession, error) {
	v := tx.Bucket(sessionsBucket).Get([]byte(id))
	if v == nil {
		return nil, errs.ErrNotFound
	}
	var ss storedSession
	if err := json.Unmarshal(v, &ss); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &ss, nil
}

func (s *SessionRepo) GetByToken(_ context.Context, token string) (*sessions.Record, error) {
	var out *sessions.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(sessionTokensBucket).Get(tokenKeyHash(token))
		if id == nil {
			return errs.ErrNotFound
		}
		ss, err := getSession(tx, string(id))
		if err != nil {
			return err
		}
		out = ss.toRecord(token)
		return nil
	})
	return out, err
}

func (s *SessionRepo) GetByID(_ context.Context, id string) (*sessions.Record, error) {
	var out *sessions.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		ss, err := getSession(tx, id)
		if err != nil {
			return err
		}
		out = ss.toRecord("")
		return nil
	})
	return out, err
}

func (s *SessionRepo) ListBySubject(_ context.Context, subjectID string) ([]*sessions.Record, error) {
	list := make([]*sessions.Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(_, v []byte) error {
			var ss storedSession
			if err := json.Unmarshal(v, &ss); err != nil {
				return err
			}
			if ss.SubjectID == subjectID {
				list = append(list, ss.toRecord(""))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// ReplaceToken runs in one bbolt write transaction, which bbolt serialises,
// so at most one caller can swap out a given token.
func (s *SessionRepo) ReplaceToken(_ context.Context, id, expectedToken, newToken string, client sessions.ClientInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ss, err := getSession(tx, id)
		if err != nil {
			return err
		}
		expected := tokenKeyHash(expectedToken)
		if ss.TokenHash != string(expected) {
			return errs.ErrNotFound
		}
		tokens := tx.Bucket(sessionTokensBucket)
		if err := tokens.Delete(expected); err != nil {
			return err
		}
		next := tokenKeyHash(newToken)
		ss.TokenHash = string(next)
		ss.Client = client
		ss.UpdatedAt = s.now()
		if err := putJSON(tx.Bucket(sessionsBucket), []byte(id), ss); err != nil {
			return err
		}
		return tokens.Put(next, []byte(id))
	})
}

func deleteSession(tx *bolt.Tx, ss *storedSession) error {
	if err := tx.Bucket(sessionTokensBucket).Delete([]byte(ss.TokenHash)); err != nil {
		return err
	}
	return tx.Bucket(sessionsBucket).Delete([]byte(ss.ID))
}

func (s *SessionRepo) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ss, err := getSession(tx, id)
		if err != nil {
			return err
		}
		return deleteSession(tx, ss)
	})
}

func (s *SessionRepo) DeleteBySubject(_ context.Context, subjectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var owned []*storedSession
		err := tx.Bucket(sessionsBucket).ForEach(func(_, v []byte) error {
			var ss storedSession
			if err := json.Unmarshal(v, &ss); err != nil {
				return err
			}
			if ss.SubjectID == subjectID {
				owned = append(owned, &ss)
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids mutating a bucket inside ForEach
		for _, ss := range owned {
			if err := deleteSession(tx, ss); err != nil {
				return err
			}
		}
		return nil
	})
}
