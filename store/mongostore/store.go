// Package mongostore persists accounts and refresh sessions in MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/sessions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	accountsCollection = "accounts"
	sessionsCollection = "refresh_sessions"
	connectTimeout     = 10 * time.Second
)

// Store holds the client and database handles.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	sessions *mongo.Collection
	nowFunc  func() time.Time
}

// AccountRepo implements accounts.Repo.
type AccountRepo struct{ *Store }

// SessionRepo implements sessions.Repo.
type SessionRepo struct{ *Store }

var (
	_ accounts.Repo = (*AccountRepo)(nil)
	_ sessions.Repo = (*SessionRepo)(nil)
)

// Connect dials uri, pings the server and ensures the unique indexes.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		accounts: db.Collection(accountsCollection),
		sessions: db.Collection(sessionsCollection),
		nowFunc:  time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating accounts email index: %w", err)
	}
	_, err = s.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating session indexes: %w", err)
	}
	return nil
}

func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s} }
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s} }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) now() time.Time {
	// mongo stores milliseconds
	return s.nowFunc().UTC().Truncate(time.Millisecond)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errs.ErrNotFound
	}
	return err
}

// Accounts

func (s *AccountRepo) Create(ctx context.Context, account *accounts.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Email = accounts.NormalizeEmail(account.Email)

	if _, err := s.accounts.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.Wrapf(errs.ErrConflict, "account %s", account.Email)
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *AccountRepo) findOne(ctx context.Context, filter bson.M) (*accounts.Account, error) {
	var a accounts.Account
	if err := s.accounts.FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *AccountRepo) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *AccountRepo) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	return s.findOne(ctx, bson.M{"email": accounts.NormalizeEmail(email)})
}

func (s *AccountRepo) update(ctx context.Context, id string, set bson.M) error {
	set["updated_at"] = s.now()
	res, err := s.accounts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating account %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *AccountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, id, bson.M{"password_hash": hash})
}

func (s *AccountRepo) UpdateTwoFactor(ctx context.Context, id, secret string, enabled bool) error {
	return s.update(ctx, id, bson.M{"two_factor_secret": secret, "two_factor_enabled": enabled})
}

// Refresh sessions

func (s *SessionRepo) Insert(ctx context.Context, record *sessions.Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.sessions.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.Wrapf(errs.ErrConflict, "session %s", record.ID)
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (s *SessionRepo) findOne(ctx context.Context, filter bson.M) (*sessions.Record, error) {
	var r sessions.Record
	if err := s.sessions.FindOne(ctx, filter).Decode(&r); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *SessionRepo) GetByToken(ctx context.Context, token string) (*sessions.Record, error) {
	return s.findOne(ctx, bson.M{"token": token})
}

func (s *SessionRepo) GetByID(ctx context.Context, id string) (*sessions.Record, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *SessionRepo) ListBySubject(ctx context.Context, subjectID string) ([]*sessions.Record, error) {
	cur, err := s.sessions.Find(ctx, bson.M{"subject_id": subjectID},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	list := make([]*sessions.Record, 0)
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decoding sessions: %w", err)
	}
	return list, nil
}

// ReplaceToken matches on both id and the expected token, so a concurrent
// rotation that already swapped the token matches nothing.
func (s *SessionRepo) ReplaceToken(ctx context.Context, id, expectedToken, newToken string, client sessions.ClientInfo) error {
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": id, "token": expectedToken},
		bson.M{"$set": bson.M{
			"token":      newToken,
			"client":     client,
			"updated_at": s.now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("rotating session %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *SessionRepo) Delete(ctx context.Context, id string) error {
	res, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *SessionRepo) DeleteBySubject(ctx context.Context, subjectID string) error {
	if _, err := s.sessions.DeleteMany(ctx, bson.M{"subject_id": subjectID}); err != nil {
		return fmt.Errorf("deleting sessions of %s: %w", subjectID, err)
	}
	return nil
}
