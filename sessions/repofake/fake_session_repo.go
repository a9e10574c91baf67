package fakesessionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	records map[string]*sessions.Record
	tokens  map[string]string // refresh token to record id
	lock    sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		records: make(map[string]*sessions.Record),
		tokens:  make(map[string]string),
	}
}

func (sr *FakeSessionRepo) Insert(_ context.Context, record *sessions.Record) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if _, ok := sr.records[record.ID]; ok {
		return errs.Wrapf(errs.ErrConflict, "session %s", record.ID)
	}
	if _, ok := sr.tokens[record.Token]; ok {
		return errs.Wrapf(errs.ErrConflict, "session token")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	stored := *record
	sr.records[record.ID] = &stored
	sr.tokens[record.Token] = record.ID
	return nil
}

func (sr *FakeSessionRepo) GetByToken(_ context.Context, token string) (*sessions.Record, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	id, ok := sr.tokens[token]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *sr.records[id]
	return &cp, nil
}

func (sr *FakeSessionRepo) GetByID(_ context.Context, id string) (*sessions.Record, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	r, ok := sr.records[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (sr *FakeSessionRepo) ListBySubject(_ context.Context, subjectID string) ([]*sessions.Record, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	list := make([]*sessions.Record, 0)
	for _, r := range sr.records {
		if r.SubjectID == subjectID {
			cp := *r
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

func (sr *FakeSessionRepo) ReplaceToken(_ context.Context, id, expectedToken, newToken string, client sessions.ClientInfo) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	r, ok := sr.records[id]
	if !ok || r.Token != expectedToken {
		return errs.ErrNotFound
	}
	delete(sr.tokens, r.Token)
	r.Token = newToken
	r.Client = client
	r.UpdatedAt = time.Now().UTC()
	sr.tokens[newToken] = id
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, id string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	r, ok := sr.records[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(sr.tokens, r.Token)
	delete(sr.records, id)
	return nil
}

func (sr *FakeSessionRepo) DeleteBySubject(_ context.Context, subjectID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for id, r := range sr.records {
		if r.SubjectID == subjectID {
			delete(sr.tokens, r.Token)
			delete(sr.records, id)
		}
	}
	return nil
}
