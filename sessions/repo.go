package sessions

import "context"

// Repo stores refresh session records. Missing records return
// errors.ErrNotFound from internal/errors.
type Repo interface {
	Insert(ctx context.Context, record *Record) error
	GetByToken(ctx context.Context, token string) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	// ListBySubject returns the subject's records, newest activity first.
	ListBySubject(ctx context.Context, subjectID string) ([]*Record, error)
	// ReplaceToken swaps the record's token for newToken only if it still
	// holds expectedToken. It returns errors.ErrNotFound when the record is
	// gone or the token has already been replaced.
	ReplaceToken(ctx context.Context, id, expectedToken, newToken string, client ClientInfo) error
	Delete(ctx context.Context, id string) error
	DeleteBySubject(ctx context.Context, subjectID string) error
}
