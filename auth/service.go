package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/jrsteele09/go-admin-auth/sessions"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultMaxOTPAttempts = 5

// dummyHash is compared against when the email is unknown, so a miss costs
// the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	h, _ := accounts.HashPassword("not-a-real-password-0")
	return h
})

// Repos holds all repository dependencies for the Service
type Repos struct {
	Accounts accounts.Repo // Repository for admin accounts
	Sessions sessions.Repo // Repository for refresh session records
}

// Service issues, rotates and revokes sessions and runs the two-factor
// step-up flow. It is safe for concurrent use.
type Service struct {
	repos      Repos
	codec      *token.Codec
	limiter    *AttemptLimiter
	totpIssuer string
	logger     zerolog.Logger
	nowTime    func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAttemptLimiter replaces the default limit of wrong codes per challenge.
func WithAttemptLimiter(l *AttemptLimiter) ServiceOption {
	return func(s *Service) {
		s.limiter = l
	}
}

// WithTOTPIssuer sets the issuer shown in authenticator apps.
func WithTOTPIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		s.totpIssuer = issuer
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, codec *token.Codec, options ...ServiceOption) (*Service, error) {
	if repos.Accounts == nil {
		return nil, errors.New("[NewService] Accounts repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if codec == nil {
		return nil, errors.New("[NewService] codec is required")
	}

	s := &Service{
		repos:      repos,
		codec:      codec,
		totpIssuer: "Catalog Admin",
		logger:     log.Logger,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewAttemptLimiter(defaultMaxOTPAttempts, codec.TTL(token.KindTwoFactorChallenge))
	}

	return s, nil
}

// Login checks an email and password. With two-factor off it opens a session
// bound to client; with it on it returns a challenge token instead. Unknown
// emails and wrong passwords fail identically with ErrAuthFailed.
func (s *Service) Login(ctx context.Context, email, password string, client sessions.ClientInfo) (*LoginResult, error) {
	account, err := s.repos.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errs.Is(err, errs.ErrNotFound) {
			return nil, fatal("Login", err)
		}
		accounts.CheckPasswordHash(password, dummyHash())
		s.logger.Debug().Str("ip", client.IP).Msg("login for unknown account")
		return nil, authFailed(errs.ErrAccountNotFound)
	}

	if !account.CheckPassword(password) {
		s.logger.Debug().Str("account_id", account.ID).Str("ip", client.IP).Msg("login with wrong password")
		return nil, ErrAuthFailed
	}

	if account.TwoFactorEnabled {
		challenge, err := s.codec.Issue(token.KindTwoFactorChallenge, account.ID)
		if err != nil {
			return nil, fatal("Login", err)
		}
		return &LoginResult{State: PendingChallenge, ChallengeToken: challenge}, nil
	}

	return s.startSession(ctx, "Login", account, client)
}

// Rotate exchanges a live refresh token for a new pair. The old token stops
// working in the same store write that makes the new one valid, so of two
// concurrent calls with one token only one succeeds.
func (s *Service) Rotate(ctx context.Context, refreshToken string, client sessions.ClientInfo) (*Pair, error) {
	subjectID, err := s.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		s.logger.Warn().
			Str("reason", string(token.ReasonOf(err))).
			Str("ip", client.IP).
			Msg("refresh token rejected")
		return nil, authFailed(err)
	}

	record, err := s.repos.Sessions.GetByToken(ctx, refreshToken)
	if err != nil {
		return nil, storeErr("Rotate", err, errs.ErrInvalidRefreshToken)
	}
	if record.SubjectID != subjectID {
		return nil, authFailed(errs.ErrInvalidRefreshToken)
	}
	if _, err := s.repos.Accounts.GetByID(ctx, subjectID); err != nil {
		return nil, storeErr("Rotate", err, errs.ErrAccountNotFound)
	}

	pair, err := s.mintPair(subjectID)
	if err != nil {
		return nil, fatal("Rotate", err)
	}
	if err := s.repos.Sessions.ReplaceToken(ctx, record.ID, refreshToken, pair.RefreshToken, client); err != nil {
		return nil, storeErr("Rotate", err, errs.ErrInvalidRefreshToken)
	}
	pair.SessionID = record.ID

	return pair, nil
}

// Logout ends one session. Ending a session that is already gone succeeds.
func (s *Service) Logout(ctx context.Context, recordID string) error {
	if err := s.repos.Sessions.Delete(ctx, recordID); err != nil && !errs.Is(err, errs.ErrNotFound) {
		return fatal("Logout", err)
	}
	return nil
}

// LogoutAll ends every session of the subject.
func (s *Service) LogoutAll(ctx context.Context, subjectID string) error {
	if err := s.repos.Sessions.DeleteBySubject(ctx, subjectID); err != nil {
		return fatal("LogoutAll", err)
	}
	return nil
}

// Sessions lists the subject's open sessions.
func (s *Service) Sessions(ctx context.Context, subjectID string) ([]*sessions.Record, error) {
	list, err := s.repos.Sessions.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fatal("Sessions", err)
	}
	return list, nil
}

// RevokeSession ends one of the subject's own sessions. Sessions belonging
// to someone else are reported as not found.
func (s *Service) RevokeSession(ctx context.Context, subjectID, recordID string) error {
	record, err := s.repos.Sessions.GetByID(ctx, recordID)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return errs.Wrapf(errs.ErrNotFound, "session %s", recordID)
		}
		return fatal("RevokeSession", err)
	}
	if record.SubjectID != subjectID {
		return errs.Wrapf(errs.ErrNotFound, "session %s", recordID)
	}
	return s.Logout(ctx, recordID)
}

// startSession mints a pair, records the session and reports the login.
func (s *Service) startSession(ctx context.Context, op string, account *accounts.Account, client sessions.ClientInfo) (*LoginResult, error) {
	pair, err := s.mintPair(account.ID)
	if err != nil {
		return nil, fatal(op, err)
	}

	record := &sessions.Record{
		SubjectID: account.ID,
		Token:     pair.RefreshToken,
		Client:    client,
	}
	if err := s.repos.Sessions.Insert(ctx, record); err != nil {
		return nil, fatal(op, err)
	}
	pair.SessionID = record.ID

	s.logger.Info().Str("account_id", account.ID).Str("session_id", record.ID).Str("ip", client.IP).Msg("session started")

	return &LoginResult{
		State:  Authenticated,
		Pair:   pair,
		Events: []notify.Event{s.event(notify.EventNewLogin, account, client)},
	}, nil
}

func (s *Service) mintPair(subjectID string) (*Pair, error) {
	access, err := s.codec.Issue(token.KindAccess, subjectID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Issue(token.KindRefresh, subjectID)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.TTL(token.KindAccess).Seconds()),
	}, nil
}

func (s *Service) event(t notify.EventType, account *accounts.Account, client sessions.ClientInfo) notify.Event {
	return notify.Event{
		Type:       t,
		AccountID:  account.ID,
		Email:      account.Email,
		IP:         client.IP,
		Device:     client.Device,
		OS:         client.OS,
		OccurredAt: s.nowTime().UTC(),
	}
}
