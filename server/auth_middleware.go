package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/sessions"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Identity is what a token validator attaches to the request context.
type Identity struct {
	Account *accounts.Account
	Session *sessions.Record // refresh tokens only
	TokenID string           // jti of the validated token
	Token   string           // the raw validated token
}

type identityKey struct{}

// IdentityFrom returns the identity attached by a token validator.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// UploadCleaner removes files an earlier middleware staged for a request
// that was then rejected.
type UploadCleaner interface {
	CleanupUploads(r *http.Request)
}

type UploadCleanerFunc func(r *http.Request)

func (f UploadCleanerFunc) CleanupUploads(r *http.Request) {
	f(r)
}

// CarrierError means the token was absent or not where it should be.
type CarrierError struct {
	Field  string
	Reason string
}

func (e *CarrierError) Error() string {
	return e.Field + ": " + e.Reason
}

// Carrier pulls a raw token out of a request.
type Carrier interface {
	Extract(r *http.Request) (string, error)
}

// BearerCarrier reads "Authorization: Bearer <token>".
type BearerCarrier struct{}

func (BearerCarrier) Extract(r *http.Request) (string, error) {
	const field = "authorization"
	authHeader := r.Header.Get(HeaderAuthorization)
	if authHeader == "" {
		return "", &CarrierError{Field: field, Reason: "missing Authorization header"}
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", &CarrierError{Field: field, Reason: "invalid Authorization header format"}
	}
	raw := strings.TrimSpace(parts[1])
	if raw == "" {
		return "", &CarrierError{Field: field, Reason: "empty token"}
	}
	return raw, nil
}

// HeaderCarrier reads the whole value of a named header.
type HeaderCarrier struct {
	Name string
}

func (c HeaderCarrier) Extract(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(c.Name))
	if raw == "" {
		return "", &CarrierError{Field: strings.ToLower(c.Name), Reason: "missing " + c.Name + " header"}
	}
	return raw, nil
}

// BodyFieldCarrier reads a string field of a JSON body. The body is put
// back so the handler can decode it again.
type BodyFieldCarrier struct {
	Field    string
	MaxBytes int64
}

func (c BodyFieldCarrier) Extract(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", &CarrierError{Field: c.Field, Reason: "missing request body"}
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, c.MaxBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &CarrierError{Field: c.Field, Reason: "request body too large"}
		}
		return "", &CarrierError{Field: c.Field, Reason: "unreadable request body"}
	}

	if !gjson.ValidBytes(body) {
		return "", &CarrierError{Field: c.Field, Reason: "malformed JSON body"}
	}
	value := gjson.GetBytes(body, c.Field)
	if value.Type != gjson.String || value.Str == "" {
		return "", &CarrierError{Field: c.Field, Reason: "missing " + c.Field}
	}
	return value.Str, nil
}

// attachFunc resolves the verified claims to an identity. A not-found error
// rejects the request as unauthenticated, anything else is fatal.
type attachFunc func(ctx context.Context, claims *token.Claims, raw string) (*Identity, error)

// Validator gates a route on one kind of token. All four gates share it and
// differ only in carrier, kind and attach step.
type Validator struct {
	name     string
	carrier  Carrier
	kind     token.Kind
	attach   attachFunc
	failures zerolog.Level // level for rejected tokens
	s        *Server
}

func (s *Server) newValidator(name string, carrier Carrier, kind token.Kind, attach attachFunc) *Validator {
	return &Validator{
		name:     name,
		carrier:  carrier,
		kind:     kind,
		attach:   attach,
		failures: zerolog.DebugLevel,
		s:        s,
	}
}

func (s *Server) initValidators() {
	s.access = s.newValidator("RequireAccess", BearerCarrier{}, token.KindAccess, s.attachAccount)
	s.refresh = s.newValidator("RequireRefresh",
		BodyFieldCarrier{Field: BodyFieldRefreshToken, MaxBytes: s.config.GetMaxBodyBytes()},
		token.KindRefresh, s.attachSession)
	s.refresh.failures = zerolog.WarnLevel
	s.reauth = s.newValidator("RequireReauth", HeaderCarrier{Name: HeaderReauthToken}, token.KindSecurityReauth, s.attachAccount)
	s.challenge = s.newValidator("RequireChallenge", HeaderCarrier{Name: HeaderSecurityChallenge}, token.KindTwoFactorChallenge, s.attachAccount)
}

// RequireAccess is middleware that validates a Bearer access token
func (s *Server) RequireAccess() func(http.HandlerFunc) http.HandlerFunc {
	return s.access.Middleware
}

// RequireRefresh is middleware that validates the refresh_token of a JSON body
// and attaches the session it belongs to.
func (s *Server) RequireRefresh() func(http.HandlerFunc) http.HandlerFunc {
	return s.refresh.Middleware
}

// RequireReauth is middleware that validates the X-Admin-Token re-auth token
func (s *Server) RequireReauth() func(http.HandlerFunc) http.HandlerFunc {
	return s.reauth.Middleware
}

// RequireChallenge is middleware that validates the X-Security-Challenge token
func (s *Server) RequireChallenge() func(http.HandlerFunc) http.HandlerFunc {
	return s.challenge.Middleware
}

func (v *Validator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := v.carrier.Extract(r)
		if err != nil {
			var ce *CarrierError
			if errors.As(err, &ce) {
				v.reject(w, r, http.StatusUnauthorized, errorResponse{
					Error:  errorAuthFailed,
					Fields: map[string]string{ce.Field: ce.Reason},
				})
				return
			}
			v.fatal(w, r, err)
			return
		}

		claims, err := v.s.codec.VerifyClaims(raw, v.kind)
		if err != nil {
			if !errors.Is(err, token.ErrInvalidToken) {
				v.fatal(w, r, err)
				return
			}
			v.s.logger.WithLevel(v.failures).
				Str("validator", v.name).
				Str("reason", string(token.ReasonOf(err))).
				Str("ip", v.s.clientIP(r)).
				Msg("token rejected")
			v.reject(w, r, http.StatusUnauthorized, errorResponse{Error: errorAuthFailed})
			return
		}

		id, err := v.attach(r.Context(), claims, raw)
		if err != nil {
			if errs.Is(err, errs.ErrNotFound) {
				v.s.logger.WithLevel(v.failures).
					Str("validator", v.name).
					Str("subject", claims.Subject).
					Msg("token subject not found")
				v.reject(w, r, http.StatusUnauthorized, errorResponse{Error: errorAuthFailed})
				return
			}
			v.fatal(w, r, err)
			return
		}
		id.TokenID = claims.ID
		id.Token = raw

		next(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}

func (v *Validator) fatal(w http.ResponseWriter, r *http.Request, err error) {
	v.s.logger.Error().Err(err).Str("validator", v.name).Str("path", r.URL.Path).Msg("token validation failed")
	v.reject(w, r, http.StatusInternalServerError, errorResponse{Error: errorAuthFatal})
}

// reject writes the failure and discards anything staged for the request.
func (v *Validator) reject(w http.ResponseWriter, r *http.Request, status int, body errorResponse) {
	writeJSON(w, status, body)
	v.s.cleanupUploads(r)
}

func (s *Server) cleanupUploads(r *http.Request) {
	if r.MultipartForm != nil {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("removing multipart files")
		}
	}
	for _, c := range s.cleaners {
		c.CleanupUploads(r)
	}
}

func (s *Server) attachAccount(ctx context.Context, claims *token.Claims, _ string) (*Identity, error) {
	account, err := s.repos.Accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &Identity{Account: account}, nil
}

func (s *Server) attachSession(ctx context.Context, claims *token.Claims, raw string) (*Identity, error) {
	record, err := s.repos.Sessions.GetByToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if record.SubjectID != claims.Subject {
		return nil, errs.Wrapf(errs.ErrNotFound, "session %s belongs to another subject", record.ID)
	}
	account, err := s.repos.Accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &Identity{Account: account, Session: record}, nil
}
