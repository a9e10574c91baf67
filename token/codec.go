package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-auth/internal/config"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
)

var (
	// ErrInvalidToken is the only verification failure callers should act on.
	ErrInvalidToken = errs.ErrInvalidToken
	// ErrSigningKey means the codec cannot sign at all. It is a deployment
	// problem, not a per-request one.
	ErrSigningKey = errors.New("token signing key unavailable")
)

// Reason says why Verify rejected a token. It is for logs only.
type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonExpired         Reason = "expired"
	ReasonWrongKind       Reason = "wrong_kind"
	ReasonBindingMismatch Reason = "binding_mismatch"
)

// VerifyError is returned by Verify. errors.Is(err, ErrInvalidToken) holds
// for every reason.
type VerifyError struct {
	Reason Reason
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid token (%s)", e.Reason)
}

func (e *VerifyError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the rejection reason from a Verify error, or "".
func ReasonOf(err error) Reason {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// Binding ties tokens to one deployment. Tokens signed with the same key for
// another team or domain are rejected.
type Binding struct {
	TeamID   string
	DomainID string
}

// Claims is the payload of every token the codec issues.
type Claims struct {
	Kind     Kind   `json:"knd"`
	TeamID   string `json:"tid"`
	DomainID string `json:"dom"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the service's tokens. It holds no mutable state.
type Codec struct {
	signer  Signer
	binding Binding
	ttls    TTLs
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates a codec from an explicit signer, binding and lifetimes.
func NewCodec(signer Signer, binding Binding, ttls TTLs, options ...CodecOption) (*Codec, error) {
	if signer == nil {
		return nil, fmt.Errorf("[NewCodec] signer is required: %w", ErrSigningKey)
	}
	if binding.TeamID == "" || binding.DomainID == "" {
		return nil, errors.New("[NewCodec] team and domain binding are required")
	}

	c := &Codec{
		signer:  signer,
		binding: binding,
		ttls:    ttls,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NewCodecFromConfig builds an HS256 codec from the token configuration.
func NewCodecFromConfig(cfg config.TokenConfig, options ...CodecOption) (*Codec, error) {
	if len(cfg.GetSigningSecret()) < config.MinSigningSecretLength {
		return nil, fmt.Errorf("[NewCodecFromConfig] signing secret too short: %w", ErrSigningKey)
	}
	return NewCodec(
		NewHMACSigner(cfg.GetSigningSecret()),
		Binding{TeamID: cfg.GetTeamID(), DomainID: cfg.GetDomainID()},
		TTLs{
			Access:             cfg.GetAccessTokenExpiry(),
			Refresh:            cfg.GetRefreshTokenExpiry(),
			SecurityReauth:     cfg.GetReauthTokenExpiry(),
			TwoFactorChallenge: cfg.GetChallengeTokenExpiry(),
		},
		options...,
	)
}

// TTL returns the configured lifetime for kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.ttls.For(kind)
}

// Issue signs a token of kind for subjectID using the configured lifetime.
func (c *Codec) Issue(kind Kind, subjectID string) (string, error) {
	return c.Sign(kind, subjectID, c.ttls.For(kind))
}

// Sign creates a token of kind for subjectID that expires after ttl.
// It only fails when the signing key is unusable.
func (c *Codec) Sign(kind Kind, subjectID string, ttl time.Duration) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("[Codec Sign] unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("[Codec Sign] no lifetime for %s tokens", kind)
	}

	now := c.nowFunc()
	claims := &Claims{
		Kind:     kind,
		TeamID:   c.binding.TeamID,
		DomainID: c.binding.DomainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("[Codec Sign] %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, kind and deployment binding and returns
// the subject id.
func (c *Codec) Verify(raw string, expected Kind) (string, error) {
	claims, err := c.VerifyClaims(raw, expected)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyClaims is Verify returning the full claim set.
func (c *Codec) VerifyClaims(raw string, expected Kind) (*Claims, error) {
	if raw == "" {
		return nil, &VerifyError{Reason: ReasonMalformed}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &VerifyError{Reason: ReasonExpired, Err: err}
		}
		return nil, &VerifyError{Reason: ReasonMalformed, Err: err}
	}

	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, &VerifyError{Reason: ReasonMalformed}
	}
	if claims.TeamID != c.binding.TeamID || claims.DomainID != c.binding.DomainID {
		return nil, &VerifyError{Reason: ReasonBindingMismatch}
	}
	if claims.Kind != expected {
		return nil, &VerifyError{Reason: ReasonWrongKind}
	}
	return claims, nil
}
