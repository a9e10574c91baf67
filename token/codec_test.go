package token_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-auth/internal/config"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	otherSecret = "fedcba9876543210fedcba9876543210"
	testTeam    = "team-1"
	testDomain  = "admin.example.com"
	testSubject = "account-1"
)

var testTTLs = token.TTLs{
	Access:             time.Hour,
	Refresh:            7 * 24 * time.Hour,
	SecurityReauth:     5 * time.Minute,
	TwoFactorChallenge: 5 * time.Minute,
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newCodec(t *testing.T, secret string, binding token.Binding, c *clock) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(token.NewHMACSigner(secret), binding, testTTLs, token.WithNowFunc(c.Now))
	require.NoError(t, err)
	return codec
}

func TestCodec_SignVerifyRoundTrip(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	for _, kind := range []token.Kind{
		token.KindAccess, token.KindRefresh, token.KindSecurityReauth, token.KindTwoFactorChallenge,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			raw, err := codec.Issue(kind, testSubject)
			require.NoError(t, err)

			sub, err := codec.Verify(raw, kind)
			require.NoError(t, err)
			require.Equal(t, testSubject, sub)
		})
	}
}

func TestCodec_TokensAreUnique(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	a, err := codec.Issue(token.KindRefresh, testSubject)
	require.NoError(t, err)
	b, err := codec.Issue(token.KindRefresh, testSubject)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCodec_RejectsWrongKind(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	refresh, err := codec.Issue(token.KindRefresh, testSubject)
	require.NoError(t, err)

	_, err = codec.Verify(refresh, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalidToken)
	require.Equal(t, token.ReasonWrongKind, token.ReasonOf(err))

	challenge, err := codec.Issue(token.KindTwoFactorChallenge, testSubject)
	require.NoError(t, err)
	_, err = codec.Verify(challenge, token.KindSecurityReauth)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestCodec_RejectsBindingMismatch(t *testing.T) {
	c := &clock{now: time.Now()}
	issuer := newCodec(t, testSecret, token.Binding{TeamID: "team-2", DomainID: testDomain}, c)
	verifier := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	raw, err := issuer.Issue(token.KindAccess, testSubject)
	require.NoError(t, err)

	_, err = verifier.Verify(raw, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalidToken)
	require.Equal(t, token.ReasonBindingMismatch, token.ReasonOf(err))

	otherDomain := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: "other.example.com"}, c)
	raw, err = otherDomain.Issue(token.KindAccess, testSubject)
	require.NoError(t, err)
	_, err = verifier.Verify(raw, token.KindAccess)
	require.Equal(t, token.ReasonBindingMismatch, token.ReasonOf(err))
}

func TestCodec_RejectsExpired(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	codec := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	raw, err := codec.Sign(token.KindAccess, testSubject, time.Minute)
	require.NoError(t, err)

	c.now = c.now.Add(2 * time.Minute)
	_, err = codec.Verify(raw, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalidToken)
	require.Equal(t, token.ReasonExpired, token.ReasonOf(err))
}

func TestCodec_RejectsMalformed(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, testSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)
	forger := newCodec(t, otherSecret, token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	forged, err := forger.Issue(token.KindAccess, testSubject)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not-a-token"},
		{name: "three dots", raw: "a.b.c"},
		{name: "wrong signature", raw: forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.raw, token.KindAccess)
			require.ErrorIs(t, err, token.ErrInvalidToken)
			require.Equal(t, token.ReasonMalformed, token.ReasonOf(err))
		})
	}
}

func TestCodec_SignFailsWithoutKey(t *testing.T) {
	c := &clock{now: time.Now()}
	codec := newCodec(t, "", token.Binding{TeamID: testTeam, DomainID: testDomain}, c)

	_, err := codec.Issue(token.KindAccess, testSubject)
	require.True(t, errors.Is(err, token.ErrSigningKey))
}

func TestNewCodecFromConfig(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		_, err := token.NewCodecFromConfig(config.Tokens{SigningSecret: "short", TeamID: testTeam, DomainID: testDomain})
		require.ErrorIs(t, err, token.ErrSigningKey)
	})

	t.Run("missing binding", func(t *testing.T) {
		_, err := token.NewCodecFromConfig(config.Tokens{SigningSecret: testSecret})
		require.Error(t, err)
	})

	t.Run("configured lifetimes", func(t *testing.T) {
		codec, err := token.NewCodecFromConfig(config.Tokens{
			SigningSecret:     testSecret,
			TeamID:            testTeam,
			DomainID:          testDomain,
			AccessTokenExpiry: 15 * time.Minute,
		})
		require.NoError(t, err)
		require.Equal(t, 15*time.Minute, codec.TTL(token.KindAccess))
		require.Equal(t, 7*24*time.Hour, codec.TTL(token.KindRefresh))
	})
}
