package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-auth/auth"
	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengeID(t *testing.T, f *testFixture, challenge string) string {
	t.Helper()
	claims, err := f.codec.VerifyClaims(challenge, token.KindTwoFactorChallenge)
	require.NoError(t, err)
	return claims.ID
}

func TestVerifyChallenge(t *testing.T) {
	f := setupTestFixture(t)
	a := f.createAccount(t, true)
	ctx := context.Background()

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.NoError(t, err)
	id := challengeID(t, f, res.ChallengeToken)

	t.Run("malformed code", func(t *testing.T) {
		for _, code := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
			_, err := f.service.VerifyChallenge(ctx, a, id, code, testClient)
			var ve *auth.ValidationError
			require.ErrorAs(t, err, &ve, code)
			assert.Contains(t, ve.Fields, "token")
		}
	})

	t.Run("wrong code keeps challenge usable", func(t *testing.T) {
		_, err := f.service.VerifyChallenge(ctx, a, id, f.wrongCode(t, testTOTPSecret), testClient)
		require.ErrorIs(t, err, auth.ErrInvalidOTP)
		require.ErrorIs(t, err, auth.ErrAuthFailed)
	})

	t.Run("correct code issues pair", func(t *testing.T) {
		out, err := f.service.VerifyChallenge(ctx, a, id, f.code(t, testTOTPSecret), testClient)
		require.NoError(t, err)
		require.Equal(t, auth.Authenticated, out.State)
		require.NotNil(t, out.Pair)
		require.Len(t, out.Events, 1)
		assert.Equal(t, notify.EventNewLogin, out.Events[0].Type)

		list, err := f.sessionRepo.ListBySubject(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("challenge cannot be redeemed twice", func(t *testing.T) {
		_, err := f.service.VerifyChallenge(ctx, a, id, f.code(t, testTOTPSecret), testClient)
		require.ErrorIs(t, err, auth.ErrAuthFailed)
	})
}

func TestVerifyChallenge_AttemptCap(t *testing.T) {
	f := setupTestFixture(t, auth.WithAttemptLimiter(auth.NewAttemptLimiter(3, 5*time.Minute)))
	a := f.createAccount(t, true)
	ctx := context.Background()

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.NoError(t, err)
	id := challengeID(t, f, res.ChallengeToken)

	wrong := f.wrongCode(t, testTOTPSecret)
	for i := 0; i < 3; i++ {
		_, err := f.service.VerifyChallenge(ctx, a, id, wrong, testClient)
		require.ErrorIs(t, err, auth.ErrInvalidOTP)
	}

	_, err = f.service.VerifyChallenge(ctx, a, id, f.code(t, testTOTPSecret), testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)
	require.NotErrorIs(t, err, auth.ErrInvalidOTP)

	// a fresh login gets a fresh allowance
	res, err = f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.NoError(t, err)
	_, err = f.service.VerifyChallenge(ctx, a, challengeID(t, f, res.ChallengeToken), f.code(t, testTOTPSecret), testClient)
	require.NoError(t, err)
}

func TestVerifyChallenge_AccountWithoutTwoFactor(t *testing.T) {
	f := setupTestFixture(t)
	a := f.createAccount(t, false)

	_, err := f.service.VerifyChallenge(context.Background(), a, "id", "123456", testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)
}

func TestReauthenticate(t *testing.T) {
	f := setupTestFixture(t)
	a := f.createAccount(t, false)
	ctx := context.Background()

	_, err := f.service.Reauthenticate(ctx, a, "Wrong1234!")
	require.ErrorIs(t, err, auth.ErrAuthFailed)

	reauth, err := f.service.Reauthenticate(ctx, a, testUserPassword)
	require.NoError(t, err)
	sub, err := f.codec.Verify(reauth, token.KindSecurityReauth)
	require.NoError(t, err)
	assert.Equal(t, a.ID, sub)

	_, err = f.codec.Verify(reauth, token.KindAccess)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestEnableTwoFactor(t *testing.T) {
	f := setupTestFixture(t, auth.WithTOTPIssuer("Shop Admin"))
	a := f.createAccount(t, false)
	ctx := context.Background()

	enrollment, err := f.service.BeginEnrollment(ctx, a)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")
	assert.Contains(t, enrollment.URL, "Shop%20Admin")

	stored, err := f.accountRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, stored.TwoFactorEnabled, "enrollment must not persist")

	t.Run("validation", func(t *testing.T) {
		_, err := f.service.EnableTwoFactor(ctx, a, testUserPassword, "", "12", testClient)
		var ve *auth.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "secret")
		assert.Contains(t, ve.Fields, "token")
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.service.EnableTwoFactor(ctx, a, "Wrong1234!", enrollment.Secret, f.code(t, enrollment.Secret), testClient)
		require.ErrorIs(t, err, auth.ErrAuthFailed)
		stored, err := f.accountRepo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		require.False(t, stored.TwoFactorEnabled)
	})

	t.Run("wrong code", func(t *testing.T) {
		_, err := f.service.EnableTwoFactor(ctx, a, testUserPassword, enrollment.Secret, f.wrongCode(t, enrollment.Secret), testClient)
		require.ErrorIs(t, err, auth.ErrInvalidOTP)
	})

	t.Run("success", func(t *testing.T) {
		events, err := f.service.EnableTwoFactor(ctx, a, testUserPassword, enrollment.Secret, f.code(t, enrollment.Secret), testClient)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, notify.EventTwoFactorEnabled, events[0].Type)

		stored, err := f.accountRepo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, stored.TwoFactorEnabled)
		assert.Equal(t, enrollment.Secret, stored.TwoFactorSecret)

		_, err = f.service.BeginEnrollment(ctx, stored)
		require.ErrorIs(t, err, auth.ErrTwoFactorEnabled)
	})
}

func TestDisableTwoFactor(t *testing.T) {
	f := setupTestFixture(t)
	a := f.createAccount(t, true)
	ctx := context.Background()

	_, err := f.service.DisableTwoFactor(ctx, a, "Wrong1234!", testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)

	events, err := f.service.DisableTwoFactor(ctx, a, testUserPassword, testClient)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventTwoFactorDisabled, events[0].Type)
	assert.Equal(t, notify.SeverityHigh, events[0].Type.Severity())

	stored, err := f.accountRepo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)
	assert.Empty(t, stored.TwoFactorSecret)

	_, err = f.service.DisableTwoFactor(ctx, stored, testUserPassword, testClient)
	require.ErrorIs(t, err, auth.ErrTwoFactorNotEnabled)
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	a := f.createAccount(t, false)
	ctx := context.Background()

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.NoError(t, err)

	_, err = f.service.ChangePassword(ctx, a, testUserPassword, "short", testClient)
	var ve *auth.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "new_password")

	_, err = f.service.ChangePassword(ctx, a, testUserPassword, "NewPass5678"+strings.Repeat("x", 80), testClient)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields["new_password"], "at most 72 bytes")
	require.NotErrorIs(t, err, auth.ErrFatal)

	_, err = f.service.ChangePassword(ctx, a, "Wrong1234!", "NewPass5678", testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)

	events, err := f.service.ChangePassword(ctx, a, testUserPassword, "NewPass5678", testClient)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventPasswordChanged, events[0].Type)

	_, err = f.service.Rotate(ctx, res.Pair.RefreshToken, testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)

	_, err = f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.ErrorIs(t, err, auth.ErrAuthFailed)
	_, err = f.service.Login(ctx, testUserEmail, "NewPass5678", testClient)
	require.NoError(t, err)
}

func TestAttemptLimiter(t *testing.T) {
	l := auth.NewAttemptLimiter(2, time.Minute)
	require.True(t, l.Reserve("c1"))
	require.True(t, l.Reserve("c1"))
	require.False(t, l.Reserve("c1"))
	require.True(t, l.Reserve("c2"))

	require.True(t, l.Redeem("c2"))
	require.False(t, l.Redeem("c2"))
	require.False(t, l.Reserve("c2"))

	unlimited := auth.NewAttemptLimiter(0, time.Minute)
	for i := 0; i < 50; i++ {
		require.True(t, unlimited.Reserve("c"))
	}
}

func TestVerifyChallenge_ConcurrentGuessesRespectCap(t *testing.T) {
	const limit = 3
	f := setupTestFixture(t, auth.WithAttemptLimiter(auth.NewAttemptLimiter(limit, 5*time.Minute)))
	a := f.createAccount(t, true)
	ctx := context.Background()

	res, err := f.service.Login(ctx, testUserEmail, testUserPassword, testClient)
	require.NoError(t, err)
	id := challengeID(t, f, res.ChallengeToken)
	wrong := f.wrongCode(t, testTOTPSecret)

	var (
		wg        sync.WaitGroup
		evaluated atomic.Int32
		refused   atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.VerifyChallenge(ctx, a, id, wrong, testClient)
			switch {
			case errors.Is(err, auth.ErrInvalidOTP):
				evaluated.Add(1)
			case errors.Is(err, auth.ErrAuthFailed):
				refused.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(limit), evaluated.Load())
	require.Equal(t, int32(200-limit), refused.Load())
}
