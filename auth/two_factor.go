package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-admin-auth/accounts"
	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/jrsteele09/go-admin-auth/notify"
	"github.com/jrsteele09/go-admin-auth/sessions"
	"github.com/jrsteele09/go-admin-auth/token"
	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const otpLength = 6

var (
	errChallengeExhausted = errors.New("two-factor challenge attempts exhausted")
	errChallengeRedeemed  = errors.New("two-factor challenge already used")
)

// RFC 6238 with one step of clock skew either side.
var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is a freshly generated secret for the client to show as a QR
// code. It is not stored until EnableTwoFactor succeeds.
type Enrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

// ValidateOTPFormat requires exactly six ASCII digits.
func ValidateOTPFormat(code string) error {
	if len(code) != otpLength {
		return invalidField("token", "must be exactly 6 digits")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return invalidField("token", "must be exactly 6 digits")
		}
	}
	return nil
}

func (s *Service) checkOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.nowTime(), totpValidateOpts)
	return err == nil && ok
}

// VerifyChallenge completes a login that stopped at PendingChallenge.
// challengeID is the id of the challenge token, which the caller has
// already verified. A wrong code leaves the challenge usable until it
// expires or its attempts run out.
func (s *Service) VerifyChallenge(ctx context.Context, account *accounts.Account, challengeID, code string, client sessions.ClientInfo) (*LoginResult, error) {
	if err := ValidateOTPFormat(code); err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return nil, authFailed(ErrTwoFactorNotEnabled)
	}
	if !s.limiter.Reserve(challengeID) {
		s.logger.Warn().Str("account_id", account.ID).Str("ip", client.IP).Msg("two-factor challenge refused")
		return nil, authFailed(errChallengeExhausted)
	}
	if !s.checkOTP(account.TwoFactorSecret, code) {
		s.logger.Debug().Str("account_id", account.ID).Msg("wrong one-time password")
		return nil, ErrInvalidOTP
	}
	if !s.limiter.Redeem(challengeID) {
		return nil, authFailed(errChallengeRedeemed)
	}

	return s.startSession(ctx, "VerifyChallenge", account, client)
}

// Reauthenticate re-proves the password of a signed-in account and returns
// a short-lived security re-auth token for sensitive changes.
func (s *Service) Reauthenticate(_ context.Context, account *accounts.Account, password string) (string, error) {
	if !account.CheckPassword(password) {
		return "", ErrAuthFailed
	}
	reauth, err := s.codec.Issue(token.KindSecurityReauth, account.ID)
	if err != nil {
		return "", fatal("Reauthenticate", err)
	}
	return reauth, nil
}

// BeginEnrollment generates a TOTP secret for the account.
func (s *Service) BeginEnrollment(_ context.Context, account *accounts.Account) (*Enrollment, error) {
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.totpIssuer,
		AccountName: account.Email,
		Period:      totpValidateOpts.Period,
		Digits:      totpValidateOpts.Digits,
		Algorithm:   totpValidateOpts.Algorithm,
	})
	if err != nil {
		return nil, fatal("BeginEnrollment", err)
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// EnableTwoFactor turns on two-factor once the password and a code for the
// new secret both check out. The re-auth token is enforced by the caller.
func (s *Service) EnableTwoFactor(ctx context.Context, account *accounts.Account, password, secret, code string, client sessions.ClientInfo) ([]notify.Event, error) {
	fields := map[string]string{}
	if strings.TrimSpace(secret) == "" {
		fields["secret"] = "is required"
	}
	var ve *ValidationError
	if err := ValidateOTPFormat(code); errs.As(err, &ve) {
		for k, v := range ve.Fields {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}
	if !account.CheckPassword(password) {
		return nil, ErrAuthFailed
	}
	if !s.checkOTP(secret, code) {
		return nil, ErrInvalidOTP
	}

	if err := s.repos.Accounts.UpdateTwoFactor(ctx, account.ID, secret, true); err != nil {
		return nil, storeErr("EnableTwoFactor", err, errs.ErrAccountNotFound)
	}
	s.logger.Info().Str("account_id", account.ID).Msg("two-factor enabled")

	return []notify.Event{s.event(notify.EventTwoFactorEnabled, account, client)}, nil
}

// DisableTwoFactor turns two-factor off after re-checking the password.
func (s *Service) DisableTwoFactor(ctx context.Context, account *accounts.Account, password string, client sessions.ClientInfo) ([]notify.Event, error) {
	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}
	if !account.CheckPassword(password) {
		return nil, ErrAuthFailed
	}

	if err := s.repos.Accounts.UpdateTwoFactor(ctx, account.ID, "", false); err != nil {
		return nil, storeErr("DisableTwoFactor", err, errs.ErrAccountNotFound)
	}
	s.logger.Warn().Str("account_id", account.ID).Str("ip", client.IP).Msg("two-factor disabled")

	return []notify.Event{s.event(notify.EventTwoFactorDisabled, account, client)}, nil
}

// ChangePassword replaces the password and signs out every session of the
// account, including the caller's.
func (s *Service) ChangePassword(ctx context.Context, account *accounts.Account, current, next string, client sessions.ClientInfo) ([]notify.Event, error) {
	if err := accounts.ValidatePasswordStrength(next); err != nil {
		return nil, invalidField("new_password", err.Error())
	}
	if !account.CheckPassword(current) {
		return nil, ErrAuthFailed
	}

	hash, err := accounts.HashPassword(next)
	if err != nil {
		return nil, fatal("ChangePassword", err)
	}
	if err := s.repos.Accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return nil, storeErr("ChangePassword", err, errs.ErrAccountNotFound)
	}
	if err := s.repos.Sessions.DeleteBySubject(ctx, account.ID); err != nil {
		return nil, fatal("ChangePassword", err)
	}
	s.logger.Info().Str("account_id", account.ID).Msg("password changed, sessions revoked")

	return []notify.Event{s.event(notify.EventPasswordChanged, account, client)}, nil
}
