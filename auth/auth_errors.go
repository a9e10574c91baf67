package auth

import (
	"fmt"
	"sort"
	"strings"

	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
)

var (
	// ErrAuthFailed is the single coarse rejection returned for bad
	// credentials, bad tokens, missing accounts and missing sessions.
	ErrAuthFailed = errs.ErrInvalidCredentials
	// ErrFatal marks failures of the system rather than the caller, such as
	// an unreachable store or an unusable signing key.
	ErrFatal = errs.ErrInternal
	// ErrInvalidOTP is an ErrAuthFailed for a wrong one-time password.
	ErrInvalidOTP = fmt.Errorf("%w: %w", ErrAuthFailed, errs.ErrInvalidOTP)

	ErrTwoFactorEnabled    = errs.ErrTwoFactorEnabled
	ErrTwoFactorNotEnabled = errs.ErrTwoFactorNotEnabled
)

// ValidationError reports malformed input field by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalidField(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func authFailed(cause error) error {
	return fmt.Errorf("%w: %w", ErrAuthFailed, cause)
}

func fatal(op string, err error) error {
	return fmt.Errorf("[%s] %w: %w", op, ErrFatal, err)
}

// storeErr turns a not-found lookup into an auth failure and anything else
// into a fatal error.
func storeErr(op string, err error, notFound error) error {
	if errs.Is(err, errs.ErrNotFound) {
		return authFailed(notFound)
	}
	return fatal(op, err)
}
