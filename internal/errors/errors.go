package errors

import (
	"errors"
	"fmt"
)

// Common error types for the admin auth service
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Two-factor errors
	ErrInvalidOTP          = errors.New("invalid one-time password")
	ErrTwoFactorEnabled    = errors.New("two-factor authentication already enabled")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")

	// Store errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// General errors
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
