package app

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingFields      = errors.New("required fields missing")
	ErrMissingEmail       = errors.New("email required")
	ErrInvalidPINFormat   = errors.New("pin must be exactly 4 digits")
	ErrPINMismatch        = errors.New("pins do not match")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrPINNotConfigured   = errors.New("pin not set")
	ErrPINLocked          = errors.New("too many failed pin attempts")
	ErrInvalidPIN         = errors.New("invalid pin")
)

// PINNotConfiguredError is returned by PIN login for accounts without a PIN.
type PINNotConfiguredError struct {
	UserID string
}

func (e *PINNotConfiguredError) Error() string {
	return fmt.Sprintf("pin not set for user %s", e.UserID)
}

func (e *PINNotConfiguredError) Unwrap() error { return ErrPINNotConfigured }

// PINLockedError is returned while an account is locked, including the attempt
// that applied the lock (JustLocked).
type PINLockedError struct {
	LockedUntil      time.Time
	MinutesRemaining int
	JustLocked       bool
}

func (e *PINLockedError) Error() string {
	return fmt.Sprintf("pin locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

func (e *PINLockedError) Unwrap() error { return ErrPINLocked }

// InvalidPINError is a wrong PIN that did not reach the lock threshold.
type InvalidPINError struct {
	AttemptsLeft int
}

func (e *InvalidPINError) Error() string {
	return fmt.Sprintf("invalid pin, %d attempt(s) remaining", e.AttemptsLeft)
}

func (e *InvalidPINError) Unwrap() error { return ErrInvalidPIN }

// FieldError is one failed signup rule.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

// ValidationError lists every failed signup rule.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Msg)
}
