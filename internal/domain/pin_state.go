package domain

import (
	"math"
	"time"
)

const (
	// MaxPINAttempts is the number of consecutive wrong PINs that triggers a lock.
	MaxPINAttempts = 5
	// PINLockoutDuration is how long an account stays locked once the threshold is hit.
	PINLockoutDuration = 15 * time.Minute
	// PINLength is the exact number of decimal digits in a PIN.
	PINLength = 4
)

// PINStateKind enumerates the PIN lifecycle states of an account.
type PINStateKind int

const (
	PINStateNoPIN PINStateKind = iota
	PINStateActive
	PINStateLocked
)

func (k PINStateKind) String() string {
	switch k {
	case PINStateNoPIN:
		return "no_pin"
	case PINStateActive:
		return "active"
	case PINStateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// PINState is the evaluated state of an account at one instant. LockedUntil is
// only meaningful when Kind is PINStateLocked.
type PINState struct {
	Kind        PINStateKind
	LockedUntil time.Time
}

// EvaluatePINState derives the PIN state of u at now. A lock whose expiry is not
// strictly after now has lapsed and the account counts as active.
func EvaluatePINState(u User, now time.Time) PINState {
	if !u.PINSet || u.PINHash == nil || *u.PINHash == "" {
		return PINState{Kind: PINStateNoPIN}
	}
	if u.PINLockedUntil != nil && u.PINLockedUntil.After(now) {
		return PINState{Kind: PINStateLocked, LockedUntil: *u.PINLockedUntil}
	}
	return PINState{Kind: PINStateActive}
}

// MinutesRemaining rounds the time left on a lock up to whole minutes.
func MinutesRemaining(until, now time.Time) int {
	remaining := until.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// AttemptsLeft reports how many wrong PINs remain before a lock.
func AttemptsLeft(attempts int) int {
	left := MaxPINAttempts - attempts
	if left < 0 {
		return 0
	}
	return left
}
