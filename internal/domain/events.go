package domain

import "time"

const (
	RoutingKeyUserRegistered = "user.registered"
	RoutingKeyPINSet         = "user.pin.set"
	RoutingKeyPINLocked      = "user.pin.locked"
)

// PINSetSource records which flow established the PIN.
type PINSetSource string

const (
	PINSetSourceSetPIN    PINSetSource = "set_pin"
	PINSetSourceMigration PINSetSource = "migration"
)

// UserRegisteredEvent is published after signup.
type UserRegisteredEvent struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PINSetEvent is published whenever a PIN is created or replaced.
type PINSetEvent struct {
	UserID     string       `json:"user_id"`
	Source     PINSetSource `json:"source"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// PINLockedEvent is published when repeated failures lock an account.
type PINLockedEvent struct {
	UserID      string    `json:"user_id"`
	LockedUntil time.Time `json:"locked_until"`
	Attempts    int       `json:"attempts"`
	OccurredAt  time.Time `json:"occurred_at"`
}
