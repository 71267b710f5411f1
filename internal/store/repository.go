package store

import (
	"context"
	"errors"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	// ErrPINStateChanged means a guarded PIN update matched no row because the
	// account was locked, unlocked or cleared between read and write.
	ErrPINStateChanged = errors.New("pin state changed concurrently")
)

// PINFailure is the outcome of recording one failed PIN attempt.
// Attempts counts failures including this one; LockedUntil is set when this
// failure reached the threshold.
type PINFailure struct {
	Attempts    int
	LockedUntil *time.Time
}

// Locked reports whether this failure applied a lock.
func (f PINFailure) Locked() bool {
	return f.LockedUntil != nil
}

// OutboxMessage is one pending event row.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// UserRepository is the credential store.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.NewUser) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	// RecordFailedPINAttempt increments the counter and applies the lock once the
	// threshold is reached, as one atomic step. It returns ErrPINStateChanged when
	// the account is locked or has no PIN at now.
	RecordFailedPINAttempt(ctx context.Context, userID string, now time.Time) (*PINFailure, error)
	// ResetPINFailureState clears counter and lock after a successful PIN check.
	// It returns ErrPINStateChanged when a lock became active meanwhile.
	ResetPINFailureState(ctx context.Context, userID string, now time.Time) error
	// SetPIN stores a new PIN hash, marks the PIN as set and clears counter and lock.
	SetPIN(ctx context.Context, userID string, pinHash string, source domain.PINSetSource) error
	// ClearExpiredPINLocks drops lock timestamps that lapsed before now.
	ClearExpiredPINLocks(ctx context.Context, now time.Time) (int64, error)
}

// OutboxRepository is the event outbox consumed by the dispatcher.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
	PruneOutbox(ctx context.Context, publishedBefore time.Time) (int64, error)
}

// Repository combines both stores; PostgresRepository and MemoryRepository
// implement it.
type Repository interface {
	UserRepository
	OutboxRepository
}
