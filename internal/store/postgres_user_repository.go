package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id::text, name, company_name, email, password, pin_hash, pin_set, pin_attempts, pin_locked_until, created_at, updated_at`

// PostgresRepository is the PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db       *pgxpool.Pool
	exchange string
}

// NewPostgresRepository creates a repository that enqueues events for exchange.
func NewPostgresRepository(db *pgxpool.Pool, exchange string) *PostgresRepository {
	return &PostgresRepository{db: db, exchange: strings.TrimSpace(exchange)}
}

// pgInvalidTextRepresentation is raised when a malformed UUID reaches Postgres.
const pgInvalidTextRepresentation = "22P02"

// userIDArg canonicalises userID for the uuid primary key. Malformed IDs cannot
// name an account.
func userIDArg(userID string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return "", ErrUserNotFound
	}
	return id.String(), nil
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.CompanyName,
		&user.Email,
		&user.PasswordHash,
		&user.PINHash,
		&user.PINSet,
		&user.PINAttempts,
		&user.PINLockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts the account and enqueues user.registered in one transaction.
func (r *PostgresRepository) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (name, company_name, email, password)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	user, err := scanUser(tx.QueryRow(ctx, query,
		strings.TrimSpace(nu.Name),
		nu.CompanyName,
		domain.NormalizeEmail(nu.Email),
		nu.PasswordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	event := domain.UserRegisteredEvent{UserID: user.ID, Email: user.Email, OccurredAt: user.CreatedAt}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.RoutingKeyUserRegistered, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByEmail looks an account up case-insensitively through the
// lower(email) unique index.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1 LIMIT 1`
	return scanUser(r.db.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	id, err := userIDArg(userID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1::uuid`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// RecordFailedPINAttempt increments pin_attempts and, at the threshold, locks the
// account and zeroes the counter. The WHERE guard keeps a locked account
// untouched, so concurrent failures serialize on the row and cannot overshoot.
func (r *PostgresRepository) RecordFailedPINAttempt(ctx context.Context, userID string, now time.Time) (*PINFailure, error) {
	id, err := userIDArg(userID)
	if err != nil {
		return nil, ErrPINStateChanged
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE users
		SET
			pin_attempts = CASE
				WHEN (
					CASE WHEN pin_locked_until IS NOT NULL THEN 1 ELSE pin_attempts + 1 END
				) >= $2 THEN 0
				ELSE CASE WHEN pin_locked_until IS NOT NULL THEN 1 ELSE pin_attempts + 1 END
			END,
			pin_locked_until = CASE
				WHEN (
					CASE WHEN pin_locked_until IS NOT NULL THEN 1 ELSE pin_attempts + 1 END
				) >= $2 THEN $3::timestamptz + ($4 * INTERVAL '1 second')
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE id = $1::uuid
			AND pin_set = TRUE
			AND (pin_locked_until IS NULL OR pin_locked_until <= $3::timestamptz)
		RETURNING pin_attempts, pin_locked_until
	`
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err = tx.QueryRow(ctx, query,
		id,
		domain.MaxPINAttempts,
		now.UTC(),
		int(domain.PINLockoutDuration/time.Second),
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPINStateChanged
		}
		return nil, err
	}

	failure := &PINFailure{Attempts: attempts, LockedUntil: lockedUntil}
	if lockedUntil != nil {
		failure.Attempts = domain.MaxPINAttempts
		event := domain.PINLockedEvent{
			UserID:      userID,
			LockedUntil: lockedUntil.UTC(),
			Attempts:    domain.MaxPINAttempts,
			OccurredAt:  now.UTC(),
		}
		if err := enqueueEventTx(ctx, tx, r.exchange, domain.RoutingKeyPINLocked, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return failure, nil
}

// ResetPINFailureState clears counters after a successful PIN verification.
func (r *PostgresRepository) ResetPINFailureState(ctx context.Context, userID string, now time.Time) error {
	id, err := userIDArg(userID)
	if err != nil {
		return ErrPINStateChanged
	}
	query := `
		UPDATE users
		SET pin_attempts = 0, pin_locked_until = NULL, updated_at = NOW()
		WHERE id = $1::uuid
			AND (pin_locked_until IS NULL OR pin_locked_until <= $2::timestamptz)
	`
	result, err := r.db.Exec(ctx, query, id, now.UTC())
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPINStateChanged
	}
	return nil
}

// SetPIN installs a PIN hash and enqueues user.pin.set in one transaction.
func (r *PostgresRepository) SetPIN(ctx context.Context, userID string, pinHash string, source domain.PINSetSource) error {
	if strings.TrimSpace(pinHash) == "" {
		return fmt.Errorf("pin hash must not be empty")
	}
	id, err := userIDArg(userID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET pin_hash = $1, pin_set = TRUE, pin_attempts = 0, pin_locked_until = NULL, updated_at = NOW()
		WHERE id = $2::uuid
		RETURNING updated_at
	`, pinHash, id).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	event := domain.PINSetEvent{UserID: id, Source: source, OccurredAt: updatedAt.UTC()}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.RoutingKeyPINSet, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClearExpiredPINLocks nulls out locks that lapsed before now. Counters are
// already zero for locked rows, so only the timestamp changes.
func (r *PostgresRepository) ClearExpiredPINLocks(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE users
		SET pin_locked_until = NULL, pin_attempts = 0, updated_at = NOW()
		WHERE pin_locked_until IS NOT NULL AND pin_locked_until <= $1::timestamptz
	`, now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
