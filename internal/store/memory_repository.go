package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/domain"
	"github.com/google/uuid"
)

// MaxMemoryOutboxAttempts is how many deliveries the in-memory outbox tries
// before discarding a message.
const MaxMemoryOutboxAttempts = 10

type memoryOutboxRow struct {
	msg         OutboxMessage
	status      string
	nextAttempt time.Time
	startedAt   time.Time
	publishedAt time.Time
	lastError   string
}

// MemoryRepository is an in-process Repository with the same guards as the
// PostgreSQL implementation. One mutex serializes every mutation.
type MemoryRepository struct {
	mu       sync.Mutex
	exchange string
	now      func() time.Time
	users    map[string]domain.User
	byEmail  map[string]string
	outbox   []*memoryOutboxRow
	nextID   int64
}

func NewMemoryRepository(exchange string) *MemoryRepository {
	return &MemoryRepository{
		exchange: strings.TrimSpace(exchange),
		now:      time.Now,
		users:    make(map[string]domain.User),
		byEmail:  make(map[string]string),
	}
}

// WithClock overrides the clock used for created_at and outbox timestamps.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

func cloneUser(u domain.User) *domain.User {
	out := u
	if u.CompanyName != nil {
		v := *u.CompanyName
		out.CompanyName = &v
	}
	if u.PINHash != nil {
		v := *u.PINHash
		out.PINHash = &v
	}
	if u.PINLockedUntil != nil {
		v := *u.PINLockedUntil
		out.PINLockedUntil = &v
	}
	return &out
}

func (r *MemoryRepository) CreateUser(ctx context.Context, nu domain.NewUser) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(nu.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return nil, ErrEmailTaken
	}
	now := r.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(nu.Name),
		CompanyName:  nu.CompanyName,
		Email:        email,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	r.enqueueLocked(domain.RoutingKeyUserRegistered, domain.UserRegisteredEvent{UserID: user.ID, Email: email, OccurredAt: now})
	return cloneUser(user), nil
}

func (r *MemoryRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[strings.TrimSpace(userID)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryRepository) RecordFailedPINAttempt(ctx context.Context, userID string, now time.Time) (*PINFailure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok || !user.PINSet {
		return nil, ErrPINStateChanged
	}
	if user.PINLockedUntil != nil && user.PINLockedUntil.After(now) {
		return nil, ErrPINStateChanged
	}

	attempts := user.PINAttempts + 1
	if user.PINLockedUntil != nil {
		attempts = 1
	}
	user.UpdatedAt = r.now().UTC()

	if attempts >= domain.MaxPINAttempts {
		until := now.UTC().Add(domain.PINLockoutDuration)
		user.PINAttempts = 0
		user.PINLockedUntil = &until
		r.users[userID] = user
		r.enqueueLocked(domain.RoutingKeyPINLocked, domain.PINLockedEvent{
			UserID:      userID,
			LockedUntil: until,
			Attempts:    domain.MaxPINAttempts,
			OccurredAt:  now.UTC(),
		})
		return &PINFailure{Attempts: domain.MaxPINAttempts, LockedUntil: &until}, nil
	}

	user.PINAttempts = attempts
	user.PINLockedUntil = nil
	r.users[userID] = user
	return &PINFailure{Attempts: attempts}, nil
}

func (r *MemoryRepository) ResetPINFailureState(ctx context.Context, userID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrPINStateChanged
	}
	if user.PINLockedUntil != nil && user.PINLockedUntil.After(now) {
		return ErrPINStateChanged
	}
	user.PINAttempts = 0
	user.PINLockedUntil = nil
	user.UpdatedAt = r.now().UTC()
	r.users[userID] = user
	return nil
}

func (r *MemoryRepository) SetPIN(ctx context.Context, userID string, pinHash string, source domain.PINSetSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	hash := pinHash
	user.PINHash = &hash
	user.PINSet = true
	user.PINAttempts = 0
	user.PINLockedUntil = nil
	user.UpdatedAt = r.now().UTC()
	r.users[userID] = user
	r.enqueueLocked(domain.RoutingKeyPINSet, domain.PINSetEvent{UserID: userID, Source: source, OccurredAt: user.UpdatedAt})
	return nil
}

func (r *MemoryRepository) ClearExpiredPINLocks(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared int64
	for id, user := range r.users {
		if user.PINLockedUntil == nil || user.PINLockedUntil.After(now) {
			continue
		}
		user.PINLockedUntil = nil
		user.PINAttempts = 0
		r.users[id] = user
		cleared++
	}
	return cleared, nil
}

func (r *MemoryRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	staleBefore := now.Add(-time.Duration(staleAfterSeconds) * time.Second)
	claimed := make([]OutboxMessage, 0, limit)
	for _, row := range r.outbox {
		if len(claimed) == limit {
			break
		}
		due := row.status == "pending" && !row.nextAttempt.After(now)
		stale := row.status == "processing" && row.startedAt.Before(staleBefore)
		if !due && !stale {
			continue
		}
		row.status = "processing"
		row.startedAt = now
		row.msg.Attempts++
		claimed = append(claimed, row.msg)
	}
	return claimed, nil
}

func (r *MemoryRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if row := r.findOutboxLocked(id); row != nil {
		row.status = "published"
		row.publishedAt = r.now()
		row.lastError = ""
	}
	return nil
}

func (r *MemoryRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.findOutboxLocked(id)
	if row == nil {
		return nil
	}
	// Without a broker nothing ever drains the queue, so undeliverable rows
	// are dropped once they run out of attempts.
	if row.msg.Attempts >= MaxMemoryOutboxAttempts {
		r.dropOutboxLocked(id)
		return nil
	}
	row.status = "pending"
	row.nextAttempt = r.now().Add(time.Duration(retryAfterSeconds) * time.Second)
	row.lastError = reason
	return nil
}

func (r *MemoryRepository) PruneOutbox(ctx context.Context, publishedBefore time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.outbox[:0]
	var pruned int64
	for _, row := range r.outbox {
		if row.status == "published" && row.publishedAt.Before(publishedBefore) {
			pruned++
			continue
		}
		kept = append(kept, row)
	}
	r.outbox = kept
	return pruned, nil
}

// OutboxSnapshot returns every queued message with its status, oldest first.
func (r *MemoryRepository) OutboxSnapshot() map[string][]OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]OutboxMessage)
	rows := append([]*memoryOutboxRow(nil), r.outbox...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].msg.ID < rows[j].msg.ID })
	for _, row := range rows {
		out[row.status] = append(out[row.status], row.msg)
	}
	return out
}

func (r *MemoryRepository) dropOutboxLocked(id int64) {
	for i, row := range r.outbox {
		if row.msg.ID == id {
			r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
			return
		}
	}
}

func (r *MemoryRepository) findOutboxLocked(id int64) *memoryOutboxRow {
	for _, row := range r.outbox {
		if row.msg.ID == id {
			return row
		}
	}
	return nil
}

func (r *MemoryRepository) enqueueLocked(routingKey string, payload interface{}) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.nextID++
	now := r.now()
	r.outbox = append(r.outbox, &memoryOutboxRow{
		msg: OutboxMessage{
			ID:         r.nextID,
			Exchange:   r.exchange,
			RoutingKey: routingKey,
			Payload:    blob,
		},
		status:      "pending",
		nextAttempt: now,
	})
}
