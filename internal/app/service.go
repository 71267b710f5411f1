/**
 * @description
 * Authentication flows of the auth service: signup, password login, PIN login
 * with attempt limiting, the password-to-PIN migration and authenticated PIN
 * changes. Every successful flow ends with a signed bearer token.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/domain"
	"github.com/Abdillah-Ali/biz-compas/internal/security"
	"github.com/Abdillah-Ali/biz-compas/internal/store"
)

// maxPINStateRetries bounds re-evaluation when a guarded PIN update loses a race.
const maxPINStateRetries = 3

// Hasher hashes and verifies passwords and PINs.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) (bool, error)
	CompareDummy(secret string)
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

// AuthResult is returned by signup and password login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.UserProfile
}

// PINAuthResult is returned by PIN login and migration.
type PINAuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.UserSummary
}

// Service implements the authentication flows on top of the credential store.
type Service struct {
	repo   store.UserRepository
	hasher Hasher
	tokens TokenIssuer
	logger *slog.Logger
	now    func() time.Time
}

type ServiceOption func(*Service)

// WithClock replaces the wall clock used for lock evaluation.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo store.UserRepository, hasher Hasher, tokens TokenIssuer, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With("component", "auth"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers an account and signs the caller in.
func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (*AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = domain.NormalizeEmail(req.Email)
	if req.CompanyName != nil {
		if trimmed := strings.TrimSpace(*req.CompanyName); trimmed != "" {
			req.CompanyName = &trimmed
		} else {
			req.CompanyName = nil
		}
	}
	if err := validateSignup(req); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindUserByEmail(ctx, req.Email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, domain.NewUser{
		Name:         req.Name,
		CompanyName:  req.CompanyName,
		Email:        req.Email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user.Profile()}, nil
}

// LoginWithPassword verifies email and password. Unknown email and wrong
// password both yield ErrInvalidCredentials after one bcrypt comparison.
func (s *Service) LoginWithPassword(ctx context.Context, req domain.PasswordLoginRequest) (*AuthResult, error) {
	user, err := s.lookupForLogin(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		s.logger.Warn("password login rejected", "user_id", user.ID, "reason", "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user.Profile()}, nil
}

// LoginWithPIN runs the PIN state machine for one attempt. Lock and counter
// changes are durable before it returns, including on failure.
func (s *Service) LoginWithPIN(ctx context.Context, req domain.PINLoginRequest) (*PINAuthResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.PIN == "" {
		return nil, ErrMissingFields
	}
	if !security.ValidatePINFormat(req.PIN) {
		return nil, ErrInvalidPINFormat
	}

	user, err := s.lookupForLogin(ctx, req.Email, req.PIN)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxPINStateRetries; attempt++ {
		result, retry, err := s.attemptPIN(ctx, user, req.PIN)
		if !retry {
			return result, err
		}
		if user, err = s.repo.FindUserByID(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("reload user: %w", err)
		}
	}
	return nil, fmt.Errorf("pin state for user %s kept changing", user.ID)
}

// attemptPIN evaluates one snapshot of the account. retry is true when a guarded
// update found the row in a different state than the snapshot.
func (s *Service) attemptPIN(ctx context.Context, user *domain.User, pin string) (*PINAuthResult, bool, error) {
	now := s.now()
	state := domain.EvaluatePINState(*user, now)

	switch state.Kind {
	case domain.PINStateNoPIN:
		return nil, false, &PINNotConfiguredError{UserID: user.ID}
	case domain.PINStateLocked:
		s.logger.Warn("pin login refused", "user_id", user.ID, "reason", "locked")
		return nil, false, &PINLockedError{
			LockedUntil:      state.LockedUntil,
			MinutesRemaining: domain.MinutesRemaining(state.LockedUntil, now),
		}
	}

	ok, err := s.hasher.Compare(*user.PINHash, pin)
	if err != nil {
		return nil, false, fmt.Errorf("compare pin: %w", err)
	}

	if ok {
		if err := s.repo.ResetPINFailureState(ctx, user.ID, now); err != nil {
			if errors.Is(err, store.ErrPINStateChanged) {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("reset pin attempts: %w", err)
		}
		token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
		if err != nil {
			return nil, false, fmt.Errorf("issue token: %w", err)
		}
		return &PINAuthResult{Token: token, ExpiresAt: expiresAt, User: user.Summary()}, false, nil
	}

	failure, err := s.repo.RecordFailedPINAttempt(ctx, user.ID, now)
	if err != nil {
		if errors.Is(err, store.ErrPINStateChanged) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("record pin failure: %w", err)
	}
	if failure.Locked() {
		s.logger.Warn("pin login locked account", "user_id", user.ID, "locked_until", failure.LockedUntil.UTC())
		return nil, false, &PINLockedError{
			LockedUntil:      *failure.LockedUntil,
			MinutesRemaining: domain.MinutesRemaining(*failure.LockedUntil, now),
			JustLocked:       true,
		}
	}
	s.logger.Warn("pin login rejected", "user_id", user.ID, "reason", "pin_mismatch", "attempts", failure.Attempts)
	return nil, false, &InvalidPINError{AttemptsLeft: domain.AttemptsLeft(failure.Attempts)}
}

// CheckPINStatus tells a client which login screen to show.
func (s *Service) CheckPINStatus(ctx context.Context, email string) (*domain.PINStatus, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrMissingEmail
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	// pin_set alone is not enough: a set flag without a hash cannot log in.
	pinSet := domain.EvaluatePINState(*user, s.now()).Kind != domain.PINStateNoPIN
	return &domain.PINStatus{PINSet: pinSet, UserID: user.ID}, nil
}

// MigrateToPIN authenticates with the password and installs a PIN. It ignores
// PIN lockout state because it never checks a PIN.
func (s *Service) MigrateToPIN(ctx context.Context, req domain.MigrateToPINRequest) (*PINAuthResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || req.PIN == "" || req.ConfirmPIN == "" {
		return nil, ErrMissingFields
	}
	if req.PIN != req.ConfirmPIN {
		return nil, ErrPINMismatch
	}
	if !security.ValidatePINFormat(req.PIN) {
		return nil, ErrInvalidPINFormat
	}

	user, err := s.lookupForLogin(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Compare(user.PasswordHash, req.Password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		s.logger.Warn("pin migration rejected", "user_id", user.ID, "reason", "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if err := s.installPIN(ctx, user.ID, req.PIN, domain.PINSetSourceMigration); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("pin created via migration", "user_id", user.ID)
	return &PINAuthResult{Token: token, ExpiresAt: expiresAt, User: user.Summary()}, nil
}

// SetPIN sets or replaces the PIN of an authenticated user and clears any lock.
func (s *Service) SetPIN(ctx context.Context, userID string, req domain.SetPINRequest) error {
	if req.PIN == "" || req.ConfirmPIN == "" {
		return ErrMissingFields
	}
	if req.PIN != req.ConfirmPIN {
		return ErrPINMismatch
	}
	if !security.ValidatePINFormat(req.PIN) {
		return ErrInvalidPINFormat
	}
	if err := s.installPIN(ctx, userID, req.PIN, domain.PINSetSourceSetPIN); err != nil {
		return err
	}
	s.logger.Info("pin set", "user_id", userID)
	return nil
}

// GetProfile returns the profile of an authenticated user.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	profile := user.Profile()
	return &profile, nil
}

func (s *Service) installPIN(ctx context.Context, userID, pin string, source domain.PINSetSource) error {
	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.repo.SetPIN(ctx, userID, pinHash, source); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("store pin: %w", err)
	}
	return nil
}

// lookupForLogin finds the account behind email. A missing account burns one
// dummy comparison of secret so it costs the same as a wrong secret.
func (s *Service) lookupForLogin(ctx context.Context, email, secret string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		s.hasher.CompareDummy(secret)
		return nil, ErrInvalidCredentials
	}
	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.hasher.CompareDummy(secret)
			s.logger.Warn("login rejected", "reason", "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}
