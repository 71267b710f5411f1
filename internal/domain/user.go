package domain

import (
	"strings"
	"time"
)

// User is the credential record persisted per account.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CompanyName    *string    `json:"company_name,omitempty"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	PINHash        *string    `json:"-"`
	PINSet         bool       `json:"pin_set"`
	PINAttempts    int        `json:"-"`
	PINLockedUntil *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UserProfile is the projection returned by password login, signup and /me.
type UserProfile struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	CompanyName *string `json:"company_name"`
}

// UserSummary is the projection returned by the PIN flows.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Profile() UserProfile {
	return UserProfile{ID: u.ID, Name: u.Name, Email: u.Email, CompanyName: u.CompanyName}
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NewUser carries the fields required to create an account.
type NewUser struct {
	Name         string
	CompanyName  *string
	Email        string
	PasswordHash string
}

// SignupRequest is the payload for account registration.
type SignupRequest struct {
	Name        string  `json:"name"`
	CompanyName *string `json:"company_name"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
}

// PasswordLoginRequest is the payload for POST /login.
type PasswordLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PINLoginRequest is the payload for POST /pin-login.
type PINLoginRequest struct {
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// MigrateToPINRequest is the payload for POST /migrate-to-pin.
type MigrateToPINRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	PIN        string `json:"pin"`
	ConfirmPIN string `json:"confirmPin"`
}

// SetPINRequest is the payload for POST /set-pin.
type SetPINRequest struct {
	PIN        string `json:"pin"`
	ConfirmPIN string `json:"confirmPin"`
}

// PINStatus answers GET /check-pin-status.
type PINStatus struct {
	PINSet bool   `json:"pinSet"`
	UserID string `json:"userId"`
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
