package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/app"
	"github.com/Abdillah-Ali/biz-compas/internal/domain"
)

const maxRequestBodyBytes = 1 << 20

// AuthService is the set of flows the handlers expose.
type AuthService interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*app.AuthResult, error)
	LoginWithPassword(ctx context.Context, req domain.PasswordLoginRequest) (*app.AuthResult, error)
	LoginWithPIN(ctx context.Context, req domain.PINLoginRequest) (*app.PINAuthResult, error)
	CheckPINStatus(ctx context.Context, email string) (*domain.PINStatus, error)
	MigrateToPIN(ctx context.Context, req domain.MigrateToPINRequest) (*app.PINAuthResult, error)
	SetPIN(ctx context.Context, userID string, req domain.SetPINRequest) error
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// AuthHandler serves the /api/auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
	now     func() time.Time
}

func NewAuthHandler(service AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, logger: logger.With("component", "api"), now: time.Now}
}

// endpointMessages carries the per-endpoint wording for input errors.
type endpointMessages struct {
	missingFields string
	pinFormat     string
}

var (
	signupMessages   = endpointMessages{missingFields: "All fields required"}
	loginMessages    = endpointMessages{missingFields: "Email and password required"}
	pinLoginMessages = endpointMessages{missingFields: "Email and PIN required", pinFormat: "Invalid PIN format"}
	migrateMessages  = endpointMessages{missingFields: "All fields required", pinFormat: "PIN must be exactly 4 digits"}
	setPINMessages   = endpointMessages{missingFields: "PIN and confirmation required", pinFormat: "PIN must be exactly 4 digits"}
	statusMessages   = endpointMessages{missingFields: "Email required"}
)

type messageResponse struct {
	Message string `json:"message"`
}

type authResponse struct {
	Token string             `json:"token"`
	User  domain.UserProfile `json:"user"`
}

type pinAuthResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Token   string             `json:"token"`
	User    domain.UserSummary `json:"user"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type validationResponse struct {
	Errors []app.FieldError `json:"errors"`
}

type pinNotSetResponse struct {
	Message         string `json:"message"`
	RequirePinSetup bool   `json:"requirePinSetup"`
	UserID          string `json:"userId"`
}

type lockedResponse struct {
	Message          string    `json:"message"`
	Locked           bool      `json:"locked"`
	LockedUntil      time.Time `json:"lockedUntil"`
	MinutesRemaining int       `json:"minutesRemaining"`
}

type invalidPINResponse struct {
	Message      string `json:"message"`
	AttemptsLeft int    `json:"attemptsLeft"`
}

// Signup handles POST /signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.Signup(r.Context(), req)
	if err != nil {
		h.writeAuthError(w, r, err, signupMessages)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: res.Token, User: res.User})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.LoginWithPassword(r.Context(), req)
	if err != nil {
		h.writeAuthError(w, r, err, loginMessages)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: res.Token, User: res.User})
}

// Me handles GET /me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Authorization required"})
		return
	}
	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeAuthError(w, r, err, endpointMessages{})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PINLogin handles POST /pin-login.
func (h *AuthHandler) PINLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.PINLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.LoginWithPIN(r.Context(), req)
	if err != nil {
		h.writeAuthError(w, r, err, pinLoginMessages)
		return
	}
	writeJSON(w, http.StatusOK, pinAuthResponse{Success: true, Token: res.Token, User: res.User})
}

// CheckPINStatus handles GET /check-pin-status?email=.
func (h *AuthHandler) CheckPINStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CheckPINStatus(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeAuthError(w, r, err, statusMessages)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// MigrateToPIN handles POST /migrate-to-pin.
func (h *AuthHandler) MigrateToPIN(w http.ResponseWriter, r *http.Request) {
	var req domain.MigrateToPINRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.service.MigrateToPIN(r.Context(), req)
	if err != nil {
		h.writeAuthError(w, r, err, migrateMessages)
		return
	}
	writeJSON(w, http.StatusOK, pinAuthResponse{
		Success: true,
		Message: "PIN created successfully",
		Token:   res.Token,
		User:    res.User,
	})
}

// SetPIN handles POST /set-pin for an authenticated user.
func (h *AuthHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Authorization required"})
		return
	}
	var req domain.SetPINRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.service.SetPIN(r.Context(), userID, req); err != nil {
		h.writeAuthError(w, r, err, setPINMessages)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "PIN set successfully"})
}

// writeAuthError maps service errors onto status codes and client messages.
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error, messages endpointMessages) {
	var (
		validationErr *app.ValidationError
		notSetErr     *app.PINNotConfiguredError
		lockedErr     *app.PINLockedError
		invalidPINErr *app.InvalidPINError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: validationErr.Fields})
	case errors.Is(err, app.ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: messages.missingFields})
	case errors.Is(err, app.ErrMissingEmail):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Email required"})
	case errors.Is(err, app.ErrInvalidPINFormat):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: messages.pinFormat})
	case errors.Is(err, app.ErrPINMismatch):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "PINs do not match"})
	case errors.Is(err, app.ErrUserExists):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "User already exists"})
	case errors.Is(err, app.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Invalid credentials"})
	case errors.Is(err, app.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "User not found"})
	case errors.As(err, &notSetErr):
		writeJSON(w, http.StatusForbidden, pinNotSetResponse{
			Message:         "PIN not set",
			RequirePinSetup: true,
			UserID:          notSetErr.UserID,
		})
	case errors.As(err, &lockedErr):
		message := fmt.Sprintf("Too many failed attempts. Try again in %d minute(s)", lockedErr.MinutesRemaining)
		if lockedErr.JustLocked {
			message = fmt.Sprintf("Too many failed attempts. Account locked for %d minutes.", int(domain.PINLockoutDuration/time.Minute))
		}
		retryAfter := int(lockedErr.LockedUntil.Sub(h.now()).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, lockedResponse{
			Message:          message,
			Locked:           true,
			LockedUntil:      lockedErr.LockedUntil.UTC(),
			MinutesRemaining: lockedErr.MinutesRemaining,
		})
	case errors.As(err, &invalidPINErr):
		writeJSON(w, http.StatusUnauthorized, invalidPINResponse{
			Message:      fmt.Sprintf("Invalid PIN. %d attempt(s) remaining", invalidPINErr.AttemptsLeft),
			AttemptsLeft: invalidPINErr.AttemptsLeft,
		})
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "component", "api", "err", err)
	}
}
