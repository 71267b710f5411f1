package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/app"
	"github.com/Abdillah-Ali/biz-compas/internal/domain"
	"github.com/Abdillah-Ali/biz-compas/internal/security"
	"github.com/Abdillah-Ali/biz-compas/internal/store"
	"github.com/Abdillah-Ali/biz-compas/internal/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type apiFixture struct {
	router http.Handler
	repo   *store.MemoryRepository
	issuer *token.Issuer
	clock  *fixedClock
}

func newAPIFixture(t *testing.T, opts RouterOptions) *apiFixture {
	t.Helper()
	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	repo := store.NewMemoryRepository("bizcompass.events").WithClock(clock.Now)
	issuer, err := token.NewIssuer("handler-secret", token.WithClock(clock.Now))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := app.NewService(repo, security.NewBcryptHasher(bcrypt.MinCost), issuer, logger, app.WithClock(clock.Now))
	handler := NewAuthHandler(svc, logger)
	handler.now = clock.Now
	opts.Logger = logger

	return &apiFixture{
		router: NewRouter(handler, issuer, opts),
		repo:   repo,
		issuer: issuer,
		clock:  clock,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	decoded := map[string]interface{}{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded), rr.Body.String())
	}
	return rr, decoded
}

func (f *apiFixture) signup(t *testing.T, email string) string {
	t.Helper()
	rr, body := f.do(t, http.MethodPost, "/api/auth/signup",
		`{"name":"Amina","company_name":"Kiosk Ltd","email":"`+email+`","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return body["token"].(string)
}

func (f *apiFixture) signupWithPIN(t *testing.T, email, pin string) string {
	t.Helper()
	tok := f.signup(t, email)
	rr, _ := f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"`+pin+`","confirmPin":"`+pin+`"}`, tok)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return tok
}

func TestRootAndHealth(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})

	rr, _ := f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Biz Compass API is running...", rr.Body.String())

	rr, _ = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSignupAndMe(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})

	rr, body := f.do(t, http.MethodPost, "/api/auth/signup",
		`{"name":"Amina","company_name":"Kiosk Ltd","email":"Amina@Kiosk.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "amina@kiosk.com", user["email"])
	assert.Equal(t, "Kiosk Ltd", user["company_name"])
	assert.NotContains(t, rr.Body.String(), "password")

	rr, me := f.do(t, http.MethodGet, "/api/auth/me", "", body["token"].(string))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, user["id"], me["id"])
	assert.Equal(t, "Amina", me["name"])

	rr, dup := f.do(t, http.MethodPost, "/api/auth/signup",
		`{"name":"Other","email":"amina@kiosk.com","password":"secret1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "User already exists", dup["message"])
}

func TestSignupValidationErrors(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})

	rr, body := f.do(t, http.MethodPost, "/api/auth/signup", `{"name":"","email":"bad","password":"1"}`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errs := body["errors"].([]interface{})
	require.Len(t, errs, 3)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "name", first["field"])
	assert.Equal(t, "Name is required", first["msg"])
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})

	rr, body := f.do(t, http.MethodPost, "/api/auth/signup",
		`{"name":"A","email":"a@x.com","password":"`+strings.Repeat("p", 80)+`"}`, "")
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	errs := body["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Equal(t, "password", errs[0].(map[string]interface{})["field"])
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signup(t, "amina@kiosk.com")

	rr, body := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"AMINA@kiosk.com","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, body["token"])

	wrong, wrongBody := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"amina@kiosk.com","password":"nope"}`, "")
	unknown, unknownBody := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"ghost@kiosk.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrongBody, unknownBody)
	assert.Equal(t, "Invalid credentials", wrongBody["message"])
}

func TestCheckPINStatus(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signup(t, "nopin@kiosk.com")
	f.signupWithPIN(t, "pin@kiosk.com", "1234")

	rr, body := f.do(t, http.MethodGet, "/api/auth/check-pin-status?email=nopin@kiosk.com", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, body["pinSet"])
	assert.NotEmpty(t, body["userId"])

	_, body = f.do(t, http.MethodGet, "/api/auth/check-pin-status?email=PIN@kiosk.com", "", "")
	assert.Equal(t, true, body["pinSet"])

	rr, body = f.do(t, http.MethodGet, "/api/auth/check-pin-status", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email required", body["message"])

	rr, body = f.do(t, http.MethodGet, "/api/auth/check-pin-status?email=ghost@kiosk.com", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "User not found", body["message"])
}

func TestPINLogin_InputErrors(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "missing pin", body: `{"email":"a@b.com"}`, message: "Email and PIN required"},
		{name: "missing email", body: `{"pin":"1234"}`, message: "Email and PIN required"},
		{name: "letters", body: `{"email":"a@b.com","pin":"12a4"}`, message: "Invalid PIN format"},
		{name: "too long", body: `{"email":"a@b.com","pin":"12345"}`, message: "Invalid PIN format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", tc.body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tc.message, body["message"])
		})
	}

	rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", body["message"])
}

func TestPINLogin_NotSet(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signup(t, "nopin@kiosk.com")

	rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"nopin@kiosk.com","pin":"1234"}`, "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "PIN not set", body["message"])
	assert.Equal(t, true, body["requirePinSetup"])
	assert.NotEmpty(t, body["userId"])
}

func TestPINLogin_LockoutFlow(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signupWithPIN(t, "pin@kiosk.com", "1234")
	wrong := `{"email":"pin@kiosk.com","pin":"0000"}`

	for i := 1; i <= 4; i++ {
		rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", wrong, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, float64(domain.MaxPINAttempts-i), body["attemptsLeft"])
	}
	f.do(t, http.MethodPost, "/api/auth/pin-login", wrong, "")

	rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"pin@kiosk.com","pin":"1234"}`, "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, "Too many failed attempts. Try again in 15 minute(s)", body["message"])
	assert.Equal(t, float64(15), body["minutesRemaining"])
	assert.Equal(t, "900", rr.Header().Get("Retry-After"))

	f.clock.Advance(15*time.Minute + time.Second)
	rr, body = f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"pin@kiosk.com","pin":"1234"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
}

func TestPINLogin_FifthFailureLocks(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signupWithPIN(t, "pin@kiosk.com", "1234")
	wrong := `{"email":"pin@kiosk.com","pin":"0000"}`

	for i := 0; i < 4; i++ {
		f.do(t, http.MethodPost, "/api/auth/pin-login", wrong, "")
	}
	rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", wrong, "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many failed attempts. Account locked for 15 minutes.", body["message"])
	assert.Equal(t, true, body["locked"])
	assert.NotEmpty(t, body["lockedUntil"])
}

func TestPINLogin_InvalidPINMessage(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signupWithPIN(t, "pin@kiosk.com", "1234")

	rr, body := f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"pin@kiosk.com","pin":"9999"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid PIN. 4 attempt(s) remaining", body["message"])

	rr, body = f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"ghost@kiosk.com","pin":"9999"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid credentials", body["message"])
}

func TestMigrateToPIN(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	f.signup(t, "amina@kiosk.com")

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{name: "missing", body: `{"email":"amina@kiosk.com","password":"secret1","pin":"1234"}`, status: http.StatusBadRequest, message: "All fields required"},
		{name: "mismatch", body: `{"email":"amina@kiosk.com","password":"secret1","pin":"1234","confirmPin":"4321"}`, status: http.StatusBadRequest, message: "PINs do not match"},
		{name: "format", body: `{"email":"amina@kiosk.com","password":"secret1","pin":"12","confirmPin":"12"}`, status: http.StatusBadRequest, message: "PIN must be exactly 4 digits"},
		{name: "bad password", body: `{"email":"amina@kiosk.com","password":"wrong","pin":"1234","confirmPin":"1234"}`, status: http.StatusUnauthorized, message: "Invalid credentials"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, body := f.do(t, http.MethodPost, "/api/auth/migrate-to-pin", tc.body, "")
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.message, body["message"])
		})
	}

	rr, body := f.do(t, http.MethodPost, "/api/auth/migrate-to-pin",
		`{"email":"amina@kiosk.com","password":"secret1","pin":"2468","confirmPin":"2468"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "PIN created successfully", body["message"])
	claims, err := f.issuer.Parse(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, body["user"].(map[string]interface{})["id"], claims.UserID)

	rr, _ = f.do(t, http.MethodPost, "/api/auth/pin-login", `{"email":"amina@kiosk.com","pin":"2468"}`, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSetPIN(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	tok := f.signup(t, "amina@kiosk.com")

	rr, body := f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"1234"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "PIN and confirmation required", body["message"])

	rr, body = f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"1234","confirmPin":"1235"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "PINs do not match", body["message"])

	rr, body = f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"abcd","confirmPin":"abcd"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "PIN must be exactly 4 digits", body["message"])

	rr, body = f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"1234","confirmPin":"1234"}`, tok)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "PIN set successfully", body["message"])
}

func TestSetPIN_UnknownUser(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	tok, _, err := f.issuer.Issue("3f0c1f5e-0000-4000-8000-000000000000", "ghost@kiosk.com")
	require.NoError(t, err)

	rr, body := f.do(t, http.MethodPost, "/api/auth/set-pin", `{"pin":"1234","confirmPin":"1234"}`, tok)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "User not found", body["message"])
}

func TestAuthMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{})
	other, err := token.NewIssuer("someone-else")
	require.NoError(t, err)
	foreign, _, err := other.Issue("user-1", "a@b.com")
	require.NoError(t, err)

	rr, body := f.do(t, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "No token, authorization denied", body["message"])

	rr, body = f.do(t, http.MethodGet, "/api/auth/me", "", foreign)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token is not valid", body["message"])

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_InjectsClaims(t *testing.T) {
	issuer, err := token.NewIssuer("ctx-secret")
	require.NoError(t, err)
	raw, _, err := issuer.Issue("user-42", "ctx@kiosk.com")
	require.NoError(t, err)

	var gotID, gotEmail string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		gotEmail, _ = UserEmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	AuthMiddleware(issuer, nil)(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "user-42", gotID)
	assert.Equal(t, "ctx@kiosk.com", gotEmail)
}

func TestRateLimit_ThrottlesCredentialEndpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAPIFixture(t, RouterOptions{
		Limiter:                 app.NewRedisRateLimiter(client, "test:rl"),
		LoginRateLimitPerMinute: 2,
	})

	body := `{"email":"ghost@kiosk.com","password":"nope"}`
	for i := 0; i < 2; i++ {
		rr, _ := f.do(t, http.MethodPost, "/api/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr, resp := f.do(t, http.MethodPost, "/api/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many requests", resp["message"])
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Status lookups are not throttled.
	rr, _ = f.do(t, http.MethodGet, "/api/auth/check-pin-status?email=ghost@kiosk.com", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	mr.FastForward(time.Minute)
	rr, _ = f.do(t, http.MethodPost, "/api/auth/login", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimit_ThrottlesPINGuessingAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAPIFixture(t, RouterOptions{
		Limiter:                   app.NewRedisRateLimiter(client, "test:rl"),
		AccountRateLimitPerMinute: 3,
	})
	f.signupWithPIN(t, "pin@kiosk.com", "1234")

	guess := func(remoteAddr, email string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/pin-login",
			strings.NewReader(`{"email":"`+email+`","pin":"0000"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		return rr
	}

	for i, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000", "10.0.0.3:1000"} {
		rr := guess(addr, "pin@kiosk.com")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "guess %d reaches the handler with its body", i+1)
	}

	rr := guess("10.0.0.4:1000", " PIN@kiosk.com ")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "the account key ignores case and padding")
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = guess("10.0.0.4:1000", "other@kiosk.com")
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "other accounts keep their own budget")
}

func TestRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newAPIFixture(t, RouterOptions{Limiter: app.NewRedisRateLimiter(client, "test:rl")})

	for i := 0; i < 5; i++ {
		rr, _ := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"ghost@kiosk.com","password":"x"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	assert.Empty(t, mr.Keys())
}

func TestByAccountEmail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":" Amina@Kiosk.com ","pin":"1234"}`))
	assert.Equal(t, "amina@kiosk.com", ByAccountEmail(req))

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":" Amina@Kiosk.com ","pin":"1234"}`, string(rest))

	assert.Empty(t, ByAccountEmail(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, app.RateLimitPolicy, string) (app.RateLimitDecision, error) {
	return app.RateLimitDecision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	f := newAPIFixture(t, RouterOptions{Limiter: brokenLimiter{}, LoginRateLimitPerMinute: 1, AccountRateLimitPerMinute: 1})

	for i := 0; i < 3; i++ {
		rr, _ := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"ghost@kiosk.com","password":"x"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}
}

type failingService struct {
	AuthService
}

func (failingService) CheckPINStatus(context.Context, string) (*domain.PINStatus, error) {
	return nil, errors.New("connection refused")
}

func TestServerErrorsAreMasked(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := token.NewIssuer("x")
	require.NoError(t, err)
	router := NewRouter(NewAuthHandler(failingService{}, logger), issuer, RouterOptions{Logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check-pin-status?email=a@b.com", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"message":"Server error"}`, rr.Body.String())
}
