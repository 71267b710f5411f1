package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Abdillah-Ali/biz-compas/internal/app"
	"github.com/Abdillah-Ali/biz-compas/internal/domain"
)

// SubjectFunc names who a request is counted against. An empty subject skips
// throttling for that request.
type SubjectFunc func(r *http.Request) string

// ByClientIP counts requests per client address. It expects middleware.RealIP
// to have rewritten RemoteAddr already.
func ByClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ByAccountEmail counts requests per target account, whichever address they
// come from. The body is restored for the handler.
func ByAccountEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return domain.NormalizeEmail(body.Email)
}

// RateLimit answers 429 once subject exhausts policy. It fails open when the
// limiter errors and is a pass-through for a nil limiter or disabled policy.
func RateLimit(limiter app.RateLimiter, policy app.RateLimitPolicy, subject SubjectFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil || !policy.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), policy, subject(r))
			if err != nil {
				logger.Warn("rate limiter unavailable", "component", "api", "scope", policy.Scope, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
