package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Abdillah-Ali/biz-compas/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the cross-cutting parts of the HTTP surface.
type RouterOptions struct {
	AllowedOrigins []string
	Limiter        app.RateLimiter
	// LoginRateLimitPerMinute caps credential requests per client IP and
	// AccountRateLimitPerMinute caps sign-in attempts per target email across
	// all IPs. Zero disables either throttle.
	LoginRateLimitPerMinute   int
	AccountRateLimitPerMinute int
	RequestTimeout            time.Duration
	Logger                    *slog.Logger
}

// NewRouter creates and configures the chi router for the auth API.
func NewRouter(h *AuthHandler, parser TokenParser, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: !allowsAnyOrigin(opts.AllowedOrigins),
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Biz Compass API is running..."))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Auth service is healthy"))
	})

	perClient := RateLimit(opts.Limiter, app.RateLimitPolicy{
		Scope:  "auth_credentials",
		Limit:  opts.LoginRateLimitPerMinute,
		Window: time.Minute,
	}, ByClientIP, opts.Logger)
	perAccount := RateLimit(opts.Limiter, app.RateLimitPolicy{
		Scope:  "auth_account",
		Limit:  opts.AccountRateLimitPerMinute,
		Window: time.Minute,
	}, ByAccountEmail, opts.Logger)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(perClient)
			r.Post("/signup", h.Signup)

			r.Group(func(r chi.Router) {
				r.Use(perAccount)
				r.Post("/login", h.Login)
				r.Post("/pin-login", h.PINLogin)
				r.Post("/migrate-to-pin", h.MigrateToPIN)
			})
		})
		r.Get("/check-pin-status", h.CheckPINStatus)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(parser, opts.Logger))
			r.Get("/me", h.Me)
			r.Post("/set-pin", h.SetPIN)
		})
	})

	return r
}

// allowsAnyOrigin reports whether the wildcard origin is configured; browsers
// reject credentialed responses with a wildcard origin.
func allowsAnyOrigin(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
