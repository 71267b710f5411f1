/**
 * @description
 * Configuration management for the auth service. Values come from an optional
 * .env file and the process environment through Viper, then get normalised so the
 * rest of the service can rely on sane defaults.
 *
 * @dependencies
 * - github.com/spf13/viper: environment and .env loading.
 */

package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort           = "5000"
	defaultTokenIssuer          = "biz-compass"
	defaultBcryptCost           = 10
	defaultRateLimitPrefix      = "bizcompass:rate_limit"
	defaultLoginRateLimit       = 30
	defaultAccountRateLimit     = 10
	defaultEventsExchange       = "bizcompass.events"
	defaultLockSweepSchedule    = "*/5 * * * *"
	defaultOutboxPruneSchedule  = "0 3 * * *"
	defaultOutboxRetentionHours = 168
	defaultDBMaxConns           = 10
	defaultDBMinConns           = 2
)

// Config holds all the configuration variables for the auth service.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	DBMaxConns                int    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                int    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret                 string `mapstructure:"JWT_SECRET"`
	TokenIssuer               string `mapstructure:"TOKEN_ISSUER"`
	BcryptCost                int    `mapstructure:"BCRYPT_COST"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	LoginRateLimitPerMinute   int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	AccountRateLimitPerMinute int    `mapstructure:"ACCOUNT_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	AuthEventsExchange        string `mapstructure:"AUTH_EVENTS_EXCHANGE"`
	CORSAllowedOrigins        string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel                  string `mapstructure:"LOG_LEVEL"`
	PINLockSweepSchedule      string `mapstructure:"PIN_LOCK_SWEEP_SCHEDULE"`
	OutboxPruneSchedule       string `mapstructure:"OUTBOX_PRUNE_SCHEDULE"`
	OutboxRetentionHours      int    `mapstructure:"OUTBOX_RETENTION_HOURS"`
}

// LoadConfig reads configuration from the optional .env file under path and from
// environment variables. A missing JWT secret is not an error here; the token
// issuer refuses to start without one.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("DB_MAX_CONNS", defaultDBMaxConns)
	viper.SetDefault("DB_MIN_CONNS", defaultDBMinConns)
	viper.SetDefault("TOKEN_ISSUER", defaultTokenIssuer)
	viper.SetDefault("BCRYPT_COST", defaultBcryptCost)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", defaultLoginRateLimit)
	viper.SetDefault("ACCOUNT_RATE_LIMIT_PER_MINUTE", defaultAccountRateLimit)
	viper.SetDefault("AUTH_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PIN_LOCK_SWEEP_SCHEDULE", defaultLockSweepSchedule)
	viper.SetDefault("OUTBOX_PRUNE_SCHEDULE", defaultOutboxPruneSchedule)
	viper.SetDefault("OUTBOX_RETENTION_HOURS", defaultOutboxRetentionHours)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "TOKEN_SIGNING_SECRET")
	_ = viper.BindEnv("TOKEN_ISSUER")
	_ = viper.BindEnv("BCRYPT_COST")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ACCOUNT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AUTH_EVENTS_EXCHANGE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("LOG_LEVEL")
	_ = viper.BindEnv("PIN_LOCK_SWEEP_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_PRUNE_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_RETENTION_HOURS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "err", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.ServerPort = strings.TrimSpace(config.ServerPort)
	if config.ServerPort == "" {
		config.ServerPort = defaultServerPort
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)

	config.TokenIssuer = strings.TrimSpace(config.TokenIssuer)
	if config.TokenIssuer == "" {
		config.TokenIssuer = defaultTokenIssuer
	}
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.AuthEventsExchange = strings.TrimSpace(config.AuthEventsExchange)
	if config.AuthEventsExchange == "" {
		config.AuthEventsExchange = defaultEventsExchange
	}
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if strings.TrimSpace(config.PINLockSweepSchedule) == "" {
		config.PINLockSweepSchedule = defaultLockSweepSchedule
	}
	if strings.TrimSpace(config.OutboxPruneSchedule) == "" {
		config.OutboxPruneSchedule = defaultOutboxPruneSchedule
	}

	// bcrypt rejects costs outside [4, 31].
	if config.BcryptCost < 4 || config.BcryptCost > 31 {
		slog.Warn("invalid BCRYPT_COST; using default", "component", "config", "value", config.BcryptCost)
		config.BcryptCost = defaultBcryptCost
	}
	// Zero disables a throttle; negative values are typos.
	if config.LoginRateLimitPerMinute < 0 {
		config.LoginRateLimitPerMinute = defaultLoginRateLimit
	}
	if config.AccountRateLimitPerMinute < 0 {
		config.AccountRateLimitPerMinute = defaultAccountRateLimit
	}
	if config.OutboxRetentionHours <= 0 {
		config.OutboxRetentionHours = defaultOutboxRetentionHours
	}
	if config.DBMaxConns <= 0 {
		config.DBMaxConns = defaultDBMaxConns
	}
	if config.DBMinConns < 0 || config.DBMinConns > config.DBMaxConns {
		config.DBMinConns = 0
	}

	return
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
