package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Webhook      WebhookConfig
	Breaker      BreakerConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TABLEREWARDS_APP_ENV" required:"true"`
	Port         string `envconfig:"TABLEREWARDS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TABLEREWARDS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TABLEREWARDS_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"TABLEREWARDS_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TABLEREWARDS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TABLEREWARDS_DB_DSN"`
	Driver string `envconfig:"TABLEREWARDS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TABLEREWARDS_DB_HOST"`
	LegacyPort     int    `envconfig:"TABLEREWARDS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TABLEREWARDS_DB_USER"`
	LegacyPassword string `envconfig:"TABLEREWARDS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TABLEREWARDS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TABLEREWARDS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TABLEREWARDS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TABLEREWARDS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TABLEREWARDS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TABLEREWARDS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TABLEREWARDS_REDIS_URL"`
	Address      string        `envconfig:"TABLEREWARDS_REDIS_ADDR"`
	Password     string        `envconfig:"TABLEREWARDS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TABLEREWARDS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TABLEREWARDS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TABLEREWARDS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TABLEREWARDS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TABLEREWARDS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TABLEREWARDS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TABLEREWARDS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TABLEREWARDS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TABLEREWARDS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TABLEREWARDS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TABLEREWARDS_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"TABLEREWARDS_STRIPE_API_KEY"`
	Secret string `envconfig:"TABLEREWARDS_STRIPE_SECRET"`
	Env    string `envconfig:"TABLEREWARDS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"TABLEREWARDS_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// BreakerConfig tunes the circuit breaker in front of provider calls.
type BreakerConfig struct {
	MaxRequests         uint32        `envconfig:"TABLEREWARDS_BREAKER_MAX_REQUESTS" default:"1"`
	Interval            time.Duration `envconfig:"TABLEREWARDS_BREAKER_INTERVAL" default:"60s"`
	Timeout             time.Duration `envconfig:"TABLEREWARDS_BREAKER_TIMEOUT" default:"30s"`
	ConsecutiveFailures uint32        `envconfig:"TABLEREWARDS_BREAKER_CONSECUTIVE_FAILURES" default:"5"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"TABLEREWARDS_CRON_INTERVAL" default:"15m"`
	LockTTL                time.Duration `envconfig:"TABLEREWARDS_CRON_LOCK_TTL" default:"10m"`
	ReconcileBatchSize     int           `envconfig:"TABLEREWARDS_CRON_RECONCILE_BATCH_SIZE" default:"100"`
	ReconcileLookback      time.Duration `envconfig:"TABLEREWARDS_CRON_RECONCILE_LOOKBACK" default:"168h"`
	PendingSubscriptionTTL time.Duration `envconfig:"TABLEREWARDS_PENDING_SUBSCRIPTION_TTL" default:"24h"`
}

// RateLimitConfig throttles subscription starts per user.
type RateLimitConfig struct {
	SubscriptionStartLimit  int           `envconfig:"TABLEREWARDS_RATE_LIMIT_SUBSCRIPTION_START" default:"5"`
	SubscriptionStartWindow time.Duration `envconfig:"TABLEREWARDS_RATE_LIMIT_SUBSCRIPTION_START_WINDOW" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
