package config

// EnvPrefix is empty because every field names its full variable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                 = "TABLEREWARDS_APP_ENV"
	EnvPort                   = "TABLEREWARDS_APP_PORT"
	EnvLogLevel               = "TABLEREWARDS_LOG_LEVEL"
	EnvDBDSN                  = "TABLEREWARDS_DB_DSN"
	EnvDBHost                 = "TABLEREWARDS_DB_HOST"
	EnvDBUser                 = "TABLEREWARDS_DB_USER"
	EnvDBName                 = "TABLEREWARDS_DB_NAME"
	EnvRedisURL               = "TABLEREWARDS_REDIS_URL"
	EnvJWTSecret              = "TABLEREWARDS_JWT_SECRET"
	EnvJWTIssuer              = "TABLEREWARDS_JWT_ISSUER"
	EnvJWTExpMins             = "TABLEREWARDS_JWT_EXPIRATION_MINUTES"
	EnvStripeAPIKey           = "TABLEREWARDS_STRIPE_API_KEY"
	EnvStripeSecret           = "TABLEREWARDS_STRIPE_SECRET"
	EnvStripeEnv              = "TABLEREWARDS_STRIPE_ENV"
	EnvWebhookIdempotencyTTL  = "TABLEREWARDS_WEBHOOK_IDEMPOTENCY_TTL"
	EnvCronInterval           = "TABLEREWARDS_CRON_INTERVAL"
	EnvPendingSubscriptionTTL = "TABLEREWARDS_PENDING_SUBSCRIPTION_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
