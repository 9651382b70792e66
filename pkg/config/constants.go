package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "COPPERLINE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names, shared with tests and operational tooling.
const (
	EnvAppEnv = "COPPERLINE_APP_ENV"
	EnvPort   = "COPPERLINE_APP_PORT"

	EnvDBDSN  = "COPPERLINE_DB_DSN"
	EnvDBHost = "COPPERLINE_DB_HOST"
	EnvDBUser = "COPPERLINE_DB_USER"
	EnvDBName = "COPPERLINE_DB_NAME"

	EnvRedisURL = "COPPERLINE_REDIS_URL"

	EnvJWTSecret              = "COPPERLINE_JWT_SECRET"
	EnvJWTIssuer              = "COPPERLINE_JWT_ISSUER"
	EnvJWTExpMins             = "COPPERLINE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "COPPERLINE_REFRESH_TOKEN_TTL_MINUTES"

	EnvStripeAPIKey = "COPPERLINE_STRIPE_API_KEY"
	EnvStripeSecret = "COPPERLINE_STRIPE_SECRET"

	EnvCheckoutSuccessURL = "COPPERLINE_CHECKOUT_SUCCESS_URL"
	EnvCheckoutCancelURL  = "COPPERLINE_CHECKOUT_CANCEL_URL"

	EnvGCPProjectID          = "COPPERLINE_GCP_PROJECT_ID"
	EnvPubSubOrderEventTopic = "COPPERLINE_PUBSUB_ORDER_EVENTS_TOPIC"
	EnvPubSubOrderEventSub   = "COPPERLINE_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
