package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Stripe        StripeConfig
	Checkout      CheckoutConfig
	SMTP          SMTPConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Retention     RetentionConfig
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
	Env          string `envconfig:"COPPERLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"COPPERLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"COPPERLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COPPERLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"COPPERLINE_DB_DSN"`
	Driver string `envconfig:"COPPERLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COPPERLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"COPPERLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COPPERLINE_DB_USER"`
	LegacyPassword string `envconfig:"COPPERLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COPPERLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COPPERLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COPPERLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COPPERLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COPPERLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COPPERLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COPPERLINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COPPERLINE_REDIS_ADDR"`
	Password     string        `envconfig:"COPPERLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COPPERLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COPPERLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COPPERLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COPPERLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COPPERLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COPPERLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"COPPERLINE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"COPPERLINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"COPPERLINE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"COPPERLINE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COPPERLINE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COPPERLINE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COPPERLINE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COPPERLINE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COPPERLINE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"COPPERLINE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COPPERLINE_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	// APIKey and Secret are optional at boot so the rest of the API can
	// serve while payments are unconfigured; checkout reports the gateway
	// as unavailable until both are set.
	APIKey string `envconfig:"COPPERLINE_STRIPE_API_KEY"`
	Secret string `envconfig:"COPPERLINE_STRIPE_SECRET"`
	Env    string `envconfig:"COPPERLINE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Configured reports whether both Stripe secrets are present.
func (s StripeConfig) Configured() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type CheckoutConfig struct {
	SuccessURL                 string        `envconfig:"COPPERLINE_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL                  string        `envconfig:"COPPERLINE_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout/cancelled"`
	SessionTTL                 time.Duration `envconfig:"COPPERLINE_CHECKOUT_SESSION_TTL" default:"1h"`
	GatewayTimeout             time.Duration `envconfig:"COPPERLINE_CHECKOUT_GATEWAY_TIMEOUT" default:"15s"`
	Currency                   string        `envconfig:"COPPERLINE_CHECKOUT_CURRENCY" default:"usd"`
	ShippingBaseCents          int64         `envconfig:"COPPERLINE_SHIPPING_BASE_CENTS" default:"599"`
	ShippingPerKgCents         int64         `envconfig:"COPPERLINE_SHIPPING_PER_KG_CENTS" default:"150"`
	FreeShippingThresholdCents int64         `envconfig:"COPPERLINE_FREE_SHIPPING_THRESHOLD_CENTS" default:"7500"`
}

type SMTPConfig struct {
	Host     string `envconfig:"COPPERLINE_SMTP_HOST"`
	Port     int    `envconfig:"COPPERLINE_SMTP_PORT" default:"587"`
	Username string `envconfig:"COPPERLINE_SMTP_USERNAME"`
	Password string `envconfig:"COPPERLINE_SMTP_PASSWORD"`
	From     string `envconfig:"COPPERLINE_SMTP_FROM" default:"orders@copperline.shop"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COPPERLINE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"COPPERLINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COPPERLINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"COPPERLINE_PUBSUB_ORDER_EVENTS_TOPIC" default:"cl-order-events"`
	OrderEventsSubscription string `envconfig:"COPPERLINE_PUBSUB_ORDER_EVENTS_SUBSCRIPTION" default:"cl-order-events-publisher"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COPPERLINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COPPERLINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COPPERLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type RetentionConfig struct {
	WebhookEventMaxAge    time.Duration `envconfig:"COPPERLINE_RETENTION_WEBHOOK_EVENT_MAX_AGE" default:"720h"`
	OutboxPublishedMaxAge time.Duration `envconfig:"COPPERLINE_RETENTION_OUTBOX_PUBLISHED_MAX_AGE" default:"168h"`
	OutboxDLQMaxAge       time.Duration `envconfig:"COPPERLINE_RETENTION_OUTBOX_DLQ_MAX_AGE" default:"2160h"`
	GuestCartMaxAge       time.Duration `envconfig:"COPPERLINE_RETENTION_GUEST_CART_MAX_AGE" default:"720h"`
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
