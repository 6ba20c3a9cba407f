package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Billing      BillingConfig
	Telegram     TelegramConfig
	Paystack     PaystackConfig
	Cron         CronConfig
	Webhooks     WebhooksConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"UTILSPLIT_APP_ENV" required:"true"`
	Port         string `envconfig:"UTILSPLIT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"UTILSPLIT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"UTILSPLIT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"UTILSPLIT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"UTILSPLIT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"UTILSPLIT_DB_DSN"`
	Driver string `envconfig:"UTILSPLIT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"UTILSPLIT_DB_HOST"`
	LegacyPort     int    `envconfig:"UTILSPLIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"UTILSPLIT_DB_USER"`
	LegacyPassword string `envconfig:"UTILSPLIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"UTILSPLIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"UTILSPLIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"UTILSPLIT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"UTILSPLIT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"UTILSPLIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"UTILSPLIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"UTILSPLIT_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"UTILSPLIT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"UTILSPLIT_REDIS_ADDR"`
	Password     string        `envconfig:"UTILSPLIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"UTILSPLIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"UTILSPLIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"UTILSPLIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"UTILSPLIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"UTILSPLIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"UTILSPLIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"UTILSPLIT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"UTILSPLIT_JWT_ISSUER" default:"utilitysplit"`
	ExpirationMinutes int    `envconfig:"UTILSPLIT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BillingConfig holds the knobs of the billing cycle engine.
type BillingConfig struct {
	AdminID           string          `envconfig:"UTILSPLIT_ADMIN_ID" required:"true"`
	GraceDays         int             `envconfig:"UTILSPLIT_BILLING_GRACE_DAYS" default:"7"`
	LateFeeMultiplier decimal.Decimal `envconfig:"UTILSPLIT_BILLING_LATE_FEE_MULTIPLIER" default:"1.10"`
	CurrencySymbol    string          `envconfig:"UTILSPLIT_BILLING_CURRENCY_SYMBOL" default:"₦"`
	CurrencyCode      string          `envconfig:"UTILSPLIT_BILLING_CURRENCY_CODE" default:"NGN"`
}

// GracePeriod returns the window between cycle creation and its due date.
func (b BillingConfig) GracePeriod() time.Duration {
	if b.GraceDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(b.GraceDays) * 24 * time.Hour
}

func (b BillingConfig) validate() error {
	if strings.TrimSpace(b.AdminID) == "" {
		return fmt.Errorf("%s is required", EnvAdminID)
	}
	if !b.LateFeeMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be greater than 1", EnvLateFee)
	}
	return nil
}

type TelegramConfig struct {
	BotToken           string `envconfig:"UTILSPLIT_TELEGRAM_BOT_TOKEN"`
	GroupChatID        int64  `envconfig:"UTILSPLIT_TELEGRAM_GROUP_CHAT_ID"`
	PollTimeoutSeconds int    `envconfig:"UTILSPLIT_TELEGRAM_POLL_TIMEOUT_SECONDS" default:"60"`
	Debug              bool   `envconfig:"UTILSPLIT_TELEGRAM_DEBUG" default:"false"`
}

type PaystackConfig struct {
	SecretKey        string        `envconfig:"UTILSPLIT_PAYSTACK_SECRET_KEY"`
	BaseURL          string        `envconfig:"UTILSPLIT_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL      string        `envconfig:"UTILSPLIT_PAYSTACK_CALLBACK_URL"`
	PayerEmailDomain string        `envconfig:"UTILSPLIT_PAYSTACK_PAYER_EMAIL_DOMAIN" default:"tenants.utilitysplit.app"`
	Timeout          time.Duration `envconfig:"UTILSPLIT_PAYSTACK_TIMEOUT" default:"15s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"UTILSPLIT_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"UTILSPLIT_CRON_LOCK_TTL" default:"1h"`
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"UTILSPLIT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// RateLimitConfig bounds how often a member may request a payment link.
type RateLimitConfig struct {
	PayLinkLimit  int64         `envconfig:"UTILSPLIT_RATE_LIMIT_PAYLINK" default:"5"`
	PayLinkWindow time.Duration `envconfig:"UTILSPLIT_RATE_LIMIT_PAYLINK_WINDOW" default:"10m"`
}

// CORSConfig lists the browser origins allowed to call the admin API. Empty
// disables CORS handling.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"UTILSPLIT_CORS_ALLOWED_ORIGINS"`
	MaxAgeSeconds  int      `envconfig:"UTILSPLIT_CORS_MAX_AGE" default:"300"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"UTILSPLIT_AUTO_MIGRATE" default:"false"`
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
