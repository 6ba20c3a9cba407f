package config

const (
	EnvPrefix = "UTILSPLIT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "UTILSPLIT_APP_ENV"
	EnvPort         = "UTILSPLIT_APP_PORT"
	EnvLogLevel     = "UTILSPLIT_LOG_LEVEL"
	EnvDBDSN        = "UTILSPLIT_DB_DSN"
	EnvDBHost       = "UTILSPLIT_DB_HOST"
	EnvDBUser       = "UTILSPLIT_DB_USER"
	EnvDBName       = "UTILSPLIT_DB_NAME"
	EnvRedisURL     = "UTILSPLIT_REDIS_URL"
	EnvJWTSecret    = "UTILSPLIT_JWT_SECRET"
	EnvJWTIssuer    = "UTILSPLIT_JWT_ISSUER"
	EnvJWTExpMins   = "UTILSPLIT_JWT_EXPIRATION_MINUTES"
	EnvAdminID      = "UTILSPLIT_ADMIN_ID"
	EnvGraceDays    = "UTILSPLIT_BILLING_GRACE_DAYS"
	EnvLateFee      = "UTILSPLIT_BILLING_LATE_FEE_MULTIPLIER"
	EnvBotToken     = "UTILSPLIT_TELEGRAM_BOT_TOKEN"
	EnvGroupChatID  = "UTILSPLIT_TELEGRAM_GROUP_CHAT_ID"
	EnvPaystackKey  = "UTILSPLIT_PAYSTACK_SECRET_KEY"
	EnvPaystackBase = "UTILSPLIT_PAYSTACK_BASE_URL"
	EnvCORSOrigins  = "UTILSPLIT_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
