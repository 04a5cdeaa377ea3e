package config

const EnvPrefix = "RENTLOOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"

	CollectionKeySize = 32
)

const (
	EnvAppEnv    = "RENTLOOP_APP_ENV"
	EnvPort      = "RENTLOOP_APP_PORT"
	EnvLogLevel  = "RENTLOOP_LOG_LEVEL"
	EnvLogFormat = "RENTLOOP_LOG_FORMAT"

	EnvDBDSN    = "RENTLOOP_DB_DSN"
	EnvDBDriver = "RENTLOOP_DB_DRIVER"
	EnvDBHost   = "RENTLOOP_DB_HOST"
	EnvDBUser   = "RENTLOOP_DB_USER"
	EnvDBName   = "RENTLOOP_DB_NAME"

	EnvRedisURL     = "RENTLOOP_REDIS_URL"
	EnvJWTSecret    = "RENTLOOP_JWT_SECRET"
	EnvJWTIssuer    = "RENTLOOP_JWT_ISSUER"
	EnvAutoMigrate  = "RENTLOOP_AUTO_MIGRATE"
	EnvGCPProjectID = "RENTLOOP_GCP_PROJECT_ID"

	EnvCommissionRate     = "RENTLOOP_COMMISSION_RATE"
	EnvCollectionTokenKey = "RENTLOOP_COLLECTION_TOKEN_KEY"
	EnvCollectionTokenTTL = "RENTLOOP_COLLECTION_TOKEN_TTL"

	EnvPayFastMerchantID      = "RENTLOOP_PAYFAST_MERCHANT_ID"
	EnvPayFastPassphrase      = "RENTLOOP_PAYFAST_PASSPHRASE"
	EnvPayFastVerifySignature = "RENTLOOP_PAYFAST_VERIFY_SIGNATURE"

	EnvKafkaBrokers    = "RENTLOOP_KAFKA_BROKERS"
	EnvOutboxTransport = "RENTLOOP_OUTBOX_TRANSPORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
