package config

import (
	"encoding/base64"
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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Orders       OrdersConfig
	Collection   CollectionConfig
	PayFast      PayFastConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Collection.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RENTLOOP_APP_ENV" required:"true"`
	Port         string `envconfig:"RENTLOOP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RENTLOOP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RENTLOOP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RENTLOOP_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"RENTLOOP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RENTLOOP_SERVICE_KIND" default:"api"`
	// Listener for /metrics on the worker binaries. Empty disables it; the
	// api serves /metrics on its own port.
	MetricsAddr string `envconfig:"RENTLOOP_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENTLOOP_DB_DSN"`
	Driver string `envconfig:"RENTLOOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENTLOOP_DB_HOST"`
	LegacyPort     int    `envconfig:"RENTLOOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENTLOOP_DB_USER"`
	LegacyPassword string `envconfig:"RENTLOOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENTLOOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENTLOOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENTLOOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENTLOOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENTLOOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENTLOOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Statements slower than this are logged at warn. Zero disables the log.
	SlowQueryThreshold time.Duration `envconfig:"RENTLOOP_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets a local sqlite file.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"RENTLOOP_REDIS_URL"`
	Address      string        `envconfig:"RENTLOOP_REDIS_ADDR"`
	Password     string        `envconfig:"RENTLOOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENTLOOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENTLOOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENTLOOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENTLOOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENTLOOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENTLOOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"RENTLOOP_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"RENTLOOP_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"RENTLOOP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"RENTLOOP_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type OrdersConfig struct {
	CommissionRate string        `envconfig:"RENTLOOP_COMMISSION_RATE" default:"0.08"`
	ApprovalWindow time.Duration `envconfig:"RENTLOOP_ORDER_APPROVAL_WINDOW" default:"720h"`
	PaymentWindow  time.Duration `envconfig:"RENTLOOP_ORDER_PAYMENT_WINDOW" default:"168h"`
	ExpiryBatch    int           `envconfig:"RENTLOOP_ORDER_EXPIRY_BATCH" default:"200"`
}

// Rate returns the configured commission rate. Load has already validated it.
func (o OrdersConfig) Rate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(o.CommissionRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (o OrdersConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(o.CommissionRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", EnvCommissionRate, rate)
	}
	if o.ApprovalWindow <= 0 || o.PaymentWindow <= 0 {
		return fmt.Errorf("order approval and payment windows must be positive")
	}
	return nil
}

type CollectionConfig struct {
	TokenKey string        `envconfig:"RENTLOOP_COLLECTION_TOKEN_KEY" required:"true"`
	TokenTTL time.Duration `envconfig:"RENTLOOP_COLLECTION_TOKEN_TTL" default:"120s"`

	// Per-vendor attempts at completing a handoff within CompleteWindow.
	CompleteLimit  int           `envconfig:"RENTLOOP_COLLECTION_COMPLETE_LIMIT" default:"10"`
	CompleteWindow time.Duration `envconfig:"RENTLOOP_COLLECTION_COMPLETE_WINDOW" default:"1m"`
}

// Key decodes the base64 sealing key for collection tokens.
func (c CollectionConfig) Key() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.TokenKey))
	if err != nil {
		return nil, fmt.Errorf("%s must be base64: %w", EnvCollectionTokenKey, err)
	}
	if len(raw) != CollectionKeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", EnvCollectionTokenKey, CollectionKeySize, len(raw))
	}
	return raw, nil
}

func (c CollectionConfig) validate() error {
	if _, err := c.Key(); err != nil {
		return err
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvCollectionTokenTTL)
	}
	return nil
}

type PayFastConfig struct {
	MerchantID      string `envconfig:"RENTLOOP_PAYFAST_MERCHANT_ID"`
	Passphrase      string `envconfig:"RENTLOOP_PAYFAST_PASSPHRASE"`
	VerifySignature bool   `envconfig:"RENTLOOP_PAYFAST_VERIFY_SIGNATURE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"RENTLOOP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"RENTLOOP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"RENTLOOP_PUBSUB_ORDERS_TOPIC" default:"rl-order-events"`
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"RENTLOOP_KAFKA_BROKERS"`
	OrdersTopic string   `envconfig:"RENTLOOP_KAFKA_ORDERS_TOPIC" default:"rl-order-events"`
	ClientID    string   `envconfig:"RENTLOOP_KAFKA_CLIENT_ID" default:"rentloop-outbox"`
}

type OutboxConfig struct {
	Transport      string `envconfig:"RENTLOOP_OUTBOX_TRANSPORT" default:"pubsub"`
	BatchSize      int    `envconfig:"RENTLOOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"RENTLOOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"RENTLOOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int    `envconfig:"RENTLOOP_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(o.Transport) {
	case OutboxTransportPubSub, OutboxTransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvOutboxTransport, OutboxTransportPubSub, OutboxTransportKafka, o.Transport)
	}
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RENTLOOP_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"RENTLOOP_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
