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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Settlement   SettlementConfig
	Security     SecurityConfig
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
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string `envconfig:"SETTLEMENT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"SETTLEMENT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"SETTLEMENT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SETTLEMENT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Transport            string        `envconfig:"SETTLEMENT_EVENTING_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"SETTLEMENT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// UsesKafka reports whether outbox events are shipped through Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvEventingTransport, TransportPubSub, TransportKafka)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SETTLEMENT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SETTLEMENT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SETTLEMENT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementTopic          string `envconfig:"SETTLEMENT_PUBSUB_SETTLEMENT_TOPIC" default:"settlement-events"`
	NotificationSubscription string `envconfig:"SETTLEMENT_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"SETTLEMENT_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"SETTLEMENT_KAFKA_BROKERS" default:"localhost:9092"`
	Topic        string        `envconfig:"SETTLEMENT_KAFKA_TOPIC" default:"settlement-events"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_KAFKA_WRITE_TIMEOUT" default:"10s"`

	NotificationGroup string `envconfig:"SETTLEMENT_KAFKA_NOTIFICATION_GROUP" default:"settlement-notifications"`
	AnalyticsGroup    string `envconfig:"SETTLEMENT_KAFKA_ANALYTICS_GROUP" default:"settlement-analytics"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"SETTLEMENT_BIGQUERY_DATASET" default:"settlement"`
	LedgerTable  string `envconfig:"SETTLEMENT_BIGQUERY_LEDGER_TABLE" default:"wallet_postings"`
	PayoutsTable string `envconfig:"SETTLEMENT_BIGQUERY_PAYOUTS_TABLE" default:"payouts"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"SETTLEMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"SETTLEMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"SETTLEMENT_OUTBOX_RETENTION" default:"720h"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"SETTLEMENT_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"SETTLEMENT_SQUARE_ENV" default:"sandbox"`
	WebhookSecret string `envconfig:"SETTLEMENT_SQUARE_WEBHOOK_SECRET"`

	// WebhookURL is the notification URL registered with Square; it is part of the signed payload.
	WebhookURL string `envconfig:"SETTLEMENT_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// SettlementConfig carries the business windows and payout bounds.
type SettlementConfig struct {
	PayoutMin        string        `envconfig:"SETTLEMENT_PAYOUT_MIN" default:"500.00"`
	PayoutMax        string        `envconfig:"SETTLEMENT_PAYOUT_MAX" default:"500000.00"`
	CancelWindow     time.Duration `envconfig:"SETTLEMENT_CANCEL_WINDOW" default:"24h"`
	ReturnWindow     time.Duration `envconfig:"SETTLEMENT_RETURN_WINDOW" default:"24h"`
	DisputeWindow    time.Duration `envconfig:"SETTLEMENT_DISPUTE_WINDOW" default:"168h"`
	AutoConfirmAfter time.Duration `envconfig:"SETTLEMENT_AUTO_CONFIRM_AFTER" default:"72h"`
}

// PayoutBounds parses the configured payout limits.
func (s SettlementConfig) PayoutBounds() (decimal.Decimal, decimal.Decimal, error) {
	minAmount, err := decimal.NewFromString(strings.TrimSpace(s.PayoutMin))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%s: %w", EnvPayoutMin, err)
	}
	maxAmount, err := decimal.NewFromString(strings.TrimSpace(s.PayoutMax))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%s: %w", EnvPayoutMax, err)
	}
	return minAmount, maxAmount, nil
}

func (s SettlementConfig) validate() error {
	minAmount, maxAmount, err := s.PayoutBounds()
	if err != nil {
		return err
	}
	if !minAmount.IsPositive() || maxAmount.LessThan(minAmount) {
		return fmt.Errorf("payout bounds invalid: min=%s max=%s", minAmount, maxAmount)
	}
	return nil
}

type SecurityConfig struct {
	// BankDetailsKey is a 32 byte key, hex encoded, used to seal payout account numbers.
	BankDetailsKey string `envconfig:"SETTLEMENT_BANK_DETAILS_KEY" required:"true"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SETTLEMENT_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"SETTLEMENT_CRON_LOCK_TTL" default:"4m"`

	NotificationRetentionDays int `envconfig:"SETTLEMENT_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	ReconcileConcurrency      int `envconfig:"SETTLEMENT_CRON_RECONCILE_CONCURRENCY" default:"4"`
	AutoConfirmBatchSize      int `envconfig:"SETTLEMENT_CRON_AUTO_CONFIRM_BATCH" default:"100"`
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

// RateLimitConfig throttles payout requests per caller and per client IP.
type RateLimitConfig struct {
	PayoutWindow      time.Duration `envconfig:"SETTLEMENT_RATE_LIMIT_PAYOUT_WINDOW" default:"1h"`
	PayoutIPLimit     int           `envconfig:"SETTLEMENT_RATE_LIMIT_PAYOUT_IP" default:"30"`
	PayoutCallerLimit int           `envconfig:"SETTLEMENT_RATE_LIMIT_PAYOUT_CALLER" default:"10"`
}
