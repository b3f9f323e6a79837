package config

const EnvPrefix = "SETTLEMENT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "SETTLEMENT_APP_ENV"
	EnvPort     = "SETTLEMENT_APP_PORT"
	EnvLogLevel = "SETTLEMENT_LOG_LEVEL"

	EnvDBDSN  = "SETTLEMENT_DB_DSN"
	EnvDBHost = "SETTLEMENT_DB_HOST"
	EnvDBUser = "SETTLEMENT_DB_USER"
	EnvDBName = "SETTLEMENT_DB_NAME"

	EnvRedisURL = "SETTLEMENT_REDIS_URL"

	EnvJWTSecret = "SETTLEMENT_JWT_SECRET"
	EnvJWTIssuer = "SETTLEMENT_JWT_ISSUER"

	EnvEventingTransport = "SETTLEMENT_EVENTING_TRANSPORT"
	EnvGCPProjectID      = "SETTLEMENT_GCP_PROJECT_ID"

	EnvPubSubNotificationSub = "SETTLEMENT_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub    = "SETTLEMENT_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvKafkaBrokers          = "SETTLEMENT_KAFKA_BROKERS"

	EnvPayoutMin = "SETTLEMENT_PAYOUT_MIN"
	EnvPayoutMax = "SETTLEMENT_PAYOUT_MAX"

	EnvBankDetailsKey = "SETTLEMENT_BANK_DETAILS_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
