package config

// EnvPrefix is passed to envconfig; individual fields carry explicit
// envconfig tags so the prefix mainly guards against accidental pickup of
// unrelated variables.
const EnvPrefix = "PASALMART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "PASALMART_APP_ENV"
	EnvPort     = "PASALMART_APP_PORT"
	EnvDBDSN    = "PASALMART_DB_DSN"
	EnvDBHost   = "PASALMART_DB_HOST"
	EnvDBUser   = "PASALMART_DB_USER"
	EnvDBName   = "PASALMART_DB_NAME"
	EnvRedisURL = "PASALMART_REDIS_URL"

	EnvGCPProjectID      = "PASALMART_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "PASALMART_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "PASALMART_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubNotifTopic  = "PASALMART_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotifSub    = "PASALMART_PUBSUB_NOTIFICATION_SUBSCRIPTION"

	EnvEsewaSecret    = "PASALMART_ESEWA_SECRET_KEY"
	EnvKhaltiKey      = "PASALMART_KHALTI_SECRET_KEY"
	EnvStripeKey      = "PASALMART_STRIPE_SECRET_KEY"
	EnvPayPalClientID = "PASALMART_PAYPAL_CLIENT_ID"
	EnvPayPalSecret   = "PASALMART_PAYPAL_CLIENT_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
