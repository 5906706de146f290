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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Checkout      CheckoutConfig
	Esewa         EsewaConfig
	Khalti        KhaltiConfig
	Stripe        StripeConfig
	PayPal        PayPalConfig
	Suppliers     SuppliersConfig
	Notifications NotificationsConfig
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
	Env          string `envconfig:"PASALMART_APP_ENV" required:"true"`
	Port         string `envconfig:"PASALMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PASALMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PASALMART_LOG_WARN_STACK" default:"false"`
	BaseURL      string `envconfig:"PASALMART_BASE_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PASALMART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PASALMART_DB_DSN"`
	Driver string `envconfig:"PASALMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PASALMART_DB_HOST"`
	LegacyPort     int    `envconfig:"PASALMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PASALMART_DB_USER"`
	LegacyPassword string `envconfig:"PASALMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"PASALMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"PASALMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PASALMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PASALMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PASALMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PASALMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PASALMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PASALMART_REDIS_ADDR"`
	Password     string        `envconfig:"PASALMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"PASALMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PASALMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PASALMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PASALMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PASALMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PASALMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PASALMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PASALMART_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PASALMART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PASALMART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"PASALMART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PASALMART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"PASALMART_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription       string `envconfig:"PASALMART_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"PASALMART_PUBSUB_NOTIFICATION_TOPIC" default:"pm-notification-events"`
	NotificationSubscription string `envconfig:"PASALMART_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PASALMART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PASALMART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PASALMART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CheckoutConfig struct {
	AbandonedAfter  time.Duration `envconfig:"PASALMART_CHECKOUT_ABANDONED_AFTER" default:"24h"`
	CartTTL         time.Duration `envconfig:"PASALMART_CHECKOUT_CART_TTL" default:"720h"`
	DefaultShipDays int           `envconfig:"PASALMART_CHECKOUT_DEFAULT_SHIP_DAYS" default:"7"`
}

// EsewaConfig drives the hosted-redirect eSewa flow. Amounts are charged in
// NPR; ConversionRate converts the store currency at a fixed rate.
type EsewaConfig struct {
	ProductCode             string  `envconfig:"PASALMART_ESEWA_PRODUCT_CODE" default:"EPAYTEST"`
	SecretKey               string  `envconfig:"PASALMART_ESEWA_SECRET_KEY"`
	FormURL                 string  `envconfig:"PASALMART_ESEWA_FORM_URL" default:"https://rc-epay.esewa.com.np/api/epay/main/v2/form"`
	StatusURL               string  `envconfig:"PASALMART_ESEWA_STATUS_URL" default:"https://rc.esewa.com.np/api/epay/transaction/status/"`
	VerifyURL               string  `envconfig:"PASALMART_ESEWA_VERIFY_URL" default:"https://uat.esewa.com.np/epay/transrec"`
	MerchantCode            string  `envconfig:"PASALMART_ESEWA_MERCHANT_CODE" default:"EPAYTEST"`
	ConversionRate          float64 `envconfig:"PASALMART_ESEWA_CONVERSION_RATE" default:"133.5"`
	SuccessURL              string  `envconfig:"PASALMART_ESEWA_SUCCESS_URL"`
	FailureURL              string  `envconfig:"PASALMART_ESEWA_FAILURE_URL"`
	AllowUnverifiedWebhooks bool    `envconfig:"PASALMART_ESEWA_ALLOW_UNVERIFIED_WEBHOOKS" default:"false"`
}

type KhaltiConfig struct {
	SecretKey   string `envconfig:"PASALMART_KHALTI_SECRET_KEY"`
	BaseURL     string `envconfig:"PASALMART_KHALTI_BASE_URL" default:"https://a.khalti.com/api/v2"`
	ReturnURL   string `envconfig:"PASALMART_KHALTI_RETURN_URL"`
	WebsiteURL  string `envconfig:"PASALMART_KHALTI_WEBSITE_URL"`
	MerchantTag string `envconfig:"PASALMART_KHALTI_MERCHANT_TAG" default:"pasalmart"`
}

type StripeConfig struct {
	SecretKey     string `envconfig:"PASALMART_STRIPE_SECRET_KEY"`
	WebhookSecret string `envconfig:"PASALMART_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"PASALMART_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PayPalConfig struct {
	ClientID     string `envconfig:"PASALMART_PAYPAL_CLIENT_ID"`
	ClientSecret string `envconfig:"PASALMART_PAYPAL_CLIENT_SECRET"`
	BaseURL      string `envconfig:"PASALMART_PAYPAL_BASE_URL" default:"https://api-m.sandbox.paypal.com"`
	WebhookID    string `envconfig:"PASALMART_PAYPAL_WEBHOOK_ID"`
	Currency     string `envconfig:"PASALMART_PAYPAL_CURRENCY" default:"USD"`
}

type SuppliersConfig struct {
	RequestTimeout time.Duration `envconfig:"PASALMART_SUPPLIER_REQUEST_TIMEOUT" default:"15s"`
	StatusSyncMax  int           `envconfig:"PASALMART_SUPPLIER_STATUS_SYNC_MAX" default:"200"`
}

type NotificationsConfig struct {
	FromEmail string `envconfig:"PASALMART_NOTIFICATIONS_FROM_EMAIL" default:"orders@pasalmart.example"`
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
