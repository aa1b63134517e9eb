package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/fibpay/pkg/config"
)

// Credentials is a client id/secret pair for one FIB auth account.
type Credentials struct {
	ClientID string
	Secret   string
}

// Config holds all configuration for the fibpay service. It is loaded once
// and passed explicitly into constructors; nothing reads it globally.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"FIBPAY_HTTP_PORT" envDefault:"8010"`

	// FIB gateway
	FIBBaseURL       string        `env:"FIB_BASE_URL" envDefault:"https://api.fibpayment.com"`
	FIBGrantType     string        `env:"FIB_GRANT_TYPE" envDefault:"client_credentials"`
	FIBCurrency      string        `env:"FIB_CURRENCY" envDefault:"IQD"`
	FIBRefundableFor string        `env:"FIB_REFUNDABLE_FOR" envDefault:"P7D"`
	FIBCallbackURL   string        `env:"FIB_CALLBACK_URL"`
	FIBTimeout       time.Duration `env:"FIB_TIMEOUT" envDefault:"30s"`
	FIBRetryAttempts int           `env:"FIB_RETRY_ATTEMPTS" envDefault:"3"`
	FIBRetryWait     time.Duration `env:"FIB_RETRY_WAIT" envDefault:"100ms"`
	FIBRateLimit     float64       `env:"FIB_RATE_LIMIT_RPS" envDefault:"20"`

	// Disables TLS certificate verification towards the gateway. The FIB
	// sandbox historically required this; keep it off in production.
	FIBSkipTLSVerify bool `env:"FIB_SKIP_TLS_VERIFY" envDefault:"false"`

	// Auth accounts. The default account's credentials come from
	// FIB_CLIENT_ID/FIB_CLIENT_SECRET; additional named accounts can be
	// supplied as FIB_AUTH_ACCOUNTS="name=client_id:secret,other=id:secret".
	FIBDefaultAccount string            `env:"FIB_DEFAULT_ACCOUNT" envDefault:"default"`
	FIBClientID       string            `env:"FIB_CLIENT_ID"`
	FIBClientSecret   string            `env:"FIB_CLIENT_SECRET"`
	FIBAuthAccounts   map[string]string `env:"FIB_AUTH_ACCOUNTS" envSeparator:"," envKeyValSeparator:"="`

	// Webhook callback verification
	WebhookSecret       string `env:"FIBPAY_WEBHOOK_SECRET"`
	WebhookRateLimitRPS int    `env:"FIBPAY_WEBHOOK_RATE_LIMIT_RPS" envDefault:"10"`

	// Reconciliation sweep
	ReconcileInterval time.Duration `env:"FIBPAY_RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileMinAge   time.Duration `env:"FIBPAY_RECONCILE_MIN_AGE" envDefault:"5m"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"fibpay"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"fibpay_secret"`
	PostgresDB   string `env:"FIBPAY_DB_NAME" envDefault:"fibpay_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis (callback replay guard)
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load fibpay config: %w", err)
	}
	return cfg, nil
}

// LoginURL returns the FIB token endpoint.
func (c *Config) LoginURL() string {
	return c.FIBBaseURL + "/auth/realms/fib-online-shop/protocol/openid-connect/token"
}

// PaymentsBaseURL returns the protected payments API root.
func (c *Config) PaymentsBaseURL() string {
	return c.FIBBaseURL + "/protected/v1"
}

// Account resolves the credentials for the given auth account name. An empty
// name selects the configured default account.
func (c *Config) Account(name string) (Credentials, error) {
	if name == "" {
		name = c.FIBDefaultAccount
	}

	if name == c.FIBDefaultAccount || name == "default" {
		if c.FIBClientID == "" {
			return Credentials{}, fmt.Errorf("auth account %q has no client id configured", name)
		}
		return Credentials{ClientID: c.FIBClientID, Secret: c.FIBClientSecret}, nil
	}

	raw, ok := c.FIBAuthAccounts[name]
	if !ok {
		return Credentials{}, fmt.Errorf("unknown auth account %q", name)
	}
	id, secret, found := strings.Cut(raw, ":")
	if !found || id == "" {
		return Credentials{}, fmt.Errorf("auth account %q is malformed, want client_id:secret", name)
	}
	return Credentials{ClientID: id, Secret: secret}, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
