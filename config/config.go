package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Security  SecurityConfig  `mapstructure:"security"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	InFlightTTL time.Duration `mapstructure:"inflight_ttl"`
	ReplayTTL   time.Duration `mapstructure:"replay_ttl"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type SecurityConfig struct {
	CredentialPepper string        `mapstructure:"credential_pepper"` // HMAC key for API key and card fingerprints
	CardSealKey      string        `mapstructure:"card_seal_key"`     // 32-byte hex-encoded AES-256 key
	SessionSecret    string        `mapstructure:"session_secret"`    // shared secret of the identity provider
	SessionIssuer    string        `mapstructure:"session_issuer"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
}

// LimitsConfig is the single home of every monetary threshold.
type LimitsConfig struct {
	MinimumFloor       decimal.Decimal `mapstructure:"minimum_floor"`
	TransferCeiling    decimal.Decimal `mapstructure:"transfer_ceiling"`
	MerchantCeiling    decimal.Decimal `mapstructure:"merchant_ceiling"`
	CardCeiling        decimal.Decimal `mapstructure:"card_ceiling"`
	DailyTransferLimit decimal.Decimal `mapstructure:"daily_transfer_limit"`
}

type WebhookConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	SigningSecret string        `mapstructure:"signing_secret"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"` // empty disables event publishing
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from a .env file, a config file and environment variables.
// Environment variables override file values. Prefix: WG_ (Wallet Gateway).
// Nested keys use underscore: WG_DATABASE_HOST, WG_LIMITS_MINIMUM_FLOOR, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("WG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decimalHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.migrate_on_start", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.inflight_ttl", "30s")
	v.SetDefault("redis.replay_ttl", "24h")
	v.SetDefault("security.credential_pepper", "")
	v.SetDefault("security.card_seal_key", "")
	v.SetDefault("security.session_secret", "")
	v.SetDefault("security.session_issuer", "wallet-identity")
	v.SetDefault("security.session_ttl", "1h")
	v.SetDefault("limits.minimum_floor", "1.00")
	v.SetDefault("limits.transfer_ceiling", "10000.00")
	v.SetDefault("limits.merchant_ceiling", "10000.00")
	v.SetDefault("limits.card_ceiling", "10000.00")
	v.SetDefault("limits.daily_transfer_limit", "50000.00")
	v.SetDefault("webhook.timeout", "5s")
	v.SetDefault("webhook.user_agent", "WalletGateway-Webhook/1.0")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 60)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "wallet")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects configurations the service cannot run safely with.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Password == "" {
		errs = append(errs, errors.New("database.password is required"))
	}
	if len(c.Security.CredentialPepper) < 32 {
		errs = append(errs, errors.New("security.credential_pepper must be at least 32 characters"))
	}
	if len(c.Security.CardSealKey) != 64 {
		errs = append(errs, errors.New("security.card_seal_key must be 64 hex characters"))
	}
	if len(c.Security.SessionSecret) < 32 {
		errs = append(errs, errors.New("security.session_secret must be at least 32 characters"))
	}
	if c.Limits.MinimumFloor.IsNegative() {
		errs = append(errs, errors.New("limits.minimum_floor must not be negative"))
	}
	for name, d := range map[string]decimal.Decimal{
		"limits.transfer_ceiling":     c.Limits.TransferCeiling,
		"limits.merchant_ceiling":     c.Limits.MerchantCeiling,
		"limits.card_ceiling":         c.Limits.CardCeiling,
		"limits.daily_transfer_limit": c.Limits.DailyTransferLimit,
	} {
		if !d.IsPositive() {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("webhook.timeout must be positive"))
	}

	return errors.Join(errs...)
}
