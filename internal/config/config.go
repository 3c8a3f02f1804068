package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Log         LogConfig          `mapstructure:"log"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Redis       RedisConfig        `mapstructure:"redis"`
	RateLimit   RateLimitConfig    `mapstructure:"rate_limit"`
	Auth        AuthConfig         `mapstructure:"auth"`
	Order       OrderConfig        `mapstructure:"order"`
	Queues      QueueConfig        `mapstructure:"queues"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Credentials []CredentialConfig `mapstructure:"credentials"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig drives the gateway-wide token bucket. Refill is expressed
// in tokens per second; per-credential limits live on the credential.
type RateLimitConfig struct {
	Capacity        int64   `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
	CredentialQPS   float64 `mapstructure:"credential_qps"`
	CredentialBurst int     `mapstructure:"credential_burst"`
}

type AuthConfig struct {
	NonceTTLSeconds      int `mapstructure:"nonce_ttl_seconds"`
	TimestampSkewSeconds int `mapstructure:"timestamp_skew_seconds"`
}

type OrderConfig struct {
	ReservationMinutes int `mapstructure:"reservation_minutes"`
}

type QueueConfig struct {
	Compensation   string `mapstructure:"compensation"`
	OrderExpire    string `mapstructure:"order_expire"`
	PaymentSuccess string `mapstructure:"payment_success"`
	Group          string `mapstructure:"group"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CredentialConfig seeds static credentials for single-node deployments
// without an identity database.
type CredentialConfig struct {
	UserID    int64   `mapstructure:"user_id"`
	AccessKey string  `mapstructure:"access_key"`
	SecretKey string  `mapstructure:"secret_key"`
	QPS       float64 `mapstructure:"qps"`
	Burst     int     `mapstructure:"burst"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. HEARTGATE_REDIS_ADDR
	viper.SetEnvPrefix("heartgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8090")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("rate_limit.capacity", 100)
	viper.SetDefault("rate_limit.refill_per_second", 100)
	viper.SetDefault("rate_limit.credential_qps", 10)
	viper.SetDefault("rate_limit.credential_burst", 20)
	viper.SetDefault("auth.nonce_ttl_seconds", 300)
	viper.SetDefault("auth.timestamp_skew_seconds", 300)
	viper.SetDefault("order.reservation_minutes", 30)
	viper.SetDefault("queues.compensation", "queue_interface_consistent")
	viper.SetDefault("queues.order_expire", "queue_order_expire")
	viper.SetDefault("queues.payment_success", "order.pay.success.queue")
	viper.SetDefault("queues.group", "heartgate")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
