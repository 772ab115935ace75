// Package config loads engine settings with viper, with an optional
// watch that hot-reloads the file on change.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type MySQLConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime_seconds"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ChainConfig struct {
	ChainID            int64  `mapstructure:"chain_id"`
	RPCURL             string `mapstructure:"rpc_url"`
	WSURL              string `mapstructure:"ws_url"`
	USDTContractAddress string `mapstructure:"usdt_contract_address"`
}

// Config is every knob named in the engine specification, bound into one
// struct so it can be unmarshalled by viper in a single call.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	LogLevel    string `mapstructure:"log_level"`

	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
	Chain ChainConfig `mapstructure:"chain"`

	RequiredConfirmations    int           `mapstructure:"required_confirmations"`
	ReorgDepth               int64         `mapstructure:"reorg_depth"`
	PollInterval             time.Duration `mapstructure:"poll_interval_ms"`
	WebhookRetryScheduleSecs []int         `mapstructure:"webhook_retry_schedule"`
	WebhookTimeout           time.Duration `mapstructure:"webhook_timeout_ms"`
	MaxConcurrentDeliveries  int           `mapstructure:"max_concurrent_deliveries"`
	PerMerchantConcurrency   int           `mapstructure:"per_merchant_concurrency"`

	CollectionThresholdETH    string `mapstructure:"collection_threshold"`
	CollectionIntervalMinutes int    `mapstructure:"collection_interval_minutes"`
	AutoCollectionEnabled     bool   `mapstructure:"auto_collection_enabled"`

	HDSeed                   string `mapstructure:"hd_seed"`
	PrivateKeyEncryptionKey   string `mapstructure:"private_key_encryption_key"`

	PaymentExpiry time.Duration `mapstructure:"payment_expiry_ms"`
}

// RetryDelays returns the dispatcher backoff schedule as durations,
// defaulting to the schedule the engine ships with when unset.
func (c Config) RetryDelays() []time.Duration {
	secs := c.WebhookRetryScheduleSecs
	if len(secs) == 0 {
		secs = []int{5, 15, 45, 135, 405}
	}
	delays := make([]time.Duration, len(secs))
	for i, s := range secs {
		delays[i] = time.Duration(s) * time.Second
	}
	return delays
}

// WebhookDeliveryTimeout returns the per-attempt HTTP client deadline,
// defaulting to 10s when unset.
func (c Config) WebhookDeliveryTimeout() time.Duration {
	if c.WebhookTimeout <= 0 {
		return 10 * time.Second
	}
	return c.WebhookTimeout
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("WOPAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.scaleMillis()
	return &cfg, nil
}

// scaleMillis turns the *_ms settings, which viper decodes into
// time.Duration as a bare count of nanoseconds, into milliseconds.
func (c *Config) scaleMillis() {
	c.PollInterval *= time.Millisecond
	c.WebhookTimeout *= time.Millisecond
	c.PaymentExpiry *= time.Millisecond
}

// LoadAndWatch loads the config and hot-reloads out in place on file
// change.
func LoadAndWatch(path string, out *Config) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("WOPAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}
	out.scaleMillis()

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var reloaded Config
		if err := v.Unmarshal(&reloaded); err != nil {
			return
		}
		reloaded.scaleMillis()
		*out = reloaded
	})

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("required_confirmations", 12)
	v.SetDefault("reorg_depth", 1)
	v.SetDefault("poll_interval_ms", 3000)
	v.SetDefault("webhook_retry_schedule", []int{5, 15, 45, 135, 405})
	v.SetDefault("webhook_timeout_ms", 10000)
	v.SetDefault("max_concurrent_deliveries", 32)
	v.SetDefault("per_merchant_concurrency", 4)
	v.SetDefault("collection_threshold", "0.1")
	v.SetDefault("collection_interval_minutes", 60)
	v.SetDefault("auto_collection_enabled", true)
	v.SetDefault("payment_expiry_ms", int64(time.Hour/time.Millisecond))
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "wopay-engine")
}
