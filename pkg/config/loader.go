package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envAliases binds config keys to the variable names used by existing kiosk deployments.
var envAliases = map[string]string{
	"onramp.project_id":  "CDP_PROJECT_ID",
	"onramp.key_name":    "CDP_API_KEY_NAME",
	"onramp.private_key": "CDP_API_PRIVATE_KEY",
	"webhook.url":        "DISPENSER_WEBHOOK_URL",
	"payment.price":      "DEFAULT_PRICE_USDC",
	"wallet.passphrase":  "KIOSK_WALLET_PASSPHRASE",
	"sentry.dsn":         "SENTRY_DSN",
}

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.AppEnv = env

	return cfg, v, nil
}

// Watch re-decodes the configuration whenever the backing file changes and hands valid results to onChange.
func Watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	if v == nil || onChange == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", slog.String("file", e.Name), slog.String("op", e.Op.String()))

		cfg, err := decode(v)
		if err != nil {
			log.Error("ignoring invalid config reload", slog.Any("error", err))
			return
		}
		cfg.AppEnv = v.GetString("app_env")

		onChange(cfg)
	})
	v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct-level constraints on cfg.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.min_retry_backoff", 8*time.Millisecond)
	v.SetDefault("redis.max_retry_backoff", 512*time.Millisecond)

	v.SetDefault("kiosk.id", "kiosk-1")
	v.SetDefault("kiosk.language", "en")
	v.SetDefault("kiosk.receipt_reset_after", 15*time.Second)
	v.SetDefault("kiosk.snapshot_ttl", time.Hour)

	v.SetDefault("payment.price", "0.75")
	v.SetDefault("payment.token_symbol", "USDC")
	v.SetDefault("payment.default_decimals", 6)
	v.SetDefault("payment.bridge_address", "0x0000000000000000000000000000000000000000")
	v.SetDefault("payment.destination_chain_id", 84532)
	v.SetDefault("payment.native_fee_wei", "0")

	v.SetDefault("wallet.keystore_dir", "./keystore")
	v.SetDefault("wallet.account", "")
	v.SetDefault("wallet.passphrase", "")
	v.SetDefault("wallet.poll_interval", 2*time.Second)
	v.SetDefault("wallet.receipt_timeout", 3*time.Minute)
	v.SetDefault("wallet.approve_gas_limit", 80000)
	v.SetDefault("wallet.send_gas_limit", 400000)

	v.SetDefault("onramp.project_id", "")
	v.SetDefault("onramp.key_name", "")
	v.SetDefault("onramp.private_key", "")
	v.SetDefault("onramp.token_url", "https://api.developer.coinbase.com/onramp/v1/token")
	v.SetDefault("onramp.checkout_url", "https://pay.coinbase.com/buy/select-asset")
	v.SetDefault("onramp.blockchains", []string{"ethereum", "base"})
	v.SetDefault("onramp.assets", []string{"USDC"})
	v.SetDefault("onramp.preset_fiat_amount", 1)
	v.SetDefault("onramp.payment_methods", []string{"apple_pay", "debit_card"})
	v.SetDefault("onramp.default_asset", "USDC")
	v.SetDefault("onramp.default_network", "base")
	v.SetDefault("onramp.timeout", 10*time.Second)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 10*time.Second)

	v.SetDefault("dispense.idempotency_ttl", 24*time.Hour)
	v.SetDefault("dispense.telegram_token", "")
	v.SetDefault("dispense.telegram_chat_id", 0)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_client.limit", 20)
	v.SetDefault("rate_limit.per_client.window", "1m")
}
