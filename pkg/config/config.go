// Package config provides configuration loading and validation utilities.
package config

import "time"

// Config holds runtime configuration for the omnichain kiosk.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kiosk     KioskConfig     `mapstructure:"kiosk"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Onramp    OnrampConfig    `mapstructure:"onramp"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Dispense  DispenseConfig  `mapstructure:"dispense"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the slog pipeline.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text console"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// RedisConfig mirrors the connection settings accepted by pkg/redis.
type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// KioskConfig identifies this kiosk and tunes its screen flow.
type KioskConfig struct {
	ID                string        `mapstructure:"id" validate:"required"`
	Language          string        `mapstructure:"language"`
	ReceiptResetAfter time.Duration `mapstructure:"receipt_reset_after" validate:"gt=0"`
	SnapshotTTL       time.Duration `mapstructure:"snapshot_ttl"`
}

// ChainConfig describes one source chain a payer may pay from.
type ChainConfig struct {
	ID           int64  `mapstructure:"id" validate:"required,gt=0"`
	Name         string `mapstructure:"name" validate:"required"`
	RPCURL       string `mapstructure:"rpc_url"`
	TokenAddress string `mapstructure:"token_address" validate:"omitempty,eth_addr"`
}

// PaymentConfig holds the fixed price and bridge settings.
type PaymentConfig struct {
	Price              string        `mapstructure:"price" validate:"required,numeric"`
	TokenSymbol        string        `mapstructure:"token_symbol" validate:"required"`
	DefaultDecimals    uint8         `mapstructure:"default_decimals"`
	BridgeAddress      string        `mapstructure:"bridge_address" validate:"required,eth_addr"`
	DestinationChainID uint32        `mapstructure:"destination_chain_id" validate:"required"`
	NativeFeeWei       string        `mapstructure:"native_fee_wei" validate:"omitempty,numeric"`
	Chains             []ChainConfig `mapstructure:"chains" validate:"required,min=1,dive"`
}

// WalletConfig configures the keystore-backed kiosk wallet.
type WalletConfig struct {
	KeystoreDir     string        `mapstructure:"keystore_dir"`
	Account         string        `mapstructure:"account" validate:"omitempty,eth_addr"`
	Passphrase      string        `mapstructure:"passphrase"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout" validate:"gt=0"`
	ApproveGasLimit uint64        `mapstructure:"approve_gas_limit"`
	SendGasLimit    uint64        `mapstructure:"send_gas_limit"`
}

// OnrampConfig configures the fiat on-ramp token broker.
type OnrampConfig struct {
	ProjectID        string        `mapstructure:"project_id"`
	KeyName          string        `mapstructure:"key_name"`
	PrivateKey       string        `mapstructure:"private_key"`
	TokenURL         string        `mapstructure:"token_url" validate:"required,url"`
	CheckoutURL      string        `mapstructure:"checkout_url" validate:"required,url"`
	Blockchains      []string      `mapstructure:"blockchains"`
	Assets           []string      `mapstructure:"assets"`
	PresetFiatAmount float64       `mapstructure:"preset_fiat_amount"`
	PaymentMethods   []string      `mapstructure:"payment_methods"`
	DefaultAsset     string        `mapstructure:"default_asset"`
	DefaultNetwork   string        `mapstructure:"default_network"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// WebhookConfig configures the generic webhook relay.
type WebhookConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DispenseConfig configures dispensing notifications.
type DispenseConfig struct {
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID int64         `mapstructure:"telegram_chat_id"`
}

// RateLimitRule is a limit over a window, e.g. 10 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures relay rate limits.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Whitelist []string      `mapstructure:"whitelist"`
	PerClient RateLimitRule `mapstructure:"per_client"`
}
