// Package config defines the configuration of the PromiseLand marketplace
// service and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PROMISELAND_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Market   MarketConfig   `toml:"market"`
	Deployer DeployerConfig `toml:"deployer"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig names the network the market is deployed to. ChainID 0 means
// "look up Network in KnownNetworks".
type ChainConfig struct {
	Network string `toml:"network"`
	ChainID int64  `toml:"chain_id"`
}

// KnownNetworks maps network names to chain ids.
var KnownNetworks = map[string]int64{
	"hardhat":  1337,
	"goerli":   5,
	"mumbai":   80001,
	"matic":    137,
	"optimism": 10,
}

// ResolvedChainID returns ChainID, falling back to the id of Network.
func (c ChainConfig) ResolvedChainID() int64 {
	if c.ChainID != 0 {
		return c.ChainID
	}
	return KnownNetworks[strings.ToLower(c.Network)]
}

// MarketConfig holds the fee settings written at deployment. Amounts accept
// wei ("1000") or a unit suffix ("0.01ether", "5gwei").
type MarketConfig struct {
	ListingFee       string `toml:"listing_fee"`
	LikingPrice      string `toml:"liking_price"`
	CommissionBps    int    `toml:"commission_bps"`
	LikeFeeRecipient string `toml:"like_fee_recipient"`
	ArtifactPath     string `toml:"artifact_path"`
}

// ListingFeeWei parses ListingFee.
func (m MarketConfig) ListingFeeWei() (*big.Int, error) {
	return domain.ParseAmount(m.ListingFee)
}

// LikingPriceWei parses LikingPrice.
func (m MarketConfig) LikingPriceWei() (*big.Int, error) {
	return domain.ParseAmount(m.LikingPrice)
}

// DeployerConfig holds the market owner's key.
type DeployerConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `toml:"backend"` // memory | postgres
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Without Redis the service
// runs with in-process rate limiting and replay protection, no item cache
// and no event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Prefix     string `toml:"prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArtifactKey     string   `toml:"artifact_key"`
	ArchiveInterval duration `toml:"archive_interval"` // 0 disables event archiving
}

// duration wraps time.Duration so TOML strings like "5m" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"` // requests per minute per client; 0 disables
	SignatureMaxAge duration `toml:"signature_max_age"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	WebhookURL        string   `toml:"webhook_url"`
	WebhookSecret     string   `toml:"webhook_secret"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config for a local hardhat-style development network.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{Network: "hardhat", ChainID: 1337},
		Market: MarketConfig{
			ListingFee:       "0",
			LikingPrice:      "0.001ether",
			CommissionBps:    0,
			LikeFeeRecipient: string(domain.LikeFeeToMarketOwner),
			ArtifactPath:     "./abi/PromiseLand.json",
		},
		Storage: StorageConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "promiseland",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:      "us-east-1",
			ArtifactKey: "abi/PromiseLand.json",
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			SignatureMaxAge: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{string(domain.EventItemSold), string(domain.EventWithdrawal)},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"deploy": true,
	"serve":  true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsDeployer reports whether the mode deploys the market.
func (c *Config) NeedsDeployer() bool {
	m := strings.ToLower(c.Mode)
	return m == "deploy" || m == "full"
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: deploy, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.ResolvedChainID() <= 0 {
		errs = append(errs, fmt.Sprintf("chain: unknown network %q and no chain_id", c.Chain.Network))
	}

	if _, err := c.Market.ListingFeeWei(); err != nil {
		errs = append(errs, "market: listing_fee: "+err.Error())
	}
	if _, err := c.Market.LikingPriceWei(); err != nil {
		errs = append(errs, "market: liking_price: "+err.Error())
	}
	if c.Market.CommissionBps < 0 || c.Market.CommissionBps > domain.MaxCommissionBps {
		errs = append(errs, fmt.Sprintf("market: commission_bps must be 0-%d, got %d", domain.MaxCommissionBps, c.Market.CommissionBps))
	}
	if !domain.LikeFeeRecipient(c.Market.LikeFeeRecipient).Valid() {
		errs = append(errs, fmt.Sprintf("market: like_fee_recipient must be %q or %q, got %q",
			domain.LikeFeeToMarketOwner, domain.LikeFeeToCreator, c.Market.LikeFeeRecipient))
	}
	if c.NeedsDeployer() && c.Market.ArtifactPath == "" {
		errs = append(errs, "market: artifact_path must not be empty")
	}

	if c.NeedsDeployer() && c.Deployer.PrivateKey == "" && c.Deployer.EncryptedKeyPath == "" {
		errs = append(errs, "deployer: either private_key or encrypted_key_path must be set for mode "+c.Mode)
	}
	if c.Deployer.EncryptedKeyPath != "" && c.Deployer.KeyPassword == "" {
		errs = append(errs, "deployer: key_password is required when encrypted_key_path is set")
	}

	switch c.Storage.Backend {
	case "memory":
		if strings.ToLower(c.Mode) == "serve" {
			errs = append(errs, "storage: the memory backend does not keep a deployment between runs; use mode full or the postgres backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, postgres)", c.Storage.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveInterval.Duration < 0 {
			errs = append(errs, "s3: archive_interval must not be negative")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.SignatureMaxAge.Duration <= 0 {
			errs = append(errs, "server: signature_max_age must be > 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
