package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"http_server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Escrow   EscrowConfig   `mapstructure:"escrow"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// RedisConfig backs the idempotency store and booking submission locks.
// With Enabled=false the service falls back to in-memory implementations;
// the orchestration contracts hold either way.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PaymentConfig struct {
	CardGatewayURL    string        `mapstructure:"card_gateway_url"`
	MobileGatewayURL  string        `mapstructure:"mobile_gateway_url"`
	BankGatewayURL    string        `mapstructure:"bank_gateway_url"`
	WalletGatewayURL  string        `mapstructure:"wallet_gateway_url"`
	APIKey            string        `mapstructure:"api_key"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	WorkerPoolSize    int           `mapstructure:"worker_pool_size"`
	JobQueueSize      int           `mapstructure:"job_queue_size"`
	DedupeWindow      time.Duration `mapstructure:"dedupe_window"`
	ThreeDSReturnURL  string        `mapstructure:"threeds_return_url"`
	ResumeTokenSecret string        `mapstructure:"resume_token_secret"`
	ResumeTokenTTL    time.Duration `mapstructure:"resume_token_ttl"`
}

type EscrowConfig struct {
	AutoReleaseHours   int           `mapstructure:"auto_release_hours"`
	DisputePeriodHours int           `mapstructure:"dispute_period_hours"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
}

// FeesConfig holds policy constants as decimal strings so YAML floats never
// leak binary rounding into money math.
type FeesConfig struct {
	PlatformFeePercent string            `mapstructure:"platform_fee_percent"`
	EscrowFlatFee      string            `mapstructure:"escrow_flat_fee"`
	VATRates           map[string]string `mapstructure:"vat_rates"`
}

type WebhookConfig struct {
	BCryptCost int               `mapstructure:"bcrypt_cost"`
	Secrets    map[string]string `mapstructure:"secrets"`
}

type CatalogConfig struct {
	Methods []PaymentMethodConfig `mapstructure:"methods"`
}

// PaymentMethodConfig is the on-disk shape of one catalog entry. Amount and
// fee fields are decimal strings for the same reason as FeesConfig.
type PaymentMethodConfig struct {
	ID                   string   `mapstructure:"id"`
	Type                 string   `mapstructure:"type"`
	Provider             string   `mapstructure:"provider"`
	Name                 string   `mapstructure:"name"`
	Description          string   `mapstructure:"description"`
	ProcessingFeePercent string   `mapstructure:"processing_fee_percent"`
	FixedFee             string   `mapstructure:"fixed_fee"`
	Currency             string   `mapstructure:"currency"`
	ConvertibleWith      []string `mapstructure:"convertible_with"`
	SupportedCountries   []string `mapstructure:"supported_countries"`
	MinAmount            string   `mapstructure:"min_amount"`
	MaxAmount            string   `mapstructure:"max_amount"`
	ProcessingTimeHours  int      `mapstructure:"processing_time_hours"`
	RequiresVerification bool     `mapstructure:"requires_verification"`
	Enabled              bool     `mapstructure:"enabled"`
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Escrow.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("escrow config: %v", err))
	}

	if err := c.Fees.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("fees config: %v", err))
	}

	if err := c.Catalog.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("catalog config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	for name, u := range map[string]string{
		"card_gateway_url":   c.CardGatewayURL,
		"mobile_gateway_url": c.MobileGatewayURL,
		"bank_gateway_url":   c.BankGatewayURL,
		"wallet_gateway_url": c.WalletGatewayURL,
	} {
		if u == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(u); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.ResumeTokenSecret == "" {
		return errors.New("resume_token_secret is required")
	}
	if len(c.ResumeTokenSecret) < 32 {
		return errors.New("resume_token_secret must be at least 32 characters")
	}
	if c.DedupeWindow <= 0 {
		return errors.New("dedupe_window must be positive")
	}
	return nil
}

func (c *PaymentConfig) GatewayURLFor(family string) string {
	switch family {
	case "card":
		return c.CardGatewayURL
	case "mobile_money":
		return c.MobileGatewayURL
	case "bank_transfer":
		return c.BankGatewayURL
	case "digital_wallet":
		return c.WalletGatewayURL
	}
	return ""
}

func (c *EscrowConfig) Validate() error {
	if c.AutoReleaseHours <= 0 {
		return errors.New("auto_release_hours must be positive")
	}
	if c.DisputePeriodHours < 0 {
		return errors.New("dispute_period_hours cannot be negative")
	}
	return nil
}

func (c *FeesConfig) Validate() error {
	if _, err := decimal.NewFromString(c.PlatformFeePercent); err != nil {
		return fmt.Errorf("invalid platform_fee_percent %q: %w", c.PlatformFeePercent, err)
	}
	if _, err := decimal.NewFromString(c.EscrowFlatFee); err != nil {
		return fmt.Errorf("invalid escrow_flat_fee %q: %w", c.EscrowFlatFee, err)
	}
	for country, rate := range c.VATRates {
		if _, err := decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("invalid vat rate for %s: %w", country, err)
		}
	}
	return nil
}

func (c *CatalogConfig) Validate() error {
	if len(c.Methods) == 0 {
		return errors.New("catalog must declare at least one payment method")
	}
	seen := make(map[string]bool, len(c.Methods))
	for i, m := range c.Methods {
		if m.ID == "" {
			return fmt.Errorf("catalog method %d: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("catalog method %s declared twice", m.ID)
		}
		seen[m.ID] = true
		if m.Type == "" || m.Provider == "" {
			return fmt.Errorf("catalog method %s: type and provider are required", m.ID)
		}
		for _, field := range []struct{ name, val string }{
			{"processing_fee_percent", m.ProcessingFeePercent},
			{"fixed_fee", m.FixedFee},
			{"min_amount", m.MinAmount},
			{"max_amount", m.MaxAmount},
		} {
			if field.val == "" {
				continue
			}
			if _, err := decimal.NewFromString(field.val); err != nil {
				return fmt.Errorf("catalog method %s: invalid %s: %w", m.ID, field.name, err)
			}
		}
		if len(m.SupportedCountries) == 0 {
			return fmt.Errorf("catalog method %s: supported_countries is required", m.ID)
		}
	}
	return nil
}
