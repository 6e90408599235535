// Package config internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// Config represents the complete engine and sandbox configuration
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	LogLevel  string          `yaml:"log_level"`
}

// LedgerConfig contains the remote ledger connection parameters
type LedgerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"token"`

	// DeviceToken is posted to /save-token after every sign-in when set
	DeviceToken string `yaml:"device_token"`
}

// PortfolioConfig contains valuation and validation parameters
type PortfolioConfig struct {
	BaseCurrency      string             `yaml:"base_currency"`
	FallbackRate      float64            `yaml:"fallback_rate"`
	DefaultRates      map[string]float64 `yaml:"default_rates"`
	DefaultBaseAmount float64            `yaml:"default_base_amount"`
	MinDeposit        float64            `yaml:"min_deposit"`
	ArchiveWindowDays int                `yaml:"archive_window_days"`
	SeriesWindow      int                `yaml:"series_window"`
	// SnapshotMaxAge is how long synchronised data is served before a read resyncs
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age"`
}

// SandboxConfig contains the local ledger server parameters
type SandboxConfig struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
	// Secret signs and verifies HS256 bearer tokens. When empty the server
	// reads the user from unverified token claims.
	Secret string `yaml:"secret"`
	// Tokens restricts the accepted bearer tokens; empty accepts any.
	Tokens []string `yaml:"tokens"`
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Portfolio: PortfolioConfig{
			BaseCurrency: "PLN",
			FallbackRate: 4.0,
			DefaultRates: map[string]float64{
				"USD": 4.0,
				"EUR": 4.3,
				"GBP": 5.0,
				"CHF": 4.5,
			},
			DefaultBaseAmount: 10000,
			MinDeposit:        1000,
			ArchiveWindowDays: 30,
			SeriesWindow:      14,
			SnapshotMaxAge:    15 * time.Minute,
		},
		Sandbox: SandboxConfig{
			Addr:    ":8080",
			DataDir: "./data",
		},
		LogLevel: "INFO",
	}
}

// Load reads an optional YAML file, then applies KANTOR_* environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() error {
	c.Ledger.BaseURL = getEnv("KANTOR_BACKEND_URL", c.Ledger.BaseURL)
	c.Ledger.Token = getEnv("KANTOR_TOKEN", c.Ledger.Token)
	c.Ledger.DeviceToken = getEnv("KANTOR_DEVICE_TOKEN", c.Ledger.DeviceToken)
	c.Portfolio.BaseCurrency = getEnv("KANTOR_BASE_CURRENCY", c.Portfolio.BaseCurrency)
	c.Sandbox.Addr = getEnv("KANTOR_SANDBOX_ADDR", c.Sandbox.Addr)
	c.Sandbox.DataDir = getEnv("KANTOR_SANDBOX_DATA_DIR", c.Sandbox.DataDir)
	c.Sandbox.Secret = getEnv("KANTOR_SANDBOX_SECRET", c.Sandbox.Secret)
	c.LogLevel = getEnv("KANTOR_LOG_LEVEL", c.LogLevel)

	if v := os.Getenv("KANTOR_SANDBOX_TOKENS"); v != "" {
		c.Sandbox.Tokens = strings.Split(v, ",")
	}

	durations := map[string]*time.Duration{
		"KANTOR_TIMEOUT":          &c.Ledger.Timeout,
		"KANTOR_SNAPSHOT_MAX_AGE": &c.Portfolio.SnapshotMaxAge,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	floats := map[string]*float64{
		"KANTOR_FALLBACK_RATE":       &c.Portfolio.FallbackRate,
		"KANTOR_MIN_DEPOSIT":         &c.Portfolio.MinDeposit,
		"KANTOR_DEFAULT_BASE_AMOUNT": &c.Portfolio.DefaultBaseAmount,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"KANTOR_ARCHIVE_WINDOW_DAYS": &c.Portfolio.ArchiveWindowDays,
		"KANTOR_SERIES_WINDOW":       &c.Portfolio.SeriesWindow,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := entity.ParseCurrency(c.Portfolio.BaseCurrency); err != nil {
		return fmt.Errorf("portfolio.base_currency: %w", err)
	}
	if c.Portfolio.FallbackRate <= 0 {
		return fmt.Errorf("portfolio.fallback_rate must be positive")
	}
	if c.Portfolio.MinDeposit < 0 {
		return fmt.Errorf("portfolio.min_deposit must not be negative")
	}
	if c.Portfolio.ArchiveWindowDays <= 0 || c.Portfolio.SeriesWindow <= 0 {
		return fmt.Errorf("portfolio windows must be positive")
	}
	if c.Portfolio.SnapshotMaxAge <= 0 {
		return fmt.Errorf("portfolio.snapshot_max_age must be positive")
	}
	for code, rate := range c.Portfolio.DefaultRates {
		if _, err := entity.ParseCurrency(code); err != nil {
			return fmt.Errorf("portfolio.default_rates: %w", err)
		}
		if rate <= 0 {
			return fmt.Errorf("portfolio.default_rates[%s] must be positive", code)
		}
	}
	return nil
}

// Base returns the configured base currency
func (c PortfolioConfig) Base() entity.Currency {
	cur, err := entity.ParseCurrency(c.BaseCurrency)
	if err != nil {
		return entity.DefaultBaseCurrency
	}
	return cur
}

// DefaultRateTable returns the placeholder table used in degraded mode
func (c PortfolioConfig) DefaultRateTable() entity.RateTable {
	rates := make(map[entity.Currency]decimal.Decimal, len(c.DefaultRates))
	for code, r := range c.DefaultRates {
		cur, err := entity.ParseCurrency(code)
		if err != nil {
			continue
		}
		rates[cur] = decimal.NewFromFloat(r)
	}
	return entity.NewRateTable(time.Time{}, rates)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
