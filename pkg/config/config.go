package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full bot configuration, loaded from YAML with secrets
// overridable from the environment (.env supported via godotenv).
type Config struct {
	Polymarket PolymarketConfig `yaml:"polymarket"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Status     StatusConfig     `yaml:"status"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Secrets    SecretsConfig    `yaml:"secrets"`
}

type PolymarketConfig struct {
	GammaAPIURL   string `yaml:"gamma_api_url"`
	ClobAPIURL    string `yaml:"clob_api_url"`
	WSURL         string `yaml:"ws_url"`
	ChainID       int64  `yaml:"chain_id"`
	PrivateKey    string `yaml:"private_key"`
	FunderAddress string `yaml:"funder_address"`
	SignatureType int    `yaml:"signature_type"` // 0=EOA, 1=proxy, 2=gnosis safe
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`
}

// StrategyConfig drives the arbitrage engine. Prices are decimals (0.99),
// converted to pips at the domain boundary.
type StrategyConfig struct {
	Symbols []string `yaml:"symbols"`

	// SumThreshold: both legs' asks must sum strictly below this to enter.
	SumThreshold float64 `yaml:"sum_threshold"`
	// Shares per leg.
	Shares float64 `yaml:"shares"`

	VerifyFillSecs int  `yaml:"verify_fill_secs"`
	SimulationMode bool `yaml:"simulation_mode"`

	PriceToBeatDelaySecs        int     `yaml:"price_to_beat_delay_secs"`
	PriceToBeatPollIntervalSecs int     `yaml:"price_to_beat_poll_interval_secs"`
	PriceToBeatTolerance        float64 `yaml:"price_to_beat_tolerance"`

	// TradeIntervalSecs: cooldown after an accepted trade before the next
	// entry on the same pair.
	TradeIntervalSecs int `yaml:"trade_interval_secs"`

	SubmitMaxAttempts  int `yaml:"submit_max_attempts"`
	ExitMaxAttempts    int `yaml:"exit_max_attempts"`
	ExitCrossStepCents int `yaml:"exit_cross_step_cents"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type SecretsConfig struct {
	// Path of the badger credential store; empty disables it and credentials
	// come from YAML/env only.
	StorePath string `yaml:"store_path"`
}

// Default returns the configuration defaults (same shape the original bot
// writes on first run).
func Default() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaAPIURL: "https://gamma-api.polymarket.com",
			ClobAPIURL:  "https://clob.polymarket.com",
			WSURL:       "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:     137,
		},
		Strategy: StrategyConfig{
			Symbols:                     []string{"btc", "eth", "sol", "xrp"},
			SumThreshold:                0.99,
			Shares:                      10,
			VerifyFillSecs:              10,
			PriceToBeatDelaySecs:        30,
			PriceToBeatPollIntervalSecs: 2,
			PriceToBeatTolerance:        0.03,
			TradeIntervalSecs:           60,
			SubmitMaxAttempts:           3,
			ExitMaxAttempts:             4,
			ExitCrossStepCents:          2,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Metrics: MetricsConfig{Listen: "127.0.0.1:6061"},
		Status:  StatusConfig{Listen: "127.0.0.1:8089"},
		Ledger:  LedgerConfig{Path: "data/crossarb.db"},
	}
}

// Load reads the YAML config at path, layering defaults underneath and
// environment secrets on top. A missing path returns defaults.
func Load(path string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays credential material from the environment; env wins over
// file so secrets can stay out of YAML.
func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	overlay(&c.Polymarket.PrivateKey, "POLY_PRIVATE_KEY")
	overlay(&c.Polymarket.FunderAddress, "POLY_FUNDER_ADDRESS")
	overlay(&c.Polymarket.APIKey, "POLY_API_KEY")
	overlay(&c.Polymarket.APISecret, "POLY_API_SECRET")
	overlay(&c.Polymarket.APIPassphrase, "POLY_API_PASSPHRASE")

	// CROSSARB_SIM=1 forces simulation mode; lets the -sim flag work even
	// when the config file would otherwise demand live credentials.
	if v := strings.TrimSpace(os.Getenv("CROSSARB_SIM")); v == "1" || strings.EqualFold(v, "true") {
		c.Strategy.SimulationMode = true
	}
}

func (c *Config) Validate() error {
	s := &c.Strategy
	if len(s.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols must not be empty")
	}
	if s.SumThreshold <= 0 || s.SumThreshold >= 2 {
		return fmt.Errorf("strategy.sum_threshold must be in (0, 2), got %v", s.SumThreshold)
	}
	if s.Shares <= 0 {
		return fmt.Errorf("strategy.shares must be > 0")
	}
	if s.VerifyFillSecs <= 0 {
		s.VerifyFillSecs = 10
	}
	if s.PriceToBeatDelaySecs <= 0 {
		s.PriceToBeatDelaySecs = 30
	}
	if s.PriceToBeatPollIntervalSecs <= 0 {
		s.PriceToBeatPollIntervalSecs = 2
	}
	if s.PriceToBeatTolerance < 0 {
		return fmt.Errorf("strategy.price_to_beat_tolerance must be >= 0")
	}
	if s.TradeIntervalSecs < 0 {
		return fmt.Errorf("strategy.trade_interval_secs must be >= 0")
	}
	if s.SubmitMaxAttempts <= 0 {
		s.SubmitMaxAttempts = 3
	}
	if s.ExitMaxAttempts <= 0 {
		s.ExitMaxAttempts = 4
	}
	if s.ExitCrossStepCents <= 0 {
		s.ExitCrossStepCents = 2
	}
	if !s.SimulationMode {
		if c.Polymarket.PrivateKey == "" {
			return fmt.Errorf("polymarket.private_key (or POLY_PRIVATE_KEY) is required outside simulation mode")
		}
	}
	return nil
}

// Durations derived from the integer-seconds config keys.

func (s *StrategyConfig) VerifyFillWindow() time.Duration {
	return time.Duration(s.VerifyFillSecs) * time.Second
}

func (s *StrategyConfig) PriceToBeatDelay() time.Duration {
	return time.Duration(s.PriceToBeatDelaySecs) * time.Second
}

func (s *StrategyConfig) PriceToBeatPollInterval() time.Duration {
	return time.Duration(s.PriceToBeatPollIntervalSecs) * time.Second
}

func (s *StrategyConfig) TradeInterval() time.Duration {
	return time.Duration(s.TradeIntervalSecs) * time.Second
}
