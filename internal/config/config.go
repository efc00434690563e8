// Package config loads CLI configuration from defaults, an optional YAML
// file, .env files and environment variables, in that order of precedence
// (later wins). Command-line flags are applied on top by cmd/tokenctl.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvRPCEndpoint   = "SOLANA_RPC_ENDPOINT"
	EnvWSEndpoint    = "SOLANA_WS_ENDPOINT"
	EnvCommitment    = "SOLANA_COMMITMENT"
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickhouseDSN = "CLICKHOUSE_DSN"
	EnvPayerKeypair  = "TOKEN_PAYER_KEYPAIR"
	EnvLogLevel      = "LOG_LEVEL"
	EnvMetricsAddr   = "METRICS_ADDR"
	EnvRateLimit     = "RPC_RATE_LIMIT"
)

// Defaults.
const (
	DefaultRPCEndpoint = "http://127.0.0.1:8899"
	DefaultCommitment  = "finalized"
	DefaultLogLevel    = "info"
)

// Config is the full CLI configuration.
type Config struct {
	RPCEndpoint   string `yaml:"rpc_endpoint"`
	WSEndpoint    string `yaml:"ws_endpoint"` // empty derives from RPCEndpoint
	Commitment    string `yaml:"commitment"`
	PostgresDSN   string `yaml:"postgres_dsn"`   // empty keeps the journal in memory
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // empty keeps snapshots in memory
	PayerKeypair  string `yaml:"payer_keypair"`  // Solana CLI keypair JSON file
	LogLevel      string `yaml:"log_level"`
	LogPretty     bool   `yaml:"log_pretty"`
	MetricsAddr   string `yaml:"metrics_addr"` // empty disables the metrics server

	RPC     RPCConfig     `yaml:"rpc"`
	Confirm ConfirmConfig `yaml:"confirm"`
}

// RPCConfig tunes the HTTP JSON-RPC client.
type RPCConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst      int           `yaml:"burst"`
}

// ConfirmConfig tunes transaction confirmation.
type ConfirmConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Websocket     bool          `yaml:"websocket"`
	SkipPreflight bool          `yaml:"skip_preflight"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		RPCEndpoint: DefaultRPCEndpoint,
		Commitment:  DefaultCommitment,
		LogLevel:    DefaultLogLevel,
		RPC: RPCConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Burst:      1,
		},
		Confirm: ConfirmConfig{
			Timeout:      90 * time.Second,
			PollInterval: 500 * time.Millisecond,
			Websocket:    true,
		},
	}
}

// LoadEnvFiles loads .env files into the process environment without
// overriding variables already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.RPCEndpoint, EnvRPCEndpoint)
	setString(&c.WSEndpoint, EnvWSEndpoint)
	setString(&c.Commitment, EnvCommitment)
	setString(&c.PostgresDSN, EnvPostgresDSN)
	setString(&c.ClickhouseDSN, EnvClickhouseDSN)
	setString(&c.PayerKeypair, EnvPayerKeypair)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.MetricsAddr, EnvMetricsAddr)

	if v := os.Getenv(EnvRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvRateLimit, err)
		}
		c.RPC.RateLimit = rps
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.New("rpc endpoint is required")
	}
	if err := checkURL(c.RPCEndpoint, "http", "https"); err != nil {
		return fmt.Errorf("rpc endpoint: %w", err)
	}
	if c.WSEndpoint != "" {
		if err := checkURL(c.WSEndpoint, "ws", "wss"); err != nil {
			return fmt.Errorf("ws endpoint: %w", err)
		}
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q: must be processed, confirmed or finalized", c.Commitment)
	}

	if c.Confirm.Timeout <= 0 {
		return errors.New("confirm timeout must be positive")
	}
	if c.Confirm.PollInterval <= 0 {
		return errors.New("confirm poll interval must be positive")
	}
	if c.RPC.Timeout <= 0 {
		return errors.New("rpc timeout must be positive")
	}
	if c.RPC.MaxRetries < 0 {
		return errors.New("rpc max retries must not be negative")
	}
	if c.RPC.RateLimit < 0 {
		return errors.New("rpc rate limit must not be negative")
	}
	return nil
}

// ResolvedWSEndpoint returns WSEndpoint, or one derived from RPCEndpoint:
// http(s) becomes ws(s) and the local validator port 8899 becomes 8900.
func (c *Config) ResolvedWSEndpoint() string {
	if c.WSEndpoint != "" {
		return c.WSEndpoint
	}
	u, err := url.Parse(c.RPCEndpoint)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if u.Port() == "8899" {
		u.Host = u.Hostname() + ":8900"
	}
	return u.String()
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("unsupported scheme %q", u.Scheme)
}
