package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xabstracted/token-basics/internal/config"
)

// cli holds the flags shared by every command.
type cli struct {
	configPath string
	envFiles   []string

	rpcEndpoint   string
	wsEndpoint    string
	commitment    string
	postgresDSN   string
	clickhouseDSN string
	keypair       string
	logLevel      string
	logPretty     bool
	metricsAddr   string
	noWebsocket   bool
	timeout       time.Duration
	skipPreflight bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	return (&cli{}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tokenctl",
		Short:        "Create, mint, transfer and burn token_basics tokens",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.configPath, "config", "", "YAML config file")
	f.StringSliceVar(&c.envFiles, "env-file", []string{".env"}, ".env files to load (missing files are skipped)")
	f.StringVar(&c.rpcEndpoint, "rpc-endpoint", "", "Solana RPC HTTP endpoint (env "+config.EnvRPCEndpoint+")")
	f.StringVar(&c.wsEndpoint, "ws-endpoint", "", "Solana WebSocket endpoint (env "+config.EnvWSEndpoint+")")
	f.StringVar(&c.commitment, "commitment", "", "Commitment to confirm at: processed, confirmed, finalized")
	f.StringVar(&c.postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for tokens and the transaction journal (env "+config.EnvPostgresDSN+")")
	f.StringVar(&c.clickhouseDSN, "clickhouse-dsn", "", "ClickHouse DSN for balance snapshots (env "+config.EnvClickhouseDSN+")")
	f.StringVar(&c.keypair, "keypair", "", "Payer and authority keypair file (env "+config.EnvPayerKeypair+")")
	f.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.BoolVar(&c.logPretty, "log-pretty", false, "Human-readable console logs")
	f.StringVar(&c.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolVar(&c.noWebsocket, "no-websocket", false, "Confirm by polling only")
	f.DurationVar(&c.timeout, "timeout", 0, "Confirmation timeout per transaction")
	f.BoolVar(&c.skipPreflight, "skip-preflight", false, "Skip preflight simulation")

	root.AddCommand(
		c.lifecycleCmd(),
		c.createCmd(),
		c.mintCmd(),
		c.transferCmd(),
		c.burnCmd(),
		c.balanceCmd(),
		c.reconcileCmd(),
		c.airdropCmd(),
	)
	return root
}

// load builds the configuration: file, .env, environment, then flags that
// were set explicitly.
func (c *cli) load(cmd *cobra.Command) error {
	if err := config.LoadEnvFiles(c.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("rpc-endpoint", &cfg.RPCEndpoint, c.rpcEndpoint)
	override("ws-endpoint", &cfg.WSEndpoint, c.wsEndpoint)
	override("commitment", &cfg.Commitment, c.commitment)
	override("postgres-dsn", &cfg.PostgresDSN, c.postgresDSN)
	override("clickhouse-dsn", &cfg.ClickhouseDSN, c.clickhouseDSN)
	override("keypair", &cfg.PayerKeypair, c.keypair)
	override("log-level", &cfg.LogLevel, c.logLevel)
	override("metrics-addr", &cfg.MetricsAddr, c.metricsAddr)
	if flags.Changed("log-pretty") {
		cfg.LogPretty = c.logPretty
	}
	if flags.Changed("no-websocket") {
		cfg.Confirm.Websocket = !c.noWebsocket
	}
	if flags.Changed("timeout") {
		cfg.Confirm.Timeout = c.timeout
	}
	if flags.Changed("skip-preflight") {
		cfg.Confirm.SkipPreflight = c.skipPreflight
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	return nil
}
