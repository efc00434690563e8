package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/config"
	"github.com/0xabstracted/token-basics/internal/holder"
	"github.com/0xabstracted/token-basics/internal/logging"
	"github.com/0xabstracted/token-basics/internal/observability"
	"github.com/0xabstracted/token-basics/internal/orchestrator"
	"github.com/0xabstracted/token-basics/internal/solana"
	"github.com/0xabstracted/token-basics/internal/storage"
	chstore "github.com/0xabstracted/token-basics/internal/storage/clickhouse"
	"github.com/0xabstracted/token-basics/internal/storage/memory"
	"github.com/0xabstracted/token-basics/internal/storage/migrations"
	pgstore "github.com/0xabstracted/token-basics/internal/storage/postgres"
	"github.com/0xabstracted/token-basics/internal/submission"
)

// app holds the components built from configuration for one command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	rpc       *solana.HTTPClient
	payer     sdk.PrivateKey
	submitter *submission.Submitter
	orch      *orchestrator.Orchestrator

	cleanup []func()
}

// stores holds the storage implementations.
type stores struct {
	tokens    storage.TokenStore
	journal   storage.PendingTxStore
	snapshots storage.SnapshotStore
}

// newApp connects to the cluster and storage. The payer keypair is loaded
// only when needPayer is set.
func newApp(ctx context.Context, cfg *config.Config, needPayer bool) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogPretty),
	}

	if needPayer {
		payer, err := loadKeypair(cfg.PayerKeypair)
		if err != nil {
			return nil, err
		}
		a.payer = payer
	}

	opts := []solana.ClientOption{
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
	}
	if cfg.RPC.RateLimit > 0 {
		opts = append(opts, solana.WithRateLimit(cfg.RPC.RateLimit, cfg.RPC.Burst))
	}
	a.rpc = solana.NewHTTPClient(cfg.RPCEndpoint, opts...)

	st, err := a.createStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	commitment := solana.Commitment(cfg.Commitment)
	poller := submission.NewPollingConfirmer(a.rpc, commitment, cfg.Confirm.PollInterval, a.logger)
	var confirmer submission.Confirmer = poller
	if cfg.Confirm.Websocket {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logging.Component(a.logger, "ws")
		ws, err := solana.NewWSClient(ctx, cfg.ResolvedWSEndpoint(), &wsCfg)
		if err != nil {
			a.logger.Warn().Err(err).Str("endpoint", cfg.ResolvedWSEndpoint()).Msg("websocket unavailable, confirming by polling")
		} else {
			a.cleanup = append(a.cleanup, func() { ws.Close() })
			confirmer = submission.NewWSConfirmer(ws, poller, a.logger)
		}
	}

	a.submitter = submission.New(submission.Options{
		RPC:           a.rpc,
		Confirmer:     confirmer,
		Journal:       st.journal,
		Commitment:    commitment,
		Timeout:       cfg.Confirm.Timeout,
		SkipPreflight: cfg.Confirm.SkipPreflight,
		Logger:        a.logger,
	})

	if needPayer {
		a.orch = orchestrator.New(orchestrator.Options{
			RPC:           a.rpc,
			Submitter:     a.submitter,
			Ensurer:       holder.NewEnsurer(a.submitter, a.logger),
			Authority:     a.payer,
			TokenStore:    st.tokens,
			SnapshotStore: st.snapshots,
			Commitment:    commitment,
			Logger:        a.logger,
		})
	}

	if cfg.MetricsAddr != "" {
		a.startMetricsServer(cfg.MetricsAddr)
	}
	return a, nil
}

// createStores connects PostgreSQL and ClickHouse when configured and runs
// their migrations. Unconfigured stores are kept in memory.
func (a *app) createStores(ctx context.Context) (*stores, error) {
	st := &stores{
		tokens:    memory.NewTokenStore(),
		journal:   memory.NewPendingTxStore(),
		snapshots: memory.NewSnapshotStore(),
	}

	if a.cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		st.tokens = pgstore.NewTokenStore(pool)
		st.journal = pgstore.NewPendingTxStore(pool)
	} else {
		a.logger.Debug().Msg("no postgres dsn, journal kept in memory")
	}

	if a.cfg.ClickhouseDSN != "" {
		if err := chstore.EnsureDatabase(ctx, a.cfg.ClickhouseDSN); err != nil {
			return nil, err
		}
		conn, err := chstore.NewConn(ctx, a.cfg.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.snapshots = chstore.NewSnapshotStore(conn)
	}

	return st, nil
}

// startMetricsServer serves /health and /metrics until Close.
func (a *app) startMetricsServer(addr string) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	a.cleanup = append(a.cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

// loadKeypair reads a Solana CLI keypair file, defaulting to the CLI's
// own ~/.config/solana/id.json.
func loadKeypair(path string) (sdk.PrivateKey, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default keypair: %w", err)
		}
		path = filepath.Join(home, ".config", "solana", "id.json")
	}
	key, err := sdk.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, nil
}
