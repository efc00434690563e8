// Package main provides tokenctl, a CLI that runs the token_basics lifecycle
// (create → mint → transfer → burn) against a Solana cluster.
//
// Usage:
//
//	tokenctl lifecycle --keypair ~/.config/solana/id.json
//	tokenctl create --name "Test Token" --symbol TEST
//	tokenctl mint <mint> <owner> <amount>
//	tokenctl transfer <mint> <to> <amount> [--from keypair.json]
//	tokenctl burn <mint> <amount>
//	tokenctl balance <mint> [owner...]
//	tokenctl reconcile [signature...] [--resend]
//	tokenctl airdrop <lamports> [pubkey]
//
// Configuration is read from an optional YAML file, .env, environment
// variables (SOLANA_RPC_ENDPOINT, POSTGRES_DSN, ...) and flags, later wins.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
