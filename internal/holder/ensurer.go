// Package holder creates per-(owner, mint) token accounts idempotently.
package holder

import (
	"context"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/observability"
	"github.com/0xabstracted/token-basics/internal/submission"
)

// Ensure outcomes recorded in metrics.
const (
	OutcomeCreated = "created"
	OutcomeExists  = "exists"
)

// Submitter is the subset of submission.Submitter the ensurer needs.
type Submitter interface {
	Submit(ctx context.Context, step domain.Step, payer sdk.PrivateKey, signers []sdk.PrivateKey, ixs ...sdk.Instruction) (sdk.Signature, error)
}

// Ensurer makes sure a holder account exists.
type Ensurer struct {
	submitter Submitter
	logger    zerolog.Logger
}

// NewEnsurer creates a new Ensurer.
func NewEnsurer(submitter Submitter, logger zerolog.Logger) *Ensurer {
	return &Ensurer{
		submitter: submitter,
		logger:    logger.With().Str("component", "holder").Logger(),
	}
}

// Ensure creates the holder account of (owner, mint), paid by payer, and
// returns its address. An account already present at the derived address is
// success, so Ensure is safe to retry. Every other error is returned as is.
func (e *Ensurer) Ensure(ctx context.Context, payer sdk.PrivateKey, owner, mint sdk.PublicKey) (sdk.PublicKey, error) {
	ata := address.DeriveHolderAccount(owner, mint)

	_, err := e.submitter.Submit(ctx, domain.StepEnsureHolder, payer, nil,
		instruction.CreateHolderAccount(payer.PublicKey(), owner, mint))
	if err == nil {
		observability.RecordEnsure(OutcomeCreated)
		e.logger.Info().Str("owner", owner.String()).Str("account", ata.String()).Msg("holder account created")
		return ata, nil
	}

	if submission.AlreadyInitialized(err, ata) {
		observability.RecordEnsure(OutcomeExists)
		e.logger.Debug().Str("owner", owner.String()).Str("account", ata.String()).Msg("holder account already exists")
		return ata, nil
	}

	return sdk.PublicKey{}, fmt.Errorf("ensure holder account %s: %w", ata, err)
}
