// Package submission compiles, signs, sends and confirms transactions, and
// journals each one so that an unknown outcome can be reconciled later.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/observability"
	"github.com/0xabstracted/token-basics/internal/solana"
	"github.com/0xabstracted/token-basics/internal/storage"
	"github.com/0xabstracted/token-basics/internal/storage/memory"
)

// DefaultTimeout bounds a single confirmation wait.
const DefaultTimeout = 90 * time.Second

// Failure reasons recorded in metrics.
const (
	reasonRejected = "rejected"
	reasonFailed   = "failed"
	reasonExpired  = "expired"
	reasonTimeout  = "timeout"
)

// Options for creating Submitter.
type Options struct {
	RPC solana.RPCClient

	// Confirmer defaults to a PollingConfirmer on RPC at Commitment.
	Confirmer Confirmer
	// Journal defaults to an in-memory store.
	Journal storage.PendingTxStore

	Commitment    solana.Commitment // default finalized
	Timeout       time.Duration     // default DefaultTimeout
	SkipPreflight bool

	Logger zerolog.Logger
}

// Submitter sends transactions and blocks until they are resolved.
// Safe for concurrent use.
type Submitter struct {
	rpc           solana.RPCClient
	confirmer     Confirmer
	journal       storage.PendingTxStore
	commitment    solana.Commitment
	timeout       time.Duration
	skipPreflight bool
	logger        zerolog.Logger
}

// New creates a new Submitter.
func New(opts Options) *Submitter {
	s := &Submitter{
		rpc:           opts.RPC,
		confirmer:     opts.Confirmer,
		journal:       opts.Journal,
		commitment:    opts.Commitment,
		timeout:       opts.Timeout,
		skipPreflight: opts.SkipPreflight,
		logger:        opts.Logger.With().Str("component", "submitter").Logger(),
	}
	if s.commitment == "" {
		s.commitment = DefaultCommitment
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.confirmer == nil {
		s.confirmer = NewPollingConfirmer(s.rpc, s.commitment, DefaultPollInterval, opts.Logger)
	}
	if s.journal == nil {
		s.journal = memory.NewPendingTxStore()
	}
	return s
}

// Journal returns the pending transaction store.
func (s *Submitter) Journal() storage.PendingTxStore {
	return s.journal
}

// Submit compiles ixs into a transaction paid by payer, signs it with payer
// and signers, journals it, sends it, and waits for confirmation.
//
// Errors: *RejectedError (ErrValidationRejected), ErrBlockhashExpired, or
// *TimeoutError (ErrNetworkTimeout). The signature is returned whenever the
// transaction was signed.
func (s *Submitter) Submit(ctx context.Context, step domain.Step, payer sdk.PrivateKey, signers []sdk.PrivateKey, ixs ...sdk.Instruction) (sdk.Signature, error) {
	pending, sig, err := s.sign(ctx, step, payer, signers, ixs)
	if err != nil {
		return sdk.Signature{}, err
	}

	if err := s.journal.Insert(ctx, pending); err != nil {
		return sig, fmt.Errorf("journal transaction: %w", err)
	}
	observability.RecordSubmitted(string(step))

	s.logger.Debug().
		Str("signature", pending.Signature).
		Str("step", string(step)).
		Uint64("last_valid_block_height", pending.LastValidBlockHeight).
		Msg("sending transaction")

	if err := s.send(ctx, pending, false); err != nil {
		return sig, err
	}
	return sig, s.await(ctx, pending)
}

// Resend re-broadcasts the exact signed bytes of pending and waits again.
// The signature is unchanged, so the ledger executes it at most once.
func (s *Submitter) Resend(ctx context.Context, pending *domain.PendingTransaction) (sdk.Signature, error) {
	if pending == nil || len(pending.RawTx) == 0 {
		return sdk.Signature{}, fmt.Errorf("resend: %w", storage.ErrInvalidInput)
	}
	sig, err := sdk.SignatureFromBase58(pending.Signature)
	if err != nil {
		return sdk.Signature{}, fmt.Errorf("parse signature: %w", err)
	}

	if _, err := s.journal.GetBySignature(ctx, pending.Signature); errors.Is(err, storage.ErrNotFound) {
		if err := s.journal.Insert(ctx, pending); err != nil {
			return sig, fmt.Errorf("journal transaction: %w", err)
		}
	}
	observability.RecordResent()

	s.logger.Info().Str("signature", pending.Signature).Str("step", string(pending.Step)).Msg("resending transaction")

	if err := s.send(ctx, pending, true); err != nil {
		return sig, err
	}
	return sig, s.await(ctx, pending)
}

// Reconcile queries the ledger for the outcome of a journaled transaction
// and records it. The status stays unresolved while the blockhash is valid
// and the transaction has not reached the commitment.
func (s *Submitter) Reconcile(ctx context.Context, signature string) (*domain.PendingTransaction, error) {
	pending, err := s.journal.GetBySignature(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get pending transaction: %w", err)
	}
	if pending.Status.Resolved() {
		return pending, nil
	}

	statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return nil, fmt.Errorf("get signature status: %w", err)
	}
	var status *solana.SignatureStatus
	if len(statuses) > 0 {
		status = statuses[0]
	}

	switch {
	case status != nil && status.ConfirmationStatus.Reached(s.commitment):
		slot := status.Slot
		if status.Failed() {
			reason := solana.ParseTransactionError(status.Err).Error()
			err = s.journal.UpdateStatus(ctx, signature, domain.TxStatusFailed, &slot, &reason)
		} else {
			err = s.journal.UpdateStatus(ctx, signature, domain.TxStatusConfirmed, &slot, nil)
		}
	case status == nil:
		height, herr := s.rpc.GetBlockHeight(ctx, solana.CommitmentFinalized)
		if herr != nil {
			return nil, fmt.Errorf("get block height: %w", herr)
		}
		if height > pending.LastValidBlockHeight {
			reason := ErrBlockhashExpired.Error()
			err = s.journal.UpdateStatus(ctx, signature, domain.TxStatusFailed, nil, &reason)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("update pending transaction: %w", err)
	}

	resolved, err := s.journal.GetBySignature(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("get pending transaction: %w", err)
	}
	s.logger.Info().Str("signature", signature).Str("status", string(resolved.Status)).Msg("reconciled transaction")
	return resolved, nil
}

// ReconcileAll reconciles every unresolved journaled transaction.
func (s *Submitter) ReconcileAll(ctx context.Context) ([]*domain.PendingTransaction, error) {
	unresolved, err := s.journal.GetUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("get unresolved transactions: %w", err)
	}

	result := make([]*domain.PendingTransaction, 0, len(unresolved))
	for _, p := range unresolved {
		r, err := s.Reconcile(ctx, p.Signature)
		if err != nil {
			return result, err
		}
		result = append(result, r)
	}
	return result, nil
}

// sign fetches a blockhash, compiles and signs the transaction.
func (s *Submitter) sign(ctx context.Context, step domain.Step, payer sdk.PrivateKey, signers []sdk.PrivateKey, ixs []sdk.Instruction) (*domain.PendingTransaction, sdk.Signature, error) {
	if len(ixs) == 0 {
		return nil, sdk.Signature{}, fmt.Errorf("build transaction: %w", storage.ErrInvalidInput)
	}

	bh, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		return nil, sdk.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := sdk.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, sdk.Signature{}, fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := sdk.NewTransaction(ixs, hash, sdk.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, sdk.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	keys := append([]sdk.PrivateKey{payer}, signers...)
	if _, err := tx.Sign(func(pk sdk.PublicKey) *sdk.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(pk) {
				return &keys[i]
			}
		}
		return nil
	}); err != nil {
		return nil, sdk.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, sdk.Signature{}, fmt.Errorf("encode transaction: %w", err)
	}

	sig := tx.Signatures[0]
	labels := labelsFrom(ctx)
	now := time.Now().UnixMilli()
	return &domain.PendingTransaction{
		Signature:            sig.String(),
		RunID:                labels.RunID,
		Step:                 step,
		Mint:                 labels.Mint,
		RawTx:                raw,
		Blockhash:            bh.Blockhash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
		Status:               domain.TxStatusSubmitted,
		SubmittedAt:          now,
		UpdatedAt:            now,
	}, sig, nil
}

// send broadcasts the signed bytes and classifies a send failure. resend
// marks bytes that may already have landed.
func (s *Submitter) send(ctx context.Context, pending *domain.PendingTransaction, resend bool) error {
	_, err := s.rpc.SendTransaction(ctx, pending.RawTx, &solana.SendOpts{
		SkipPreflight:       s.skipPreflight,
		PreflightCommitment: s.commitment,
	})
	if err == nil {
		return nil
	}

	var rpcErr *solana.RPCError
	if !errors.As(err, &rpcErr) {
		// Transport failure: the node may or may not have the transaction.
		return s.unknown(ctx, pending, fmt.Errorf("send transaction: %w", err))
	}

	if pf := rpcErr.Preflight(); pf != nil {
		txErr := solana.ParseTransactionError(pf.Err)
		if txErr != nil {
			switch txErr.Kind {
			case "AlreadyProcessed":
				return nil
			case "BlockhashNotFound":
				if resend {
					return s.resolveExpired(ctx, pending)
				}
				s.fail(ctx, pending, reasonExpired, nil, ErrBlockhashExpired.Error())
				return fmt.Errorf("send transaction %s: %w", pending.Signature, ErrBlockhashExpired)
			}
		}
		rejected := newRejectedError(pending.Signature, txErr, pf.Logs)
		if rejected.Reason == "" {
			rejected.Reason = rpcErr.Message
		}
		s.fail(ctx, pending, reasonRejected, nil, rejected.Reason)
		return rejected
	}

	switch rpcErr.Code {
	case solana.CodeSignatureVerificationFailure, solana.CodeInvalidParams:
		rejected := &RejectedError{Signature: pending.Signature, InstructionIndex: -1, Reason: rpcErr.Message}
		s.fail(ctx, pending, reasonRejected, nil, rejected.Reason)
		return rejected
	}
	return s.unknown(ctx, pending, fmt.Errorf("send transaction: %w", err))
}

// resolveExpired settles a resend refused for an unknown blockhash. Nodes
// check blockhash age before the status cache, so a transaction that
// already landed is refused the same way; the signature status decides.
// A nil return leaves the outcome to await.
func (s *Submitter) resolveExpired(ctx context.Context, pending *domain.PendingTransaction) error {
	statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{pending.Signature})
	if err != nil {
		return s.unknown(ctx, pending, fmt.Errorf("get signature status: %w", err))
	}
	if len(statuses) > 0 && statuses[0] != nil {
		return nil
	}

	height, err := s.rpc.GetBlockHeight(ctx, solana.CommitmentFinalized)
	if err != nil {
		return s.unknown(ctx, pending, fmt.Errorf("get block height: %w", err))
	}
	if height <= pending.LastValidBlockHeight {
		// This node is behind the blockhash; another may still land it.
		return s.unknown(ctx, pending, fmt.Errorf("send transaction: blockhash not found at height %d", height))
	}

	s.fail(ctx, pending, reasonExpired, nil, ErrBlockhashExpired.Error())
	return fmt.Errorf("send transaction %s: %w", pending.Signature, ErrBlockhashExpired)
}

// await blocks on the confirmer and records the outcome.
func (s *Submitter) await(ctx context.Context, pending *domain.PendingTransaction) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	conf, err := s.confirmer.Confirm(waitCtx, pending.Signature, pending.LastValidBlockHeight)
	switch {
	case errors.Is(err, ErrBlockhashExpired):
		s.fail(ctx, pending, reasonExpired, nil, err.Error())
		return fmt.Errorf("confirm transaction %s: %w", pending.Signature, err)
	case err != nil:
		return s.unknown(ctx, pending, err)
	case conf.Failed():
		rejected := newRejectedError(pending.Signature, solana.ParseTransactionError(conf.Err), s.programLogs(ctx, pending.Signature))
		slot := conf.Slot
		s.fail(ctx, pending, reasonFailed, &slot, rejected.Reason)
		return rejected
	}

	slot := conf.Slot
	s.record(ctx, pending, domain.TxStatusConfirmed, &slot, nil)
	observability.RecordConfirmed(string(pending.Step), time.Since(start))

	s.logger.Info().
		Str("signature", pending.Signature).
		Str("step", string(pending.Step)).
		Uint64("slot", slot).
		Dur("latency", time.Since(start)).
		Msg("transaction confirmed")
	return nil
}

// programLogs fetches logs of a landed transaction for diagnostics.
func (s *Submitter) programLogs(ctx context.Context, signature string) []string {
	tx, err := s.rpc.GetTransaction(ctx, signature)
	if err != nil {
		s.logger.Warn().Err(err).Str("signature", signature).Msg("get transaction logs failed")
		return nil
	}
	if tx == nil || tx.Meta == nil {
		return nil
	}
	return tx.Meta.LogMessages
}

func (s *Submitter) fail(ctx context.Context, pending *domain.PendingTransaction, reason string, slot *uint64, msg string) {
	s.record(ctx, pending, domain.TxStatusFailed, slot, &msg)
	observability.RecordFailed(string(pending.Step), reason)

	s.logger.Warn().
		Str("signature", pending.Signature).
		Str("step", string(pending.Step)).
		Str("reason", reason).
		Msg(msg)
}

func (s *Submitter) unknown(ctx context.Context, pending *domain.PendingTransaction, cause error) error {
	msg := cause.Error()
	s.record(ctx, pending, domain.TxStatusUnknown, nil, &msg)
	observability.RecordFailed(string(pending.Step), reasonTimeout)

	s.logger.Warn().
		Err(cause).
		Str("signature", pending.Signature).
		Str("step", string(pending.Step)).
		Msg("transaction outcome unknown")
	return &TimeoutError{Signature: pending.Signature, Pending: pending, Err: cause}
}

// record updates pending and its journal entry. The ledger is the source of
// truth, so a failed journal write is logged and left for Reconcile.
func (s *Submitter) record(ctx context.Context, pending *domain.PendingTransaction, status domain.TxStatus, slot *uint64, msg *string) {
	pending.Status = status
	pending.Slot = slot
	pending.Error = msg
	pending.UpdatedAt = time.Now().UnixMilli()

	if err := s.journal.UpdateStatus(context.WithoutCancel(ctx), pending.Signature, status, slot, msg); err != nil {
		s.logger.Error().Err(err).Str("signature", pending.Signature).Msg("journal status update failed")
	}
}
