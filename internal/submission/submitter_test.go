package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/solana"
	"github.com/0xabstracted/token-basics/internal/solana/stub"
	"github.com/0xabstracted/token-basics/internal/storage/memory"
)

type fixture struct {
	ledger    *stub.Ledger
	journal   *memory.PendingTxStore
	submitter *Submitter
	authority sdk.PrivateKey
	mint      sdk.PrivateKey
}

func newKey(t *testing.T) sdk.PrivateKey {
	t.Helper()
	k, err := sdk.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func newSubmitter(ledger *stub.Ledger, journal *memory.PendingTxStore, opts Options) *Submitter {
	opts.RPC = ledger
	opts.Journal = journal
	opts.Logger = zerolog.Nop()
	if opts.Confirmer == nil {
		opts.Confirmer = NewPollingConfirmer(ledger, solana.CommitmentFinalized, 5*time.Millisecond, zerolog.Nop())
	}
	return New(opts)
}

// newFixture creates a funded authority and a created token.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    stub.NewLedger(),
		journal:   memory.NewPendingTxStore(),
		authority: newKey(t),
		mint:      newKey(t),
	}
	f.ledger.Fund(f.authority.PublicKey(), 10_000_000_000)
	f.submitter = newSubmitter(f.ledger, f.journal, opts)

	require.NoError(t, f.create(t))
	return f
}

func (f *fixture) create(t *testing.T) error {
	t.Helper()
	meta := instruction.TokenMetadata{Name: "Test Token", Symbol: "TEST", URI: "https://example.com/t.json"}
	_, err := f.submitter.Submit(context.Background(), domain.StepCreate, f.authority, []sdk.PrivateKey{f.mint},
		instruction.CreateToken(f.authority.PublicKey(), f.mint.PublicKey(), meta))
	return err
}

func (f *fixture) mintIx(amount uint64) sdk.Instruction {
	w := f.authority.PublicKey()
	return instruction.MintToken(w, w, f.mint.PublicKey(), amount)
}

func TestSubmit_Confirmed(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := WithLabels(context.Background(), Labels{RunID: "run-1", Mint: f.mint.PublicKey().String()})

	sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), f.ledger.Supply(f.mint.PublicKey()))

	pending, err := f.journal.GetBySignature(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusConfirmed, pending.Status)
	assert.Equal(t, domain.StepMint, pending.Step)
	assert.Equal(t, "run-1", pending.RunID)
	assert.Equal(t, f.mint.PublicKey().String(), pending.Mint)
	assert.NotNil(t, pending.Slot)
	assert.NotEmpty(t, pending.RawTx)
	assert.Greater(t, pending.LastValidBlockHeight, uint64(0))
}

func TestSubmit_MissingSigner(t *testing.T) {
	f := newFixture(t, Options{})
	other := newKey(t)

	// other must sign as the transfer sender but is not supplied
	ix := instruction.TransferToken(other.PublicKey(), f.authority.PublicKey(), f.mint.PublicKey(), 1)
	_, err := f.submitter.Submit(context.Background(), domain.StepTransfer, f.authority, nil, ix)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign transaction")
	assert.Equal(t, 1, f.ledger.Sends(), "nothing beyond create must be sent")
}

func TestSubmit_PreflightRejected(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	w := f.authority.PublicKey()

	sig, err := f.submitter.Submit(ctx, domain.StepBurn, f.authority, nil, instruction.BurnToken(w, w, f.mint.PublicKey(), 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationRejected))
	assert.False(t, errors.Is(err, ErrNetworkTimeout))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 0, rejected.InstructionIndex)
	assert.NotEmpty(t, rejected.Logs)

	pending, err := f.journal.GetBySignature(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, pending.Status)
	require.NotNil(t, pending.Error)
}

func TestSubmit_LandedFailed(t *testing.T) {
	f := newFixture(t, Options{SkipPreflight: true})
	ctx := context.Background()

	// Supply is 0, so transferring fails on chain with InsufficientFunds.
	ix := instruction.TransferToken(f.authority.PublicKey(), newKey(t).PublicKey(), f.mint.PublicKey(), 1)
	sig, err := f.submitter.Submit(ctx, domain.StepTransfer, f.authority, nil, ix)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, sig.String(), rejected.Signature)
	assert.NotEmpty(t, rejected.Logs, "logs come from getTransaction")

	pending, err := f.journal.GetBySignature(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, pending.Status)
	assert.NotNil(t, pending.Slot, "failed transaction landed")
}

func TestSubmit_AlreadyInitialized(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	owner := newKey(t).PublicKey()
	ix := func() sdk.Instruction {
		return instruction.CreateHolderAccount(f.authority.PublicKey(), owner, f.mint.PublicKey())
	}

	_, err := f.submitter.Submit(ctx, domain.StepEnsureHolder, f.authority, nil, ix())
	require.NoError(t, err)

	_, err = f.submitter.Submit(ctx, domain.StepEnsureHolder, f.authority, nil, ix())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationRejected)
	assert.True(t, AlreadyInitialized(err, address.DeriveHolderAccount(owner, f.mint.PublicKey())))

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.True(t, rejected.AlreadyInUse(address.DeriveHolderAccount(owner, f.mint.PublicKey())))
	assert.False(t, rejected.AlreadyInUse(owner))
}

func TestSubmit_BlockhashExpired(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.ledger.DropNext(1)
	f.ledger.AutoAdvance = 50

	sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockhashExpired)
	assert.Equal(t, uint64(0), f.ledger.Supply(f.mint.PublicKey()))

	pending, err := f.journal.GetBySignature(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, pending.Status)
}

func TestSubmit_TimeoutThenResend(t *testing.T) {
	f := newFixture(t, Options{Timeout: 50 * time.Millisecond})
	ctx := context.Background()

	f.ledger.DropNext(1)
	sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, sig.String(), timeout.Signature)
	require.NotNil(t, timeout.Pending)
	assert.Equal(t, domain.TxStatusUnknown, timeout.Pending.Status)

	// Still open: blockhash valid, nothing landed.
	reconciled, err := f.submitter.Reconcile(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusUnknown, reconciled.Status)

	again, err := f.submitter.Resend(ctx, timeout.Pending)
	require.NoError(t, err)
	assert.Equal(t, sig, again)
	assert.Equal(t, uint64(5), f.ledger.Supply(f.mint.PublicKey()))

	pending, err := f.journal.GetBySignature(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusConfirmed, pending.Status)

	// A second resend is absorbed: executed at most once.
	_, err = f.submitter.Resend(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), f.ledger.Supply(f.mint.PublicKey()))
}

func TestResend_AfterExpiry(t *testing.T) {
	t.Run("landed transaction is confirmed", func(t *testing.T) {
		f := newFixture(t, Options{Timeout: 30 * time.Millisecond})
		ctx := context.Background()

		// Lands, but the wait times out before finality.
		f.ledger.FinalityDepth = 10
		sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)

		// The node now refuses the bytes for their blockhash, not as a duplicate.
		f.ledger.Advance(stub.DefaultBlockhashValidity + 1)
		again, err := f.submitter.Resend(ctx, timeout.Pending)
		require.NoError(t, err)
		assert.Equal(t, sig, again)
		assert.Equal(t, uint64(5), f.ledger.Supply(f.mint.PublicKey()))

		pending, err := f.journal.GetBySignature(ctx, sig.String())
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusConfirmed, pending.Status)
	})

	t.Run("dropped transaction is failed", func(t *testing.T) {
		f := newFixture(t, Options{Timeout: 30 * time.Millisecond})
		ctx := context.Background()

		f.ledger.DropNext(1)
		sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)

		f.ledger.Advance(stub.DefaultBlockhashValidity + 1)
		_, err = f.submitter.Resend(ctx, timeout.Pending)
		require.ErrorIs(t, err, ErrBlockhashExpired)
		assert.Equal(t, uint64(0), f.ledger.Supply(f.mint.PublicKey()))

		pending, err := f.journal.GetBySignature(ctx, sig.String())
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusFailed, pending.Status)
	})
}

func TestSubmit_SendFailureIsUnknown(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.ledger.FailNextSend(nil)
	sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkTimeout)
	assert.ErrorIs(t, err, stub.ErrSendFailed)

	unresolved, err := f.journal.GetUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, sig.String(), unresolved[0].Signature)
}

func TestReconcile(t *testing.T) {
	t.Run("landed transaction is confirmed", func(t *testing.T) {
		f := newFixture(t, Options{Timeout: 30 * time.Millisecond})
		ctx := context.Background()

		// Confirmation wait times out while the transaction is not yet final.
		f.ledger.FinalityDepth = 10
		sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
		require.ErrorIs(t, err, ErrNetworkTimeout)

		f.ledger.Advance(10)
		reconciled, err := f.submitter.Reconcile(ctx, sig.String())
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusConfirmed, reconciled.Status)
		require.NotNil(t, reconciled.Slot)
	})

	t.Run("expired transaction is failed", func(t *testing.T) {
		f := newFixture(t, Options{Timeout: 30 * time.Millisecond})
		ctx := context.Background()

		f.ledger.DropNext(1)
		sig, err := f.submitter.Submit(ctx, domain.StepMint, f.authority, nil, f.mintIx(5))
		require.ErrorIs(t, err, ErrNetworkTimeout)

		f.ledger.Advance(stub.DefaultBlockhashValidity + 1)
		all, err := f.submitter.ReconcileAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, sig.String(), all[0].Signature)
		assert.Equal(t, domain.TxStatusFailed, all[0].Status)
		require.NotNil(t, all[0].Error)
		assert.Equal(t, ErrBlockhashExpired.Error(), *all[0].Error)
	})

	t.Run("unknown signature", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.submitter.Reconcile(context.Background(), "missing")
		assert.Error(t, err)
	})
}

func TestResend_InvalidInput(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.submitter.Resend(context.Background(), &domain.PendingTransaction{Signature: "x"})
	assert.Error(t, err)
}
