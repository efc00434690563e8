package holder

import (
	"context"
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
	"github.com/0xabstracted/token-basics/internal/submission"
)

func newKey(t *testing.T) sdk.PrivateKey {
	t.Helper()
	k, err := sdk.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

type fixture struct {
	ledger    *stub.Ledger
	submitter *submission.Submitter
	ensurer   *Ensurer
	payer     sdk.PrivateKey
	mint      sdk.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := stub.NewLedger()
	s := submission.New(submission.Options{
		RPC:       ledger,
		Confirmer: submission.NewPollingConfirmer(ledger, solana.CommitmentFinalized, 5*time.Millisecond, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	})
	f := &fixture{
		ledger:    ledger,
		submitter: s,
		ensurer:   NewEnsurer(s, zerolog.Nop()),
		payer:     newKey(t),
	}
	ledger.Fund(f.payer.PublicKey(), 10_000_000_000)

	mint := newKey(t)
	_, err := s.Submit(context.Background(), domain.StepCreate, f.payer, []sdk.PrivateKey{mint},
		instruction.CreateToken(f.payer.PublicKey(), mint.PublicKey(), instruction.TokenMetadata{Name: "Holder", Symbol: "HLD"}))
	require.NoError(t, err)
	f.mint = mint.PublicKey()
	return f
}

func TestEnsure_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := newKey(t).PublicKey()
	want := address.DeriveHolderAccount(owner, f.mint)

	first, err := f.ensurer.Ensure(ctx, f.payer, owner, f.mint)
	require.NoError(t, err)
	assert.Equal(t, want, first)

	second, err := f.ensurer.Ensure(ctx, f.payer, owner, f.mint)
	require.NoError(t, err)
	assert.Equal(t, want, second)

	assert.Equal(t, 1, f.ledger.TokenAccounts(f.mint), "exactly one holder account")
	assert.True(t, f.ledger.Exists(want))
}

func TestEnsure_AfterImplicitCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := newKey(t).PublicKey()

	// mint_token creates the recipient account itself.
	_, err := f.submitter.Submit(ctx, domain.StepMint, f.payer, nil,
		instruction.MintToken(f.payer.PublicKey(), owner, f.mint, 7))
	require.NoError(t, err)

	ata, err := f.ensurer.Ensure(ctx, f.payer, owner, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.ledger.TokenBalance(ata), "existing balance untouched")
}

func TestEnsure_PropagatesOtherErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unknown mint: the associated token program rejects it.
	_, err := f.ensurer.Ensure(ctx, f.payer, newKey(t).PublicKey(), newKey(t).PublicKey())
	require.Error(t, err)
	assert.ErrorIs(t, err, submission.ErrValidationRejected)
	assert.False(t, submission.AlreadyInitialized(err, f.mint))

	// Transport failure stays an unknown outcome.
	f.ledger.FailNextSend(nil)
	_, err = f.ensurer.Ensure(ctx, f.payer, newKey(t).PublicKey(), f.mint)
	assert.ErrorIs(t, err, submission.ErrNetworkTimeout)
}

// inUseSubmitter reports "already in use" for a different address.
type inUseSubmitter struct {
	addr sdk.PublicKey
}

func (s *inUseSubmitter) Submit(context.Context, domain.Step, sdk.PrivateKey, []sdk.PrivateKey, ...sdk.Instruction) (sdk.Signature, error) {
	zero := uint32(0)
	return sdk.Signature{}, &submission.RejectedError{
		InstructionIndex: 0,
		Custom:           &zero,
		Logs:             []string{"Allocate: account Address { address: " + s.addr.String() + ", base: None } already in use"},
	}
}

func TestEnsure_InUseElsewhereIsError(t *testing.T) {
	foreign := newKey(t).PublicKey()
	e := NewEnsurer(&inUseSubmitter{addr: foreign}, zerolog.Nop())

	_, err := e.Ensure(context.Background(), newKey(t), newKey(t).PublicKey(), newKey(t).PublicKey())
	require.Error(t, err)
	assert.ErrorIs(t, err, submission.ErrValidationRejected)
	assert.False(t, submission.AlreadyInitialized(err, newKey(t).PublicKey()))
	assert.True(t, submission.AlreadyInitialized(err, foreign))
}
