// Package orchestrator runs the token lifecycle.
// It coordinates: create → mint → transfer → burn, verifying conservation
// of supply after every confirmed step.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/holder"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/solana"
	"github.com/0xabstracted/token-basics/internal/storage"
	"github.com/0xabstracted/token-basics/internal/storage/memory"
)

// Submitter sends transactions and blocks until they are resolved.
type Submitter interface {
	Submit(ctx context.Context, step domain.Step, payer sdk.PrivateKey, signers []sdk.PrivateKey, ixs ...sdk.Instruction) (sdk.Signature, error)
}

// Ensurer creates holder accounts idempotently.
type Ensurer interface {
	Ensure(ctx context.Context, payer sdk.PrivateKey, owner, mint sdk.PublicKey) (sdk.PublicKey, error)
}

// Orchestrator executes lifecycle operations for tokens owned by one authority.
// Safe for concurrent use across different mints.
type Orchestrator struct {
	rpc       solana.RPCClient
	submitter Submitter
	ensurer   Ensurer

	tokenStore    storage.TokenStore
	snapshotStore storage.SnapshotStore

	authority  sdk.PrivateKey
	commitment solana.Commitment
	logger     zerolog.Logger
	now        func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	RPC       solana.RPCClient
	Submitter Submitter
	Authority sdk.PrivateKey // pays fees, mints and burns

	// Ensurer defaults to a holder.Ensurer on Submitter.
	Ensurer Ensurer

	// Stores default to in-memory.
	TokenStore    storage.TokenStore
	SnapshotStore storage.SnapshotStore

	Commitment solana.Commitment // for balance queries, default finalized
	Logger     zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		rpc:           opts.RPC,
		submitter:     opts.Submitter,
		ensurer:       opts.Ensurer,
		tokenStore:    opts.TokenStore,
		snapshotStore: opts.SnapshotStore,
		authority:     opts.Authority,
		commitment:    opts.Commitment,
		logger:        opts.Logger.With().Str("component", "orchestrator").Logger(),
		now:           time.Now,
	}
	if o.ensurer == nil {
		o.ensurer = holder.NewEnsurer(opts.Submitter, opts.Logger)
	}
	if o.tokenStore == nil {
		o.tokenStore = memory.NewTokenStore()
	}
	if o.snapshotStore == nil {
		o.snapshotStore = memory.NewSnapshotStore()
	}
	if o.commitment == "" {
		o.commitment = solana.CommitmentFinalized
	}
	return o
}

// Authority returns the mint and burn authority.
func (o *Orchestrator) Authority() sdk.PublicKey {
	return o.authority.PublicKey()
}

// Commitment returns the commitment used for ledger queries.
func (o *Orchestrator) Commitment() solana.Commitment {
	return o.commitment
}

// CreateToken creates a new mint with the given metadata under the
// orchestrator's authority. The mint keypair is generated here and used only
// to co-sign the create transaction.
func (o *Orchestrator) CreateToken(ctx context.Context, name, symbol, uri string) (*domain.TokenIdentity, error) {
	mintKey, err := sdk.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate mint keypair: %w", err)
	}
	token, _, err := o.createToken(ctx, mintKey, instruction.TokenMetadata{Name: name, Symbol: symbol, URI: uri})
	return token, err
}

func (o *Orchestrator) createToken(ctx context.Context, mintKey sdk.PrivateKey, meta instruction.TokenMetadata) (*domain.TokenIdentity, sdk.Signature, error) {
	authority := o.authority.PublicKey()
	mint := mintKey.PublicKey()

	sig, err := o.submitter.Submit(ctx, domain.StepCreate, o.authority, []sdk.PrivateKey{mintKey},
		instruction.CreateToken(authority, mint, meta))
	if err != nil {
		return nil, sig, fmt.Errorf("create token %s: %w", mint, err)
	}

	supply, err := o.rpc.GetTokenSupply(ctx, mint.String(), o.commitment)
	if err != nil {
		return nil, sig, fmt.Errorf("get token supply: %w", err)
	}

	token := &domain.TokenIdentity{
		Mint:            mint.String(),
		Authority:       authority.String(),
		Name:            meta.Name,
		Symbol:          meta.Symbol,
		URI:             meta.URI,
		Decimals:        supply.Decimals,
		CreateSignature: sig.String(),
		CreatedAt:       o.now().UnixMilli(),
	}
	if err := o.tokenStore.Insert(ctx, token); err != nil {
		return nil, sig, fmt.Errorf("store token: %w", err)
	}

	o.logger.Info().
		Str("mint", token.Mint).
		Str("symbol", token.Symbol).
		Str("signature", token.CreateSignature).
		Msg("token created")
	return token, sig, nil
}

// MintTo ensures owner's holder account exists and mints amount into it.
func (o *Orchestrator) MintTo(ctx context.Context, mint, owner sdk.PublicKey, amount uint64) (sdk.Signature, error) {
	if _, err := o.ensurer.Ensure(ctx, o.authority, owner, mint); err != nil {
		return sdk.Signature{}, err
	}

	sig, err := o.submitter.Submit(ctx, domain.StepMint, o.authority, nil,
		instruction.MintToken(o.authority.PublicKey(), owner, mint, amount))
	if err != nil {
		return sig, fmt.Errorf("mint %d to %s: %w", amount, owner, err)
	}

	o.logger.Info().Str("mint", mint.String()).Str("owner", owner.String()).Uint64("amount", amount).Msg("minted")
	return sig, nil
}

// Transfer ensures the destination holder account exists and moves amount
// from the sender's holder account. The sender signs and pays.
func (o *Orchestrator) Transfer(ctx context.Context, mint sdk.PublicKey, from sdk.PrivateKey, to sdk.PublicKey, amount uint64) (sdk.Signature, error) {
	sender := from.PublicKey()
	if _, err := o.ensurer.Ensure(ctx, from, to, mint); err != nil {
		return sdk.Signature{}, err
	}

	sig, err := o.submitter.Submit(ctx, domain.StepTransfer, from, nil,
		instruction.TransferToken(sender, to, mint, amount))
	if err != nil {
		return sig, fmt.Errorf("transfer %d from %s to %s: %w", amount, sender, to, err)
	}

	o.logger.Info().
		Str("mint", mint.String()).
		Str("from", sender.String()).
		Str("to", to.String()).
		Uint64("amount", amount).
		Msg("transferred")
	return sig, nil
}

// Burn burns amount from owner's holder account. The authority signs, and the
// program only accepts a burn from the authority's own account.
func (o *Orchestrator) Burn(ctx context.Context, mint, owner sdk.PublicKey, amount uint64) (sdk.Signature, error) {
	sig, err := o.submitter.Submit(ctx, domain.StepBurn, o.authority, nil,
		instruction.BurnToken(o.authority.PublicKey(), owner, mint, amount))
	if err != nil {
		return sig, fmt.Errorf("burn %d from %s: %w", amount, owner, err)
	}

	o.logger.Info().Str("mint", mint.String()).Str("owner", owner.String()).Uint64("amount", amount).Msg("burned")
	return sig, nil
}

// Supply returns the total supply of mint.
func (o *Orchestrator) Supply(ctx context.Context, mint sdk.PublicKey) (uint64, error) {
	supply, err := o.rpc.GetTokenSupply(ctx, mint.String(), o.commitment)
	if err != nil {
		return 0, fmt.Errorf("get token supply: %w", err)
	}
	return supply.Amount, nil
}

// Balance returns owner's balance of mint. A holder account that does not
// exist yet holds zero.
func (o *Orchestrator) Balance(ctx context.Context, mint, owner sdk.PublicKey) (uint64, error) {
	ata := address.DeriveHolderAccount(owner, mint)

	info, err := o.rpc.GetAccountInfo(ctx, ata.String(), o.commitment)
	if err != nil {
		return 0, fmt.Errorf("get holder account %s: %w", ata, err)
	}
	if info == nil {
		return 0, nil
	}
	if info.Owner != address.Token2022ProgramID.String() {
		return 0, fmt.Errorf("holder account %s owned by %s", ata, info.Owner)
	}

	data, err := info.RawData()
	if err != nil {
		return 0, err
	}
	acct, err := solana.DecodeTokenAccount(data)
	if err != nil {
		return 0, err
	}
	if acct.Mint != mint.String() {
		return 0, fmt.Errorf("holder account %s belongs to mint %s", ata, acct.Mint)
	}
	return acct.Amount, nil
}

// Token returns a created token from the token store.
func (o *Orchestrator) Token(ctx context.Context, mint sdk.PublicKey) (*domain.TokenIdentity, error) {
	token, err := o.tokenStore.GetByMint(ctx, mint.String())
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", mint, err)
	}
	return token, nil
}
