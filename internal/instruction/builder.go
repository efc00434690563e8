// Package instruction builds token_basics and associated-token-account
// instructions with the exact account order and argument layout the
// on-chain programs expect.
package instruction

import (
	"github.com/gagliardetto/solana-go"

	"github.com/0xabstracted/token-basics/internal/address"
)

// Kind identifies a lifecycle instruction.
type Kind string

const (
	KindCreateToken   Kind = "create_token"
	KindMintToken     Kind = "mint_token"
	KindTransferToken Kind = "transfer_token"
	KindBurnToken     Kind = "burn_token"
	KindCreateHolder  Kind = "create_holder_account"
	KindUnknown       Kind = "unknown"
)

// Method selectors of the token_basics program.
var (
	CreateTokenDiscriminator   = discriminator("create_token")
	MintTokenDiscriminator     = discriminator("mint_token")
	TransferTokenDiscriminator = discriminator("transfer_token")
	BurnTokenDiscriminator     = discriminator("burn_token")
)

// TokenMetadata are the create_token arguments.
type TokenMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// CreateToken initializes a new mint owned by authority.
//
// Accounts:
//  0. [writable, signer] authority (payer and mint authority)
//  1. [writable, signer] mint
//  2. [] token_program_2022
//  3. [] system_program
//  4. [] rent
func CreateToken(authority, mint solana.PublicKey, meta TokenMetadata) *solana.GenericInstruction {
	data := newEncoder(CreateTokenDiscriminator).
		str(meta.Name).
		str(meta.Symbol).
		str(meta.URI).
		bytes()

	return solana.NewInstruction(
		address.TokenBasicsProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(mint, true, true),
			solana.NewAccountMeta(address.Token2022ProgramID, false, false),
			solana.NewAccountMeta(address.SystemProgramID, false, false),
			solana.NewAccountMeta(address.RentSysvarID, false, false),
		},
		data,
	)
}

// MintToken mints amount into recipient's holder account.
//
// Accounts:
//  0. [writable, signer] authority
//  1. [] recipient
//  2. [writable] mint
//  3. [writable] recipient_token_account
//  4. [] token_program_2022
//  5. [] associated_token_program
//  6. [] system_program
//  7. [] rent
func MintToken(authority, recipient, mint solana.PublicKey, amount uint64) *solana.GenericInstruction {
	return solana.NewInstruction(
		address.TokenBasicsProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(recipient, false, false),
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(address.DeriveHolderAccount(recipient, mint), true, false),
			solana.NewAccountMeta(address.Token2022ProgramID, false, false),
			solana.NewAccountMeta(address.AssociatedTokenProgramID, false, false),
			solana.NewAccountMeta(address.SystemProgramID, false, false),
			solana.NewAccountMeta(address.RentSysvarID, false, false),
		},
		newEncoder(MintTokenDiscriminator).u64(amount).bytes(),
	)
}

// TransferToken moves amount from sender's holder account to recipient's.
// The sender owner signs as authority.
//
// Accounts:
//  0. [writable, signer] authority (sender owner)
//  1. [] mint
//  2. [writable] sender_token_account
//  3. [writable] recipient_token_account
//  4. [] recipient
//  5. [] token_program_2022
//  6. [] associated_token_program
//  7. [] system_program
//  8. [] rent
func TransferToken(sender, recipient, mint solana.PublicKey, amount uint64) *solana.GenericInstruction {
	return solana.NewInstruction(
		address.TokenBasicsProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(sender, true, true),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(address.DeriveHolderAccount(sender, mint), true, false),
			solana.NewAccountMeta(address.DeriveHolderAccount(recipient, mint), true, false),
			solana.NewAccountMeta(recipient, false, false),
			solana.NewAccountMeta(address.Token2022ProgramID, false, false),
			solana.NewAccountMeta(address.AssociatedTokenProgramID, false, false),
			solana.NewAccountMeta(address.SystemProgramID, false, false),
			solana.NewAccountMeta(address.RentSysvarID, false, false),
		},
		newEncoder(TransferTokenDiscriminator).u64(amount).bytes(),
	)
}

// BurnToken burns amount from owner's holder account and reduces supply.
//
// Accounts:
//  0. [writable, signer] authority
//  1. [writable] mint
//  2. [writable] token_account
//  3. [] token_program_2022
//  4. [] system_program
func BurnToken(authority, owner, mint solana.PublicKey, amount uint64) *solana.GenericInstruction {
	return solana.NewInstruction(
		address.TokenBasicsProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(address.DeriveHolderAccount(owner, mint), true, false),
			solana.NewAccountMeta(address.Token2022ProgramID, false, false),
			solana.NewAccountMeta(address.SystemProgramID, false, false),
		},
		newEncoder(BurnTokenDiscriminator).u64(amount).bytes(),
	)
}

// CreateHolderAccount creates owner's associated token account for mint.
// Fails with "already in use" when the account exists.
//
// Accounts:
//  0. [writable, signer] payer
//  1. [writable] associated token account
//  2. [] owner
//  3. [] mint
//  4. [] system_program
//  5. [] token_program_2022
func CreateHolderAccount(payer, owner, mint solana.PublicKey) *solana.GenericInstruction {
	return solana.NewInstruction(
		address.AssociatedTokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(address.DeriveHolderAccount(owner, mint), true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(address.SystemProgramID, false, false),
			solana.NewAccountMeta(address.Token2022ProgramID, false, false),
		},
		[]byte{},
	)
}
