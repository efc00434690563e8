// Package address derives the deterministic addresses that holder accounts
// must occupy and defines the well-known program IDs.
package address

import "github.com/gagliardetto/solana-go"

// Program and sysvar IDs referenced by the token_basics instructions.
var (
	// TokenBasicsProgramID is the deployed token_basics program.
	TokenBasicsProgramID = solana.MustPublicKeyFromBase58("FGSYB3dMqy2o4vkRZ2EX3Y67RcgrZzTq611BLwuWQ212")

	// Token2022ProgramID owns every mint and holder account created here.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID derives and creates holder accounts.
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	RentSysvarID    = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)
