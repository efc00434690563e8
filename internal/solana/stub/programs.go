package stub

import (
	"encoding/json"
	"fmt"
	"math"

	sdk "github.com/gagliardetto/solana-go"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/solana"
)

// Token program error codes (spl-token / Token-2022 TokenError).
const (
	tokenErrInsufficientFunds uint32 = 1
	tokenErrOwnerMismatch     uint32 = 4
	tokenErrOverflow          uint32 = 14
)

// System program error codes.
const (
	systemErrAccountAlreadyInUse        uint32 = 0
	systemErrResultWithNegativeLamports uint32 = 1
)

// Anchor framework error codes.
const (
	anchorErrInstructionFallbackNotFound  uint32 = 101
	anchorErrInstructionDidNotDeserialize uint32 = 102
	anchorErrConstraintAssociated         uint32 = 2009
	anchorErrConstraintTokenMint          uint32 = 2014
	anchorErrAccountNotEnoughKeys         uint32 = 3005
	anchorErrInvalidProgramID             uint32 = 3008
	anchorErrAccountNotSigner             uint32 = 3010
	anchorErrAccountNotInitialized        uint32 = 3012
)

// programError aborts the transaction at the current instruction.
type programError struct {
	custom  *uint32
	builtin string
}

func customErr(code uint32) *programError { return &programError{custom: &code} }

func builtinErr(name string) *programError { return &programError{builtin: name} }

// execCtx is one transaction's execution against a copy of ledger state.
type execCtx struct {
	accounts map[sdk.PublicKey]*account
	signers  map[sdk.PublicKey]bool
	logs     []string
}

func (x *execCtx) log(format string, args ...interface{}) {
	x.logs = append(x.logs, fmt.Sprintf(format, args...))
}

// execute runs every instruction of tx against a copy of the ledger state
// and returns the new state, the transaction error (nil on success), and
// the program logs.
func (l *Ledger) execute(tx *sdk.Transaction) (map[sdk.PublicKey]*account, json.RawMessage, []string) {
	x := &execCtx{
		accounts: make(map[sdk.PublicKey]*account, len(l.accounts)),
		signers:  make(map[sdk.PublicKey]bool),
	}
	for k, v := range l.accounts {
		x.accounts[k] = v.clone()
	}

	msg := tx.Message
	keys := msg.AccountKeys
	for i := 0; i < int(msg.Header.NumRequiredSignatures) && i < len(keys); i++ {
		x.signers[keys[i]] = true
	}

	// Fees are charged before execution.
	fee := l.Fee * uint64(len(tx.Signatures))
	payer, ok := x.accounts[keys[0]]
	if !ok || payer.lamports < fee {
		return nil, json.RawMessage(`"InsufficientFundsForFee"`), nil
	}
	payer.lamports -= fee

	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, json.RawMessage(`"InvalidAccountIndex"`), x.logs
		}
		programID := keys[ci.ProgramIDIndex]
		accts := make([]sdk.PublicKey, 0, len(ci.Accounts))
		for _, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, json.RawMessage(`"InvalidAccountIndex"`), x.logs
			}
			accts = append(accts, keys[idx])
		}

		x.log("Program %s invoke [1]", programID)
		perr := x.dispatch(programID, accts, ci.Data)
		if perr != nil {
			if perr.custom != nil {
				x.log("Program %s failed: custom program error: 0x%x", programID, *perr.custom)
			} else {
				x.log("Program %s failed: %s", programID, perr.builtin)
			}
			return nil, solana.InstructionErrorJSON(i, perr.builtin, perr.custom), x.logs
		}
		x.log("Program %s success", programID)
	}

	return x.accounts, nil, x.logs
}

func (x *execCtx) dispatch(programID sdk.PublicKey, accts []sdk.PublicKey, data []byte) *programError {
	switch {
	case programID.Equals(address.TokenBasicsProgramID):
		return x.tokenBasics(accts, data)
	case programID.Equals(address.AssociatedTokenProgramID):
		return x.associatedToken(accts, data)
	}
	return builtinErr("UnsupportedProgramId")
}

// anchorError logs in Anchor's format and returns the custom code.
func (x *execCtx) anchorError(account string, code uint32, name, message string) *programError {
	if account != "" {
		x.log("Program log: AnchorError caused by account: %s. Error Code: %s. Error Number: %d. Error Message: %s.", account, name, code, message)
	} else {
		x.log("Program log: AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", name, code, message)
	}
	return customErr(code)
}

func (x *execCtx) tokenBasics(accts []sdk.PublicKey, data []byte) *programError {
	decoded, err := instruction.Decode(address.TokenBasicsProgramID, data)
	if err != nil {
		return x.anchorError("", anchorErrInstructionDidNotDeserialize, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction")
	}

	switch decoded.Kind {
	case instruction.KindCreateToken:
		x.log("Program log: Instruction: CreateToken")
		return x.createToken(accts, decoded.Metadata)
	case instruction.KindMintToken:
		x.log("Program log: Instruction: MintToken")
		return x.mintToken(accts, decoded.Amount)
	case instruction.KindTransferToken:
		x.log("Program log: Instruction: TransferToken")
		return x.transferToken(accts, decoded.Amount)
	case instruction.KindBurnToken:
		x.log("Program log: Instruction: BurnToken")
		return x.burnToken(accts, decoded.Amount)
	}
	return x.anchorError("", anchorErrInstructionFallbackNotFound, "InstructionFallbackNotFound", "Fallback functions are not supported")
}

func (x *execCtx) requireKeys(accts []sdk.PublicKey, n int) *programError {
	if len(accts) < n {
		return x.anchorError("", anchorErrAccountNotEnoughKeys, "AccountNotEnoughKeys", "Not enough account keys given to the instruction")
	}
	return nil
}

func (x *execCtx) requireSigner(name string, key sdk.PublicKey) *programError {
	if !x.signers[key] {
		return x.anchorError(name, anchorErrAccountNotSigner, "AccountNotSigner", "The given account did not sign")
	}
	return nil
}

func (x *execCtx) requireProgram(name string, got, want sdk.PublicKey) *programError {
	if !got.Equals(want) {
		return x.anchorError(name, anchorErrInvalidProgramID, "InvalidProgramId", "Program ID was not as expected")
	}
	return nil
}

func (x *execCtx) requireMint(name string, key sdk.PublicKey) (*mintState, *programError) {
	acct, ok := x.accounts[key]
	if !ok || acct.mint == nil {
		return nil, x.anchorError(name, anchorErrAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
	}
	return acct.mint, nil
}

// holder resolves a token account that must sit at the derived address for
// (owner, mint). With initIfNeeded a missing account is created and paid
// for by payer.
func (x *execCtx) holder(name string, key, owner, mint, payer sdk.PublicKey, initIfNeeded bool) (*tokenState, *programError) {
	if !key.Equals(address.DeriveHolderAccount(owner, mint)) {
		return nil, x.anchorError(name, anchorErrConstraintAssociated, "ConstraintAssociated", "An associated constraint was violated")
	}

	acct, ok := x.accounts[key]
	if !ok {
		if !initIfNeeded {
			return nil, x.anchorError(name, anchorErrAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
		}
		if perr := x.createAccount(payer, key, TokenAccountRent); perr != nil {
			return nil, perr
		}
		acct = x.accounts[key]
		acct.owner = address.Token2022ProgramID
		acct.token = &tokenState{mint: mint, owner: owner}
		return acct.token, nil
	}

	if acct.token == nil || !acct.token.mint.Equals(mint) {
		return nil, x.anchorError(name, anchorErrConstraintTokenMint, "ConstraintTokenMint", "A token mint constraint was violated")
	}
	return acct.token, nil
}

// createAccount mirrors the system program's allocate path used by Anchor
// init and the associated token program.
func (x *execCtx) createAccount(payer, key sdk.PublicKey, rent uint64) *programError {
	x.log("Program %s invoke [2]", address.SystemProgramID)
	if _, exists := x.accounts[key]; exists {
		x.log("Allocate: account Address { address: %s, base: None } already in use", key)
		x.log("Program %s failed: custom program error: 0x%x", address.SystemProgramID, systemErrAccountAlreadyInUse)
		return customErr(systemErrAccountAlreadyInUse)
	}
	p, ok := x.accounts[payer]
	if !ok || p.lamports < rent {
		have := uint64(0)
		if ok {
			have = p.lamports
		}
		x.log("Transfer: insufficient lamports %d, need %d", have, rent)
		x.log("Program %s failed: custom program error: 0x%x", address.SystemProgramID, systemErrResultWithNegativeLamports)
		return customErr(systemErrResultWithNegativeLamports)
	}
	p.lamports -= rent
	x.accounts[key] = &account{lamports: rent}
	x.log("Program %s success", address.SystemProgramID)
	return nil
}

func (x *execCtx) tokenError(code uint32, message string) *programError {
	x.log("Program %s invoke [2]", address.Token2022ProgramID)
	x.log("Program log: Error: %s", message)
	x.log("Program %s failed: custom program error: 0x%x", address.Token2022ProgramID, code)
	return customErr(code)
}

// create_token: authority(w,s), mint(w,s), token_program_2022, system_program, rent
func (x *execCtx) createToken(accts []sdk.PublicKey, meta instruction.TokenMetadata) *programError {
	if perr := x.requireKeys(accts, 5); perr != nil {
		return perr
	}
	authority, mint := accts[0], accts[1]
	if perr := x.requireSigner("authority", authority); perr != nil {
		return perr
	}
	if perr := x.requireSigner("mint", mint); perr != nil {
		return perr
	}
	if perr := x.requireProgram("token_program_2022", accts[2], address.Token2022ProgramID); perr != nil {
		return perr
	}
	if perr := x.requireProgram("system_program", accts[3], address.SystemProgramID); perr != nil {
		return perr
	}

	if perr := x.createAccount(authority, mint, MintRent); perr != nil {
		return perr
	}
	acct := x.accounts[mint]
	acct.owner = address.Token2022ProgramID
	acct.mint = &mintState{
		authority: authority,
		decimals:  MintDecimals,
		metadata:  meta,
	}
	x.log("Program log: Token mint created successfully.")
	return nil
}

// mint_token: authority(w,s), recipient, mint(w), recipient_token_account(w),
// token_program_2022, associated_token_program, system_program, rent
func (x *execCtx) mintToken(accts []sdk.PublicKey, amount uint64) *programError {
	if perr := x.requireKeys(accts, 8); perr != nil {
		return perr
	}
	authority, recipient, mintKey, ata := accts[0], accts[1], accts[2], accts[3]
	if perr := x.requireSigner("authority", authority); perr != nil {
		return perr
	}
	if perr := x.requireProgram("token_program_2022", accts[4], address.Token2022ProgramID); perr != nil {
		return perr
	}
	if perr := x.requireProgram("associated_token_program", accts[5], address.AssociatedTokenProgramID); perr != nil {
		return perr
	}

	mint, perr := x.requireMint("mint", mintKey)
	if perr != nil {
		return perr
	}
	holder, perr := x.holder("recipient_token_account", ata, recipient, mintKey, authority, true)
	if perr != nil {
		return perr
	}

	if !mint.authority.Equals(authority) {
		return x.tokenError(tokenErrOwnerMismatch, "owner does not match")
	}
	if mint.supply > math.MaxUint64-amount || holder.amount > math.MaxUint64-amount {
		return x.tokenError(tokenErrOverflow, "Operation overflowed")
	}
	mint.supply += amount
	holder.amount += amount
	x.log("Program log: Minted %d tokens", amount)
	return nil
}

// transfer_token: authority(w,s), mint, sender_token_account(w),
// recipient_token_account(w), recipient, token_program_2022,
// associated_token_program, system_program, rent
func (x *execCtx) transferToken(accts []sdk.PublicKey, amount uint64) *programError {
	if perr := x.requireKeys(accts, 9); perr != nil {
		return perr
	}
	sender, mintKey, fromKey, toKey, recipient := accts[0], accts[1], accts[2], accts[3], accts[4]
	if perr := x.requireSigner("authority", sender); perr != nil {
		return perr
	}
	if perr := x.requireProgram("token_program_2022", accts[5], address.Token2022ProgramID); perr != nil {
		return perr
	}
	if perr := x.requireProgram("associated_token_program", accts[6], address.AssociatedTokenProgramID); perr != nil {
		return perr
	}

	if _, perr := x.requireMint("mint", mintKey); perr != nil {
		return perr
	}
	from, perr := x.holder("sender_token_account", fromKey, sender, mintKey, sender, false)
	if perr != nil {
		return perr
	}
	to, perr := x.holder("recipient_token_account", toKey, recipient, mintKey, sender, true)
	if perr != nil {
		return perr
	}

	if from.amount < amount {
		return x.tokenError(tokenErrInsufficientFunds, "insufficient funds")
	}
	if from == to {
		x.log("Program log: Transferred %d tokens", amount)
		return nil
	}
	if to.amount > math.MaxUint64-amount {
		return x.tokenError(tokenErrOverflow, "Operation overflowed")
	}
	from.amount -= amount
	to.amount += amount
	x.log("Program log: Transferred %d tokens", amount)
	return nil
}

// burn_token: authority(w,s), mint(w), token_account(w), token_program_2022, system_program
func (x *execCtx) burnToken(accts []sdk.PublicKey, amount uint64) *programError {
	if perr := x.requireKeys(accts, 5); perr != nil {
		return perr
	}
	authority, mintKey, ataKey := accts[0], accts[1], accts[2]
	if perr := x.requireSigner("authority", authority); perr != nil {
		return perr
	}
	if perr := x.requireProgram("token_program_2022", accts[3], address.Token2022ProgramID); perr != nil {
		return perr
	}

	mint, perr := x.requireMint("mint", mintKey)
	if perr != nil {
		return perr
	}
	acct, ok := x.accounts[ataKey]
	if !ok || acct.token == nil {
		return x.anchorError("token_account", anchorErrAccountNotInitialized, "AccountNotInitialized", "The program expected this account to be already initialized")
	}
	holder := acct.token
	if !holder.mint.Equals(mintKey) {
		return x.anchorError("token_account", anchorErrConstraintTokenMint, "ConstraintTokenMint", "A token mint constraint was violated")
	}

	// The token program requires the account owner to sign a burn.
	if !holder.owner.Equals(authority) {
		return x.tokenError(tokenErrOwnerMismatch, "owner does not match")
	}
	if holder.amount < amount {
		return x.tokenError(tokenErrInsufficientFunds, "insufficient funds")
	}
	holder.amount -= amount
	mint.supply -= amount
	x.log("Program log: Burned %d tokens", amount)
	return nil
}

// associatedToken simulates the associated token program's Create:
// payer(w,s), ata(w), owner, mint, system_program, token_program.
func (x *execCtx) associatedToken(accts []sdk.PublicKey, data []byte) *programError {
	decoded, err := instruction.Decode(address.AssociatedTokenProgramID, data)
	if err != nil || decoded.Kind != instruction.KindCreateHolder {
		return builtinErr("InvalidInstructionData")
	}
	x.log("Program log: Create")

	if len(accts) < 6 {
		return builtinErr("NotEnoughAccountKeys")
	}
	payer, ata, owner, mintKey := accts[0], accts[1], accts[2], accts[3]
	if !x.signers[payer] {
		return builtinErr("MissingRequiredSignature")
	}
	if !ata.Equals(address.DeriveHolderAccount(owner, mintKey)) {
		x.log("Error: Associated address does not match seed derivation")
		return builtinErr("InvalidSeeds")
	}
	if !accts[5].Equals(address.Token2022ProgramID) {
		return builtinErr("IncorrectProgramId")
	}
	if m, ok := x.accounts[mintKey]; !ok || m.mint == nil {
		return builtinErr("IllegalOwner")
	}

	if perr := x.createAccount(payer, ata, TokenAccountRent); perr != nil {
		return perr
	}
	acct := x.accounts[ata]
	acct.owner = address.Token2022ProgramID
	acct.token = &tokenState{mint: mintKey, owner: owner}
	x.log("Program log: Initialize the associated token account")
	return nil
}
