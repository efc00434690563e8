// Package stub provides an in-process Solana ledger for tests. It decodes
// real wire transactions, verifies signatures, and simulates the
// token_basics, associated token, and system programs closely enough for
// submission, ensurer, and lifecycle code to run end to end.
package stub

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	sdk "github.com/gagliardetto/solana-go"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/solana"
)

// Ledger defaults.
const (
	DefaultFee               uint64 = 5000
	DefaultBlockhashValidity uint64 = 150
	MintRent                 uint64 = 1_461_600
	TokenAccountRent         uint64 = 2_039_280
	MintDecimals             uint8  = 9

	startHeight uint64 = 1000
)

// ErrSendFailed is a transport failure injected with FailNextSend.
var ErrSendFailed = errors.New("stub: send failed")

// account is a ledger account. Exactly one of mint/token is set for
// program-owned accounts; wallets carry neither.
type account struct {
	lamports uint64
	owner    sdk.PublicKey
	mint     *mintState
	token    *tokenState
}

type mintState struct {
	authority sdk.PublicKey
	supply    uint64
	decimals  uint8
	metadata  instruction.TokenMetadata
}

type tokenState struct {
	mint   sdk.PublicKey
	owner  sdk.PublicKey
	amount uint64
}

func (a *account) clone() *account {
	c := *a
	if a.mint != nil {
		m := *a.mint
		c.mint = &m
	}
	if a.token != nil {
		t := *a.token
		c.token = &t
	}
	return &c
}

// landed is a transaction the ledger has executed (successfully or not).
type landed struct {
	slot        uint64
	height      uint64
	blockTime   int64
	err         json.RawMessage
	logs        []string
	accountKeys []string
}

// Ledger is a single-node in-memory ledger implementing solana.RPCClient
// and solana.WSClient. It is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	accounts    map[sdk.PublicKey]*account
	blockhashes map[string]uint64 // blockhash -> last valid block height
	txs         map[string]*landed
	watchers    map[string][]*watcher

	height uint64
	slot   uint64

	// Fee is charged per signature to the fee payer.
	Fee uint64
	// BlockhashValidity is the number of blocks a blockhash stays valid.
	BlockhashValidity uint64
	// FinalityDepth is the number of blocks after landing before a
	// transaction reports finalized. Zero finalizes immediately.
	FinalityDepth uint64
	// AutoAdvance adds blocks on every GetBlockHeight call.
	AutoAdvance uint64

	dropNext int
	failNext error
	sends    int
}

// Compile-time interface checks.
var (
	_ solana.RPCClient = (*Ledger)(nil)
	_ solana.WSClient  = (*Ledger)(nil)
)

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:          make(map[sdk.PublicKey]*account),
		blockhashes:       make(map[string]uint64),
		txs:               make(map[string]*landed),
		watchers:          make(map[string][]*watcher),
		height:            startHeight,
		slot:              startHeight,
		Fee:               DefaultFee,
		BlockhashValidity: DefaultBlockhashValidity,
	}
}

// Fund credits lamports to a wallet, creating it if needed.
func (l *Ledger) Fund(pubkey sdk.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(l.accounts, pubkey, lamports)
}

func (l *Ledger) credit(accounts map[sdk.PublicKey]*account, pubkey sdk.PublicKey, lamports uint64) {
	acct, ok := accounts[pubkey]
	if !ok {
		acct = &account{owner: address.SystemProgramID}
		accounts[pubkey] = acct
	}
	acct.lamports += lamports
}

// Advance produces n empty blocks.
func (l *Ledger) Advance(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance(n)
}

func (l *Ledger) advance(n uint64) {
	l.height += n
	l.slot += n
	l.notifyWatchers()
}

// DropNext makes the next n accepted sends return a signature without
// landing the transaction.
func (l *Ledger) DropNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext = n
}

// FailNextSend makes the next SendTransaction return err (ErrSendFailed if nil).
func (l *Ledger) FailNextSend(err error) {
	if err == nil {
		err = ErrSendFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Sends returns the number of SendTransaction calls received.
func (l *Ledger) Sends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sends
}

// Lamports returns an account's lamport balance.
func (l *Ledger) Lamports(pubkey sdk.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[pubkey]; ok {
		return acct.lamports
	}
	return 0
}

// Exists reports whether an account exists.
func (l *Ledger) Exists(pubkey sdk.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[pubkey]
	return ok
}

// TokenBalance returns the amount held by a token account (0 if absent).
func (l *Ledger) TokenBalance(tokenAccount sdk.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[tokenAccount]; ok && acct.token != nil {
		return acct.token.amount
	}
	return 0
}

// Supply returns a mint's supply (0 if absent).
func (l *Ledger) Supply(mint sdk.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[mint]; ok && acct.mint != nil {
		return acct.mint.supply
	}
	return 0
}

// Metadata returns the metadata recorded at mint creation.
func (l *Ledger) Metadata(mint sdk.PublicKey) (instruction.TokenMetadata, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok := l.accounts[mint]; ok && acct.mint != nil {
		return acct.mint.metadata, true
	}
	return instruction.TokenMetadata{}, false
}

// TokenAccounts returns the number of token accounts for a mint.
func (l *Ledger) TokenAccounts(mint sdk.PublicKey) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, acct := range l.accounts {
		if acct.token != nil && acct.token.mint.Equals(mint) {
			n++
		}
	}
	return n
}

// GetLatestBlockhash issues a blockhash valid for BlockhashValidity blocks.
func (l *Ledger) GetLatestBlockhash(_ context.Context, _ solana.Commitment) (*solana.LatestBlockhash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], l.height)
	hash := sdk.Hash(sha256.Sum256(append([]byte("stub-blockhash"), seed[:]...)))

	lastValid := l.height + l.BlockhashValidity
	l.blockhashes[hash.String()] = lastValid

	return &solana.LatestBlockhash{
		Blockhash:            hash.String(),
		LastValidBlockHeight: lastValid,
	}, nil
}

// GetBlockHeight returns the current height, advancing by AutoAdvance first.
func (l *Ledger) GetBlockHeight(_ context.Context, _ solana.Commitment) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AutoAdvance > 0 {
		l.advance(l.AutoAdvance)
	}
	return l.height, nil
}

// SendTransaction decodes, verifies, and executes a signed transaction.
// With preflight enabled, failing transactions are rejected with a -32002
// error and never land. With SkipPreflight they land as failed.
func (l *Ledger) SendTransaction(_ context.Context, rawTx []byte, opts *solana.SendOpts) (string, error) {
	tx, err := sdk.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return "", &solana.RPCError{Code: solana.CodeInvalidParams, Message: fmt.Sprintf("failed to deserialize transaction: %v", err)}
	}
	if len(tx.Signatures) == 0 {
		return "", &solana.RPCError{Code: solana.CodeSignatureVerificationFailure, Message: "Transaction signature verification failure"}
	}
	if err := tx.VerifySignatures(); err != nil {
		return "", &solana.RPCError{Code: solana.CodeSignatureVerificationFailure, Message: "Transaction signature verification failure"}
	}
	signature := tx.Signatures[0].String()
	skipPreflight := opts != nil && opts.SkipPreflight

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sends++
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return "", err
	}

	// Blockhash age is checked before the status cache, so a landed
	// transaction resent after expiry also reports BlockhashNotFound.
	lastValid, ok := l.blockhashes[tx.Message.RecentBlockhash.String()]
	if !ok || l.height > lastValid {
		if skipPreflight {
			// The leader drops it.
			return signature, nil
		}
		return "", preflightError(json.RawMessage(`"BlockhashNotFound"`), nil)
	}

	if _, ok := l.txs[signature]; ok {
		if skipPreflight {
			return signature, nil
		}
		return "", preflightError(json.RawMessage(`"AlreadyProcessed"`), nil)
	}

	if l.dropNext > 0 {
		l.dropNext--
		return signature, nil
	}

	next, txErr, logs := l.execute(tx)
	if txErr != nil && !skipPreflight {
		return "", preflightError(txErr, logs)
	}

	if txErr == nil {
		l.accounts = next
	} else {
		l.chargeFeeOnly(tx)
	}
	l.land(signature, txErr, logs, tx.Message.AccountKeys)
	return signature, nil
}

func preflightError(txErr json.RawMessage, logs []string) *solana.RPCError {
	msg := "Transaction simulation failed"
	if te := solana.ParseTransactionError(txErr); te != nil {
		switch {
		case te.Custom != nil:
			msg = fmt.Sprintf("%s: Error processing Instruction %d: custom program error: 0x%x", msg, te.InstructionIndex, *te.Custom)
		case te.InstructionIndex >= 0:
			msg = fmt.Sprintf("%s: Error processing Instruction %d: %s", msg, te.InstructionIndex, te.InstructionErr)
		default:
			msg = fmt.Sprintf("%s: %s", msg, te.Kind)
		}
	}
	if logs == nil {
		logs = []string{}
	}
	data, _ := json.Marshal(solana.PreflightFailure{Err: txErr, Logs: logs})
	return &solana.RPCError{
		Code:    solana.CodeSendTransactionPreflightFailure,
		Message: msg,
		Data:    data,
	}
}

// land records an executed transaction in a new block.
func (l *Ledger) land(signature string, txErr json.RawMessage, logs []string, keys sdk.PublicKeySlice) {
	l.height++
	l.slot++

	rec := &landed{
		slot:      l.slot,
		height:    l.height,
		blockTime: time.Now().Unix(),
		err:       txErr,
		logs:      logs,
	}
	for _, k := range keys {
		rec.accountKeys = append(rec.accountKeys, k.String())
	}
	l.txs[signature] = rec
	l.notifyWatchers()
}

func (l *Ledger) chargeFeeOnly(tx *sdk.Transaction) {
	payer := tx.Message.AccountKeys[0]
	fee := l.Fee * uint64(len(tx.Signatures))
	if acct, ok := l.accounts[payer]; ok && acct.lamports >= fee {
		acct.lamports -= fee
	}
}

func (l *Ledger) commitment(rec *landed) solana.Commitment {
	if l.height >= rec.height+l.FinalityDepth {
		return solana.CommitmentFinalized
	}
	return solana.CommitmentConfirmed
}

// GetSignatureStatuses returns statuses of landed transactions.
func (l *Ledger) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		rec, ok := l.txs[sig]
		if !ok {
			continue
		}
		status := &solana.SignatureStatus{
			Slot:               rec.slot,
			Err:                rec.err,
			ConfirmationStatus: l.commitment(rec),
		}
		if status.ConfirmationStatus != solana.CommitmentFinalized {
			confirmations := l.height - rec.height
			status.Confirmations = &confirmations
		}
		out[i] = status
	}
	return out, nil
}

// GetTransaction returns a landed transaction, or nil if unknown.
func (l *Ledger) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.txs[signature]
	if !ok {
		return nil, nil
	}

	var txErr interface{}
	if len(rec.err) > 0 {
		_ = json.Unmarshal(rec.err, &txErr)
	}
	return &solana.Transaction{
		Slot:      int64(rec.slot),
		Signature: signature,
		BlockTime: rec.blockTime,
		Meta: &solana.TransactionMeta{
			Err:         txErr,
			LogMessages: append([]string(nil), rec.logs...),
		},
		Message: &solana.TransactionMessage{
			AccountKeys: append([]string(nil), rec.accountKeys...),
		},
	}, nil
}

// GetAccountInfo returns the account encoded with its on-chain layout.
func (l *Ledger) GetAccountInfo(_ context.Context, pubkey string, _ solana.Commitment) (*solana.AccountInfo, error) {
	key, err := sdk.PublicKeyFromBase58(pubkey)
	if err != nil {
		return nil, &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: " + err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[key]
	if !ok {
		return nil, nil
	}

	var data []byte
	switch {
	case acct.mint != nil:
		data, err = solana.EncodeMint(&solana.MintAccount{
			MintAuthority: acct.mint.authority.String(),
			Supply:        acct.mint.supply,
			Decimals:      acct.mint.decimals,
			IsInitialized: true,
		})
	case acct.token != nil:
		data, err = solana.EncodeTokenAccount(&solana.TokenAccount{
			Mint:   acct.token.mint.String(),
			Owner:  acct.token.owner.String(),
			Amount: acct.token.amount,
			State:  solana.TokenAccountInitialized,
		})
	}
	if err != nil {
		return nil, err
	}

	return &solana.AccountInfo{
		Lamports: acct.lamports,
		Owner:    acct.owner.String(),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// GetTokenSupply returns a mint's supply.
func (l *Ledger) GetTokenSupply(_ context.Context, mint string, _ solana.Commitment) (*solana.TokenAmount, error) {
	key, err := sdk.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: " + err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[key]
	if !ok || acct.mint == nil {
		return nil, &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: not a Token mint"}
	}
	return &solana.TokenAmount{Amount: acct.mint.supply, Decimals: acct.mint.decimals}, nil
}

// GetTokenAccountBalance returns a token account's balance.
func (l *Ledger) GetTokenAccountBalance(_ context.Context, tokenAccount string, _ solana.Commitment) (*solana.TokenAmount, error) {
	key, err := sdk.PublicKeyFromBase58(tokenAccount)
	if err != nil {
		return nil, &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: " + err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[key]
	if !ok || acct.token == nil {
		return nil, &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: could not find account"}
	}
	decimals := MintDecimals
	if m, ok := l.accounts[acct.token.mint]; ok && m.mint != nil {
		decimals = m.mint.decimals
	}
	return &solana.TokenAmount{Amount: acct.token.amount, Decimals: decimals}, nil
}

// RequestAirdrop credits lamports and records a landed transfer.
func (l *Ledger) RequestAirdrop(_ context.Context, pubkey string, lamports uint64) (string, error) {
	key, err := sdk.PublicKeyFromBase58(pubkey)
	if err != nil {
		return "", &solana.RPCError{Code: solana.CodeInvalidParams, Message: "Invalid param: " + err.Error()}
	}

	var raw sdk.Signature
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("airdrop signature: %w", err)
	}
	signature := raw.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.credit(l.accounts, key, lamports)
	l.land(signature, nil, []string{
		fmt.Sprintf("Program %s invoke [1]", address.SystemProgramID),
		fmt.Sprintf("Program %s success", address.SystemProgramID),
	}, sdk.PublicKeySlice{key, address.SystemProgramID})
	return signature, nil
}
