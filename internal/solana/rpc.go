package solana

import "context"

// RPCClient defines the Solana JSON-RPC surface used to submit and confirm
// transactions and to query token state.
type RPCClient interface {
	// GetLatestBlockhash returns a recent blockhash and the last block height
	// at which transactions referencing it are valid.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)

	// SendTransaction broadcasts a signed, wire-encoded transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte, opts *SendOpts) (string, error)

	// GetSignatureStatuses returns one entry per signature; nil entries are unknown.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// GetTransaction retrieves a transaction by signature. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string, commitment Commitment) (*AccountInfo, error)

	// GetTokenSupply returns the total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string, commitment Commitment) (*TokenAmount, error)

	// GetTokenAccountBalance returns the balance of a token account.
	GetTokenAccountBalance(ctx context.Context, account string, commitment Commitment) (*TokenAmount, error)

	// RequestAirdrop requests lamports on test clusters.
	RequestAirdrop(ctx context.Context, pubkey string, lamports uint64) (string, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
