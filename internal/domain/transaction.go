package domain

// TxStatus is the resolution state of a submitted transaction.
type TxStatus string

const (
	// TxStatusSubmitted: accepted by the RPC node, not yet confirmed.
	TxStatusSubmitted TxStatus = "SUBMITTED"
	// TxStatusConfirmed: reached the target commitment without error.
	TxStatusConfirmed TxStatus = "CONFIRMED"
	// TxStatusFailed: rejected, executed with an error, or expired unlanded.
	TxStatusFailed TxStatus = "FAILED"
	// TxStatusUnknown: the wait timed out; the transaction may still land.
	TxStatusUnknown TxStatus = "UNKNOWN"
)

// Resolved reports whether the status is final.
func (s TxStatus) Resolved() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// Step labels the lifecycle operation a transaction performs.
type Step string

const (
	StepCreate       Step = "create"
	StepEnsureHolder Step = "ensure_holder"
	StepMint         Step = "mint"
	StepTransfer     Step = "transfer"
	StepBurn         Step = "burn"
)

// PendingTransaction is a signed transaction handed to the ledger.
// Corresponds to pending_transactions table in PostgreSQL.
type PendingTransaction struct {
	Signature            string // PRIMARY KEY, base58 first signature
	RunID                string // lifecycle run, empty for ad-hoc calls
	Step                 Step
	Mint                 string
	RawTx                []byte // signed wire bytes, resent verbatim
	Blockhash            string
	LastValidBlockHeight uint64
	Status               TxStatus
	Slot                 *uint64 // slot the transaction landed in (nullable)
	Error                *string // failure diagnostic (nullable)
	SubmittedAt          int64   // ms
	UpdatedAt            int64   // ms
}
