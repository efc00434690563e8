package solana

import "encoding/json"

// Commitment is the ledger confirmation level a query or wait targets.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Reached reports whether status c satisfies the target commitment.
func (c Commitment) Reached(target Commitment) bool {
	return commitmentRank(c) >= commitmentRank(target)
}

func commitmentRank(c Commitment) int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// LatestBlockhash from getLatestBlockhash.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SendOpts configures sendTransaction.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
	MaxRetries          *uint
}

// SignatureStatus from getSignatureStatuses. A nil *SignatureStatus means
// the ledger has no record of the signature.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                json.RawMessage // null on success
	ConfirmationStatus Commitment
}

// Failed reports whether the transaction executed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// TokenAmount from getTokenSupply and getTokenAccountBalance.
type TokenAmount struct {
	Amount   uint64
	Decimals uint8
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
