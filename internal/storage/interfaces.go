package storage

import (
	"context"

	"github.com/0xabstracted/token-basics/internal/domain"
)

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a created token. Returns ErrDuplicateKey if mint exists.
	Insert(ctx context.Context, t *domain.TokenIdentity) error

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenIdentity, error)

	// List returns all tokens ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.TokenIdentity, error)
}

// PendingTxStore is the journal of submitted transactions.
type PendingTxStore interface {
	// Insert journals a transaction before it is sent. Returns ErrDuplicateKey if signature exists.
	Insert(ctx context.Context, tx *domain.PendingTransaction) error

	// UpdateStatus records a resolution. Slot and errMsg may be nil.
	// Returns ErrNotFound if signature does not exist.
	UpdateStatus(ctx context.Context, signature string, status domain.TxStatus, slot *uint64, errMsg *string) error

	// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.PendingTransaction, error)

	// GetUnresolved returns SUBMITTED and UNKNOWN transactions ordered by submitted_at ASC.
	GetUnresolved(ctx context.Context) ([]*domain.PendingTransaction, error)

	// GetByRun returns a run's transactions ordered by submitted_at ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.PendingTransaction, error)
}

// SnapshotStore provides access to balance_snapshots storage.
type SnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (run_id, seq) exists.
	Insert(ctx context.Context, s *domain.BalanceSnapshot) error

	// GetByRun returns a run's snapshots ordered by seq ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.BalanceSnapshot, error)

	// GetByMint returns all snapshots of a mint ordered by observed_at, seq ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.BalanceSnapshot, error)
}
