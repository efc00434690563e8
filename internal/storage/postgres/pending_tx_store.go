package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/storage"
)

// PendingTxStore implements storage.PendingTxStore using PostgreSQL.
type PendingTxStore struct {
	pool *Pool
}

// NewPendingTxStore creates a new PendingTxStore.
func NewPendingTxStore(pool *Pool) *PendingTxStore {
	return &PendingTxStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PendingTxStore = (*PendingTxStore)(nil)

const pendingColumns = `signature, run_id, step, mint, raw_tx, blockhash, last_valid_block_height,
	status, slot, error, submitted_at, updated_at`

// Insert journals a transaction. Returns ErrDuplicateKey if signature exists.
func (s *PendingTxStore) Insert(ctx context.Context, tx *domain.PendingTransaction) error {
	if tx == nil || tx.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pending_transactions (` + pendingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		tx.Signature,
		tx.RunID,
		string(tx.Step),
		tx.Mint,
		tx.RawTx,
		tx.Blockhash,
		int64(tx.LastValidBlockHeight),
		string(tx.Status),
		toNullableInt64(tx.Slot),
		tx.Error,
		tx.SubmittedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pending transaction: %w", err)
	}
	return nil
}

// UpdateStatus records a resolution. Nil slot or errMsg keep the stored value.
func (s *PendingTxStore) UpdateStatus(ctx context.Context, signature string, status domain.TxStatus, slot *uint64, errMsg *string) error {
	query := `
		UPDATE pending_transactions
		SET status = $2,
			slot = COALESCE($3, slot),
			error = COALESCE($4, error),
			updated_at = $5
		WHERE signature = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		signature,
		string(status),
		toNullableInt64(slot),
		errMsg,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("update pending transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
func (s *PendingTxStore) GetBySignature(ctx context.Context, signature string) (*domain.PendingTransaction, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_transactions WHERE signature = $1`

	tx, err := scanPendingTx(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pending transaction: %w", err)
	}
	return tx, nil
}

// GetUnresolved returns SUBMITTED and UNKNOWN transactions ordered by submitted_at ASC.
func (s *PendingTxStore) GetUnresolved(ctx context.Context) ([]*domain.PendingTransaction, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE status IN ($1, $2)
		ORDER BY submitted_at ASC, signature ASC
	`
	return s.query(ctx, query, string(domain.TxStatusSubmitted), string(domain.TxStatusUnknown))
}

// GetByRun returns a run's transactions ordered by submitted_at ASC.
func (s *PendingTxStore) GetByRun(ctx context.Context, runID string) ([]*domain.PendingTransaction, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_transactions
		WHERE run_id = $1
		ORDER BY submitted_at ASC, signature ASC
	`
	return s.query(ctx, query, runID)
}

func (s *PendingTxStore) query(ctx context.Context, query string, args ...any) ([]*domain.PendingTransaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.PendingTransaction
	for rows.Next() {
		tx, err := scanPendingTx(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending transactions: %w", err)
	}
	return txs, nil
}

func scanPendingTx(row pgx.Row) (*domain.PendingTransaction, error) {
	var tx domain.PendingTransaction
	var step, status string
	var lastValid int64
	var slot *int64

	err := row.Scan(
		&tx.Signature,
		&tx.RunID,
		&step,
		&tx.Mint,
		&tx.RawTx,
		&tx.Blockhash,
		&lastValid,
		&status,
		&slot,
		&tx.Error,
		&tx.SubmittedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Step = domain.Step(step)
	tx.Status = domain.TxStatus(status)
	tx.LastValidBlockHeight = uint64(lastValid)
	if slot != nil {
		v := uint64(*slot)
		tx.Slot = &v
	}
	return &tx, nil
}

// toNullableInt64 maps an optional unsigned value onto BIGINT.
func toNullableInt64(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}
