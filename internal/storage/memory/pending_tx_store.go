package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/storage"
)

// PendingTxStore is an in-memory implementation of storage.PendingTxStore.
type PendingTxStore struct {
	mu    sync.RWMutex
	bySig map[string]*domain.PendingTransaction
}

// NewPendingTxStore creates a new in-memory pending transaction store.
func NewPendingTxStore() *PendingTxStore {
	return &PendingTxStore{
		bySig: make(map[string]*domain.PendingTransaction),
	}
}

// Insert journals a transaction. Returns ErrDuplicateKey if signature exists.
func (s *PendingTxStore) Insert(_ context.Context, tx *domain.PendingTransaction) error {
	if tx == nil || tx.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySig[tx.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	s.bySig[tx.Signature] = copyPending(tx)
	return nil
}

// UpdateStatus records a resolution. Returns ErrNotFound if signature does not exist.
func (s *PendingTxStore) UpdateStatus(_ context.Context, signature string, status domain.TxStatus, slot *uint64, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.bySig[signature]
	if !exists {
		return storage.ErrNotFound
	}

	tx.Status = status
	if slot != nil {
		v := *slot
		tx.Slot = &v
	}
	if errMsg != nil {
		v := *errMsg
		tx.Error = &v
	}
	tx.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// GetBySignature retrieves a transaction. Returns ErrNotFound if not exists.
func (s *PendingTxStore) GetBySignature(_ context.Context, signature string) (*domain.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.bySig[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyPending(tx), nil
}

// GetUnresolved returns SUBMITTED and UNKNOWN transactions ordered by submitted_at ASC.
func (s *PendingTxStore) GetUnresolved(_ context.Context) ([]*domain.PendingTransaction, error) {
	return s.filter(func(tx *domain.PendingTransaction) bool {
		return !tx.Status.Resolved()
	}), nil
}

// GetByRun returns a run's transactions ordered by submitted_at ASC.
func (s *PendingTxStore) GetByRun(_ context.Context, runID string) ([]*domain.PendingTransaction, error) {
	return s.filter(func(tx *domain.PendingTransaction) bool {
		return tx.RunID == runID
	}), nil
}

func (s *PendingTxStore) filter(keep func(*domain.PendingTransaction) bool) []*domain.PendingTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PendingTransaction
	for _, tx := range s.bySig {
		if keep(tx) {
			result = append(result, copyPending(tx))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SubmittedAt != result[j].SubmittedAt {
			return result[i].SubmittedAt < result[j].SubmittedAt
		}
		return result[i].Signature < result[j].Signature
	})
	return result
}

func copyPending(tx *domain.PendingTransaction) *domain.PendingTransaction {
	c := *tx
	c.RawTx = append([]byte(nil), tx.RawTx...)
	if tx.Slot != nil {
		v := *tx.Slot
		c.Slot = &v
	}
	if tx.Error != nil {
		v := *tx.Error
		c.Error = &v
	}
	return &c
}

var _ storage.PendingTxStore = (*PendingTxStore)(nil)
