package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/storage"
)

type snapshotKey struct {
	runID string
	seq   uint32
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]*domain.BalanceSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[snapshotKey]*domain.BalanceSnapshot),
	}
}

// Insert adds a snapshot. Returns ErrDuplicateKey if (run_id, seq) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.BalanceSnapshot) error {
	if snap == nil || snap.RunID == "" || snap.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey{runID: snap.RunID, seq: snap.Seq}
	if _, exists := s.snapshots[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.snapshots[key] = copySnapshot(snap)
	return nil
}

// GetByRun returns a run's snapshots ordered by seq ASC.
func (s *SnapshotStore) GetByRun(_ context.Context, runID string) ([]*domain.BalanceSnapshot, error) {
	result := s.filter(func(snap *domain.BalanceSnapshot) bool {
		return snap.RunID == runID
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// GetByMint returns a mint's snapshots ordered by observed_at, seq ASC.
func (s *SnapshotStore) GetByMint(_ context.Context, mint string) ([]*domain.BalanceSnapshot, error) {
	return s.filter(func(snap *domain.BalanceSnapshot) bool {
		return snap.Mint == mint
	}), nil
}

func (s *SnapshotStore) filter(keep func(*domain.BalanceSnapshot) bool) []*domain.BalanceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceSnapshot
	for _, snap := range s.snapshots {
		if keep(snap) {
			result = append(result, copySnapshot(snap))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ObservedAt != result[j].ObservedAt {
			return result[i].ObservedAt < result[j].ObservedAt
		}
		return result[i].Seq < result[j].Seq
	})
	return result
}

func copySnapshot(snap *domain.BalanceSnapshot) *domain.BalanceSnapshot {
	c := *snap
	c.Holders = append([]domain.HolderBalance(nil), snap.Holders...)
	return &c
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
