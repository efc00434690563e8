package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/observability"
	"github.com/0xabstracted/token-basics/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Each snapshot is stored as one row per holder.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if (run_id, seq) exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.BalanceSnapshot) (err error) {
	if snap == nil || snap.RunID == "" || snap.Mint == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert", time.Now(), &err)

	// MergeTree does not enforce uniqueness
	exists, err := s.exists(ctx, snap.RunID, snap.Seq)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO balance_snapshots (
			run_id, mint, seq, step, state, supply,
			holder_index, owner, account, amount, observed_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	holders := snap.Holders
	if len(holders) == 0 {
		holders = []domain.HolderBalance{{}}
	}
	for i, h := range holders {
		err = batch.Append(
			snap.RunID, snap.Mint, snap.Seq, string(snap.Step), string(snap.State), snap.Supply,
			uint32(i), h.Owner, h.Account, h.Amount, uint64(snap.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRun returns a run's snapshots ordered by seq ASC.
func (s *SnapshotStore) GetByRun(ctx context.Context, runID string) (_ []*domain.BalanceSnapshot, err error) {
	defer observe("select", time.Now(), &err)

	query := `
		SELECT run_id, mint, seq, step, state, supply, owner, account, amount, observed_at_ms
		FROM balance_snapshots
		WHERE run_id = ?
		ORDER BY seq ASC, holder_index ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByMint returns all snapshots of a mint ordered by observed_at, seq ASC.
func (s *SnapshotStore) GetByMint(ctx context.Context, mint string) (_ []*domain.BalanceSnapshot, err error) {
	defer observe("select", time.Now(), &err)

	query := `
		SELECT run_id, mint, seq, step, state, supply, owner, account, amount, observed_at_ms
		FROM balance_snapshots
		WHERE mint = ?
		ORDER BY observed_at_ms ASC, seq ASC, run_id ASC, holder_index ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// observe records the latency and outcome of a store call.
func observe(operation string, start time.Time, err *error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), *err)
}

func (s *SnapshotStore) exists(ctx context.Context, runID string, seq uint32) (bool, error) {
	query := `
		SELECT count(*) FROM balance_snapshots
		WHERE run_id = ? AND seq = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, seq).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanSnapshots folds consecutive holder rows of the same (run_id, seq) into one snapshot.
func scanSnapshots(rows chRows) ([]*domain.BalanceSnapshot, error) {
	var snapshots []*domain.BalanceSnapshot
	var current *domain.BalanceSnapshot

	for rows.Next() {
		var (
			runID, mint, step, state string
			seq                      uint32
			supply, amount, observed uint64
			owner, account           string
		)
		err := rows.Scan(&runID, &mint, &seq, &step, &state, &supply, &owner, &account, &amount, &observed)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		if current == nil || current.RunID != runID || current.Seq != seq {
			current = &domain.BalanceSnapshot{
				RunID:      runID,
				Mint:       mint,
				Seq:        seq,
				Step:       domain.Step(step),
				State:      domain.LifecycleState(state),
				Supply:     supply,
				ObservedAt: int64(observed),
			}
			snapshots = append(snapshots, current)
		}
		if owner != "" {
			current.Holders = append(current.Holders, domain.HolderBalance{
				Owner:   owner,
				Account: account,
				Amount:  amount,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}
