package domain

// LifecycleState is a token's position in create -> mint -> transfer -> burn.
type LifecycleState string

const (
	StateUninitialized LifecycleState = "UNINITIALIZED"
	StateCreated       LifecycleState = "CREATED"
	StateFunded        LifecycleState = "FUNDED"
	StateTransferred   LifecycleState = "TRANSFERRED"
	StateBurned        LifecycleState = "BURNED"
)

var lifecycleOrder = map[LifecycleState]int{
	StateUninitialized: 0,
	StateCreated:       1,
	StateFunded:        2,
	StateTransferred:   3,
	StateBurned:        4,
}

// Next returns the state a successful step leads to, and false for the terminal state.
func (s LifecycleState) Next() (LifecycleState, bool) {
	switch s {
	case StateUninitialized:
		return StateCreated, true
	case StateCreated:
		return StateFunded, true
	case StateFunded:
		return StateTransferred, true
	case StateTransferred:
		return StateBurned, true
	}
	return s, false
}

// CanTransition reports whether to is the immediate successor of s.
func (s LifecycleState) CanTransition(to LifecycleState) bool {
	next, ok := s.Next()
	return ok && next == to
}

// Valid reports whether s is a known state.
func (s LifecycleState) Valid() bool {
	_, ok := lifecycleOrder[s]
	return ok
}

// HolderBalance is one holder's balance inside a snapshot.
type HolderBalance struct {
	Owner   string
	Account string // derived holder account address
	Amount  uint64
}

// BalanceSnapshot is supply and holder balances observed after a transition.
// Stored in ClickHouse balance_snapshots, one row per holder.
type BalanceSnapshot struct {
	RunID      string
	Mint       string
	Seq        uint32 // position within the run
	Step       Step
	State      LifecycleState
	Supply     uint64
	Holders    []HolderBalance
	ObservedAt int64 // ms
}

// HolderTotal returns the sum of holder balances and false on overflow.
func (s *BalanceSnapshot) HolderTotal() (uint64, bool) {
	var total uint64
	for _, h := range s.Holders {
		if total+h.Amount < total {
			return 0, false
		}
		total += h.Amount
	}
	return total, true
}
