package orchestrator

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/observability"
	"github.com/0xabstracted/token-basics/internal/submission"
)

// Lifecycle run statuses recorded in metrics.
const (
	runSuccess = "success"
	runFailed  = "failed"
)

// MintStep mints Amount to Owner's holder account.
type MintStep struct {
	Owner  sdk.PublicKey
	Amount uint64
}

// TransferStep moves Amount from From's holder account to To's.
type TransferStep struct {
	From   sdk.PrivateKey
	To     sdk.PublicKey
	Amount uint64
}

// BurnStep burns Amount from Owner's holder account.
type BurnStep struct {
	Owner  sdk.PublicKey
	Amount uint64
}

// LifecyclePlan is a full create → mint → transfer → burn run.
type LifecyclePlan struct {
	Metadata instruction.TokenMetadata
	Mints    []MintStep // all applied in the FUNDED transition
	Transfer TransferStep
	Burn     BurnStep
}

// StepResult is one confirmed transaction of a run.
type StepResult struct {
	Step      domain.Step
	Signature sdk.Signature
}

// LifecycleResult contains results from a lifecycle run.
type LifecycleResult struct {
	RunID     string
	Token     *domain.TokenIdentity // nil until created
	State     domain.LifecycleState
	Steps     []StepResult
	Snapshots []*domain.BalanceSnapshot
}

// RunLifecycle executes plan from UNINITIALIZED to BURNED. On failure the
// partial result is returned with the error.
func (o *Orchestrator) RunLifecycle(ctx context.Context, plan LifecyclePlan) (*LifecycleResult, error) {
	start := o.now()
	lc := o.NewLifecycle()

	err := lc.run(ctx, plan)
	status := runSuccess
	if err != nil {
		status = runFailed
	}
	observability.RecordLifecycleRun(status, o.now().Sub(start))

	if err != nil {
		lc.logger.Error().Err(err).Str("state", string(lc.state)).Msg("lifecycle failed")
		return lc.Result(), err
	}
	lc.logger.Info().Dur("duration", o.now().Sub(start)).Msg("lifecycle completed")
	return lc.Result(), nil
}

func (l *Lifecycle) run(ctx context.Context, plan LifecyclePlan) error {
	if err := l.Create(ctx, plan.Metadata); err != nil {
		return err
	}
	if err := l.Fund(ctx, plan.Mints...); err != nil {
		return err
	}
	if err := l.Transfer(ctx, plan.Transfer); err != nil {
		return err
	}
	return l.Burn(ctx, plan.Burn)
}

// Lifecycle is the state machine of one run. It tracks the balances the run
// expects and checks them against the ledger after every confirmed step.
// Not safe for concurrent use.
type Lifecycle struct {
	o      *Orchestrator
	runID  string
	logger zerolog.Logger

	state domain.LifecycleState
	token *domain.TokenIdentity
	mint  sdk.PublicKey

	owners   []sdk.PublicKey // tracked holders in first-seen order
	expected map[sdk.PublicKey]uint64
	supply   uint64
	seq      uint32
	unfunded []MintStep

	steps     []StepResult
	snapshots []*domain.BalanceSnapshot
}

// NewLifecycle starts a run in UNINITIALIZED.
func (o *Orchestrator) NewLifecycle() *Lifecycle {
	runID := uuid.NewString()
	return &Lifecycle{
		o:        o,
		runID:    runID,
		logger:   o.logger.With().Str("run_id", runID).Logger(),
		state:    domain.StateUninitialized,
		expected: make(map[sdk.PublicKey]uint64),
	}
}

// RunID returns the run identifier.
func (l *Lifecycle) RunID() string { return l.runID }

// State returns the current lifecycle state.
func (l *Lifecycle) State() domain.LifecycleState { return l.state }

// Result returns a copy of the run's progress.
func (l *Lifecycle) Result() *LifecycleResult {
	return &LifecycleResult{
		RunID:     l.runID,
		Token:     l.token,
		State:     l.state,
		Steps:     append([]StepResult(nil), l.steps...),
		Snapshots: append([]*domain.BalanceSnapshot(nil), l.snapshots...),
	}
}

// Create performs UNINITIALIZED → CREATED.
func (l *Lifecycle) Create(ctx context.Context, meta instruction.TokenMetadata) error {
	if err := l.transition(domain.StateCreated); err != nil {
		return err
	}

	mintKey, err := sdk.NewRandomPrivateKey()
	if err != nil {
		return fmt.Errorf("generate mint keypair: %w", err)
	}
	l.mint = mintKey.PublicKey()
	l.logger = l.logger.With().Str("mint", l.mint.String()).Logger()

	token, sig, err := l.o.createToken(l.labeled(ctx), mintKey, meta)
	if err != nil {
		return err
	}
	l.token = token
	l.record(domain.StepCreate, sig)
	l.state = domain.StateCreated

	return l.verify(ctx, domain.StepCreate)
}

// Fund performs CREATED → FUNDED, applying every mint in order. The run is
// FUNDED once the first mint confirms. Until Transfer, Fund may be called
// again to apply further mints, so a list that stopped part way can be
// resumed with Unfunded. After a NetworkTimeout, reconcile the first
// unfunded mint's transaction before passing it back, or it may land twice.
func (l *Lifecycle) Fund(ctx context.Context, mints ...MintStep) error {
	if l.state != domain.StateFunded {
		if err := l.transition(domain.StateFunded); err != nil {
			return err
		}
	}
	if len(mints) == 0 {
		return errors.New("fund: no mints")
	}

	for i, m := range mints {
		sig, err := l.o.MintTo(l.labeled(ctx), l.mint, m.Owner, m.Amount)
		if err != nil {
			l.unfunded = append([]MintStep(nil), mints[i:]...)
			return err
		}
		l.unfunded = append([]MintStep(nil), mints[i+1:]...)
		l.record(domain.StepMint, sig)
		l.track(m.Owner)
		l.expected[m.Owner] += m.Amount
		l.supply += m.Amount
		l.state = domain.StateFunded

		if err := l.verify(ctx, domain.StepMint); err != nil {
			return err
		}
	}
	return nil
}

// Unfunded returns the mints of the last Fund call that were not applied,
// starting with the one that failed.
func (l *Lifecycle) Unfunded() []MintStep {
	return append([]MintStep(nil), l.unfunded...)
}

// Transfer performs FUNDED → TRANSFERRED.
func (l *Lifecycle) Transfer(ctx context.Context, t TransferStep) error {
	if err := l.transition(domain.StateTransferred); err != nil {
		return err
	}

	sig, err := l.o.Transfer(l.labeled(ctx), l.mint, t.From, t.To, t.Amount)
	if err != nil {
		return err
	}
	l.record(domain.StepTransfer, sig)
	from := t.From.PublicKey()
	l.track(from)
	l.track(t.To)
	if !from.Equals(t.To) {
		l.expected[from] -= t.Amount
		l.expected[t.To] += t.Amount
	}
	l.state = domain.StateTransferred

	return l.verify(ctx, domain.StepTransfer)
}

// Burn performs TRANSFERRED → BURNED.
func (l *Lifecycle) Burn(ctx context.Context, b BurnStep) error {
	if err := l.transition(domain.StateBurned); err != nil {
		return err
	}

	sig, err := l.o.Burn(l.labeled(ctx), l.mint, b.Owner, b.Amount)
	if err != nil {
		return err
	}
	l.record(domain.StepBurn, sig)
	l.track(b.Owner)
	l.expected[b.Owner] -= b.Amount
	l.supply -= b.Amount
	l.state = domain.StateBurned

	return l.verify(ctx, domain.StepBurn)
}

func (l *Lifecycle) transition(to domain.LifecycleState) error {
	if !l.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
	}
	return nil
}

func (l *Lifecycle) labeled(ctx context.Context) context.Context {
	return submission.WithLabels(ctx, submission.Labels{RunID: l.runID, Mint: l.mint.String()})
}

func (l *Lifecycle) record(step domain.Step, sig sdk.Signature) {
	l.steps = append(l.steps, StepResult{Step: step, Signature: sig})
}

func (l *Lifecycle) track(owner sdk.PublicKey) {
	if _, ok := l.expected[owner]; ok {
		return
	}
	l.expected[owner] = 0
	l.owners = append(l.owners, owner)
}

// verify reads supply and every tracked balance from the ledger, stores them
// as a snapshot, and checks them against the run's expectations.
func (l *Lifecycle) verify(ctx context.Context, step domain.Step) error {
	supply, err := l.o.Supply(ctx, l.mint)
	if err != nil {
		return err
	}

	snap := &domain.BalanceSnapshot{
		RunID:  l.runID,
		Mint:   l.mint.String(),
		Seq:    l.seq,
		Step:   step,
		State:  l.state,
		Supply: supply,
	}
	var mismatch *InvariantError
	for _, owner := range l.owners {
		balance, err := l.o.Balance(ctx, l.mint, owner)
		if err != nil {
			return err
		}
		account := address.DeriveHolderAccount(owner, l.mint).String()
		snap.Holders = append(snap.Holders, domain.HolderBalance{
			Owner:   owner.String(),
			Account: account,
			Amount:  balance,
		})
		if mismatch == nil && balance != l.expected[owner] {
			mismatch = l.violation(step, CheckBalance, l.expected[owner], balance)
			mismatch.Account = account
		}
	}
	snap.ObservedAt = l.o.now().UnixMilli()
	l.seq++

	total, ok := snap.HolderTotal()
	switch {
	case !ok:
		// holder total overflowed uint64
		mismatch = l.violation(step, CheckConservation, supply, total)
	case total != supply:
		mismatch = l.violation(step, CheckConservation, supply, total)
	case supply != l.supply:
		mismatch = l.violation(step, CheckSupply, l.supply, supply)
	}
	observability.RecordInvariantCheck(mismatch == nil)

	if err := l.o.snapshotStore.Insert(ctx, snap); err != nil {
		return fmt.Errorf("store snapshot %d: %w", snap.Seq, err)
	}
	l.snapshots = append(l.snapshots, snap)

	if mismatch != nil {
		l.logger.Error().Err(mismatch).Str("step", string(step)).Msg("invariant violated")
		return mismatch
	}

	l.logger.Debug().
		Str("step", string(step)).
		Uint64("supply", supply).
		Int("holders", len(snap.Holders)).
		Msg("invariants hold")
	return nil
}

func (l *Lifecycle) violation(step domain.Step, check string, expected, actual uint64) *InvariantError {
	return &InvariantError{
		Mint:     l.mint.String(),
		Step:     step,
		Check:    check,
		Expected: expected,
		Actual:   actual,
	}
}
