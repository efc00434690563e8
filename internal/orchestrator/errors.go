package orchestrator

import (
	"errors"
	"fmt"

	"github.com/0xabstracted/token-basics/internal/domain"
)

var (
	// ErrInvalidTransition is returned when a lifecycle step is attempted out of order.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrInvariantViolation is returned when the ledger disagrees with the
	// balances a run expects. It signals a defect, never a retryable condition.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Invariant checks.
const (
	CheckConservation = "conservation" // holder total == supply
	CheckSupply       = "supply"       // supply == expected supply
	CheckBalance      = "balance"      // holder balance == expected balance
)

// InvariantError describes a failed post-transition check.
type InvariantError struct {
	Mint     string
	Step     domain.Step
	Check    string
	Account  string // holder account, CheckBalance only
	Expected uint64
	Actual   uint64
}

func (e *InvariantError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("%s: %s check failed after %s on %s (account %s): expected %d, got %d",
			ErrInvariantViolation, e.Check, e.Step, e.Mint, e.Account, e.Expected, e.Actual)
	}
	return fmt.Sprintf("%s: %s check failed after %s on %s: expected %d, got %d",
		ErrInvariantViolation, e.Check, e.Step, e.Mint, e.Expected, e.Actual)
}

// Is reports ErrInvariantViolation.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}
