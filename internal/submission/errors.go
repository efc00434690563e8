package submission

import (
	"errors"
	"fmt"
	"strings"

	sdk "github.com/gagliardetto/solana-go"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/solana"
)

// Sentinel errors.
var (
	// ErrValidationRejected: preflight or on-chain execution rejected the
	// transaction. Deterministic; resubmitting the same instructions fails again.
	ErrValidationRejected = errors.New("transaction rejected")

	// ErrNetworkTimeout: the outcome is unknown. Reconcile before resubmitting.
	ErrNetworkTimeout = errors.New("transaction outcome unknown")

	// ErrBlockhashExpired: the blockhash expired before the transaction
	// landed, so it never will.
	ErrBlockhashExpired = errors.New("blockhash expired")
)

// RejectedError carries the diagnostics of a rejected transaction.
type RejectedError struct {
	Signature string
	// InstructionIndex is the failing instruction, -1 for transaction-level errors.
	InstructionIndex int
	// Custom is the program's custom error code, if any.
	Custom *uint32
	// Reason is the decoded error, e.g. "instruction 0 failed: custom program error 0x1".
	Reason string
	Logs   []string
}

func (e *RejectedError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("transaction rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transaction %s rejected: %s", e.Signature, e.Reason)
}

// Is matches ErrValidationRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrValidationRejected
}

// AlreadyInUse reports whether the rejection was allocation of addr failing
// because addr already exists.
func (e *RejectedError) AlreadyInUse(addr sdk.PublicKey) bool {
	return e.accountInUse() == addr.String()
}

// AlreadyInitialized reports whether err is a rejection because addr is
// already allocated. An "already in use" for any other address is a plain
// rejection.
func AlreadyInitialized(err error, addr sdk.PublicKey) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.AlreadyInUse(addr)
}

// accountInUse returns the address named in an "already in use" log line.
func (e *RejectedError) accountInUse() string {
	if e.Custom == nil || *e.Custom != 0 {
		return ""
	}
	for _, line := range e.Logs {
		// Allocate: account Address { address: X, base: None } already in use
		if !strings.HasSuffix(line, "already in use") {
			continue
		}
		_, rest, ok := strings.Cut(line, "address: ")
		if !ok {
			continue
		}
		addr, _, ok := strings.Cut(rest, ",")
		if ok {
			return strings.TrimSpace(addr)
		}
	}
	return ""
}

// newRejectedError builds a RejectedError from a transaction error payload.
func newRejectedError(signature string, txErr *solana.TransactionError, logs []string) *RejectedError {
	e := &RejectedError{
		Signature:        signature,
		InstructionIndex: -1,
		Logs:             logs,
	}
	if txErr != nil {
		e.InstructionIndex = txErr.InstructionIndex
		e.Custom = txErr.Custom
		e.Reason = txErr.Error()
	}
	return e
}

// TimeoutError is returned when confirmation could not be observed. The
// transaction may still land.
type TimeoutError struct {
	Signature string
	Pending   *domain.PendingTransaction
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s outcome unknown: %v", e.Signature, e.Err)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrNetworkTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
