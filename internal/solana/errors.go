package solana

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC error codes returned by Solana nodes.
const (
	CodeSendTransactionPreflightFailure = -32002
	CodeSignatureVerificationFailure    = -32003
	CodeNodeUnhealthy                   = -32005
	CodeInvalidParams                   = -32602
)

// RPCError represents a JSON-RPC 2.0 error, including the optional data payload.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// PreflightFailure is the data payload of a -32002 error.
type PreflightFailure struct {
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed *uint64         `json:"unitsConsumed,omitempty"`
}

// Preflight decodes the simulation result attached to a preflight failure.
// Returns nil for any other error code.
func (e *RPCError) Preflight() *PreflightFailure {
	if e.Code != CodeSendTransactionPreflightFailure || len(e.Data) == 0 {
		return nil
	}
	var pf PreflightFailure
	if err := json.Unmarshal(e.Data, &pf); err != nil {
		return nil
	}
	return &pf
}

// TransactionError is a decoded transaction execution error.
//
// Wire forms:
//
//	"BlockhashNotFound"
//	{"InstructionError":[0,{"Custom":1}]}
//	{"InstructionError":[1,"InvalidAccountData"]}
type TransactionError struct {
	Kind             string // e.g. InstructionError, BlockhashNotFound
	InstructionIndex int    // -1 when not an instruction error
	InstructionErr   string // e.g. Custom, InvalidAccountData
	Custom           *uint32
	Raw              json.RawMessage
}

func (e *TransactionError) Error() string {
	switch {
	case e.Custom != nil:
		return fmt.Sprintf("instruction %d failed: custom program error 0x%x", e.InstructionIndex, *e.Custom)
	case e.InstructionIndex >= 0:
		return fmt.Sprintf("instruction %d failed: %s", e.InstructionIndex, e.InstructionErr)
	default:
		return fmt.Sprintf("transaction failed: %s", e.Kind)
	}
}

// ParseTransactionError decodes a transaction error payload. Returns nil for
// empty or null input.
func ParseTransactionError(raw json.RawMessage) *TransactionError {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	te := &TransactionError{InstructionIndex: -1, Raw: raw}

	var kind string
	if err := json.Unmarshal(raw, &kind); err == nil {
		te.Kind = kind
		return te
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		te.Kind = trimmed
		return te
	}

	for k, v := range obj {
		te.Kind = k
		if k != "InstructionError" {
			break
		}
		var pair []json.RawMessage
		if err := json.Unmarshal(v, &pair); err != nil || len(pair) != 2 {
			break
		}
		_ = json.Unmarshal(pair[0], &te.InstructionIndex)

		var name string
		if err := json.Unmarshal(pair[1], &name); err == nil {
			te.InstructionErr = name
			break
		}
		var detail map[string]json.RawMessage
		if err := json.Unmarshal(pair[1], &detail); err == nil {
			if c, ok := detail["Custom"]; ok {
				var code uint32
				if err := json.Unmarshal(c, &code); err == nil {
					te.InstructionErr = "Custom"
					te.Custom = &code
				}
			} else {
				for name := range detail {
					te.InstructionErr = name
				}
			}
		}
		break
	}
	return te
}

// InstructionErrorJSON encodes {"InstructionError":[index, detail]} where
// detail is either a builtin error name or a custom code.
func InstructionErrorJSON(index int, builtin string, custom *uint32) json.RawMessage {
	var detail interface{} = builtin
	if custom != nil {
		detail = map[string]uint32{"Custom": *custom}
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"InstructionError": []interface{}{index, detail},
	})
	return raw
}
