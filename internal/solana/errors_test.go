package solana

import (
	"encoding/json"
	"testing"
)

func TestParseTransactionError(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNil   bool
		wantKind  string
		wantIndex int
		wantIxErr string
		wantCode  int64 // -1 for none
	}{
		{name: "null", raw: "null", wantNil: true},
		{name: "empty", raw: "", wantNil: true},
		{name: "string kind", raw: `"BlockhashNotFound"`, wantKind: "BlockhashNotFound", wantIndex: -1, wantCode: -1},
		{name: "custom", raw: `{"InstructionError":[0,{"Custom":1}]}`, wantKind: "InstructionError", wantIndex: 0, wantIxErr: "Custom", wantCode: 1},
		{name: "builtin", raw: `{"InstructionError":[2,"InvalidAccountData"]}`, wantKind: "InstructionError", wantIndex: 2, wantIxErr: "InvalidAccountData", wantCode: -1},
		{name: "other object", raw: `{"InsufficientFundsForRent":{"account_index":0}}`, wantKind: "InsufficientFundsForRent", wantIndex: -1, wantCode: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := ParseTransactionError(json.RawMessage(tt.raw))
			if tt.wantNil {
				if te != nil {
					t.Fatalf("expected nil, got %+v", te)
				}
				return
			}
			if te == nil {
				t.Fatal("expected error, got nil")
			}
			if te.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", te.Kind, tt.wantKind)
			}
			if te.InstructionIndex != tt.wantIndex {
				t.Errorf("index = %d, want %d", te.InstructionIndex, tt.wantIndex)
			}
			if te.InstructionErr != tt.wantIxErr {
				t.Errorf("instruction err = %q, want %q", te.InstructionErr, tt.wantIxErr)
			}
			if tt.wantCode < 0 && te.Custom != nil {
				t.Errorf("unexpected custom code %d", *te.Custom)
			}
			if tt.wantCode >= 0 && (te.Custom == nil || int64(*te.Custom) != tt.wantCode) {
				t.Errorf("custom = %v, want %d", te.Custom, tt.wantCode)
			}
		})
	}
}

func TestInstructionErrorJSON_RoundTrip(t *testing.T) {
	code := uint32(0)
	te := ParseTransactionError(InstructionErrorJSON(0, "", &code))
	if te == nil || te.Custom == nil || *te.Custom != 0 || te.InstructionIndex != 0 {
		t.Fatalf("unexpected parse result: %+v", te)
	}

	te = ParseTransactionError(InstructionErrorJSON(3, "InvalidSeeds", nil))
	if te == nil || te.InstructionErr != "InvalidSeeds" || te.InstructionIndex != 3 {
		t.Fatalf("unexpected parse result: %+v", te)
	}
}

func TestRPCError_Preflight(t *testing.T) {
	e := &RPCError{
		Code:    CodeSendTransactionPreflightFailure,
		Message: "Transaction simulation failed",
		Data:    json.RawMessage(`{"err":{"InstructionError":[0,{"Custom":1}]},"logs":["Program log: Error: insufficient funds"]}`),
	}
	pf := e.Preflight()
	if pf == nil {
		t.Fatal("expected preflight payload")
	}
	if len(pf.Logs) != 1 {
		t.Errorf("expected 1 log, got %d", len(pf.Logs))
	}
	if te := ParseTransactionError(pf.Err); te == nil || te.Custom == nil || *te.Custom != 1 {
		t.Errorf("unexpected err payload: %+v", te)
	}

	other := &RPCError{Code: CodeNodeUnhealthy, Message: "Node is unhealthy"}
	if other.Preflight() != nil {
		t.Error("non-preflight error should not decode payload")
	}
}
