package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every request with result, echoing the request ID.
func rpcServer(t *testing.T, method string, check func(params []json.RawMessage), result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}
		if check != nil {
			check(req.Params)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		})
	}))
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, "getLatestBlockhash", func(params []json.RawMessage) {
		if len(params) != 1 || string(params[0]) != `{"commitment":"confirmed"}` {
			t.Errorf("unexpected params: %s", params)
		}
	}, map[string]interface{}{
		"context": map[string]interface{}{"slot": 10},
		"value": map[string]interface{}{
			"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			"lastValidBlockHeight": 3090,
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	bh, err := client.GetLatestBlockhash(context.Background(), CommitmentConfirmed)
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Blockhash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected blockhash %s", bh.Blockhash)
	}
	if bh.LastValidBlockHeight != 3090 {
		t.Errorf("expected last valid height 3090, got %d", bh.LastValidBlockHeight)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	maxRetries := uint(0)

	server := rpcServer(t, "sendTransaction", func(params []json.RawMessage) {
		var encoded string
		if err := json.Unmarshal(params[0], &encoded); err != nil {
			t.Errorf("param 0: %v", err)
		}
		if encoded != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("unexpected payload %s", encoded)
		}

		var cfg map[string]interface{}
		if err := json.Unmarshal(params[1], &cfg); err != nil {
			t.Errorf("param 1: %v", err)
		}
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		if cfg["skipPreflight"] != true {
			t.Errorf("expected skipPreflight true, got %v", cfg["skipPreflight"])
		}
		if cfg["preflightCommitment"] != "confirmed" {
			t.Errorf("unexpected preflightCommitment %v", cfg["preflightCommitment"])
		}
		if cfg["maxRetries"] != float64(0) {
			t.Errorf("unexpected maxRetries %v", cfg["maxRetries"])
		}
	}, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW")
	defer server.Close()

	client := NewHTTPClient(server.URL)
	sig, err := client.SendTransaction(context.Background(), raw, &SendOpts{
		SkipPreflight:       true,
		PreflightCommitment: CommitmentConfirmed,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW" {
		t.Errorf("unexpected signature %s", sig)
	}
}

func TestHTTPClient_SendTransaction_PreflightFailure(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + jsonNumber(req.ID) + `,"error":{
			"code":-32002,
			"message":"Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1",
			"data":{"err":{"InstructionError":[0,{"Custom":1}]},"logs":["Program log: Error: insufficient funds"]}}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.SendTransaction(context.Background(), []byte{1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != CodeSendTransactionPreflightFailure {
		t.Errorf("expected code %d, got %d", CodeSendTransactionPreflightFailure, rpcErr.Code)
	}

	pf := rpcErr.Preflight()
	if pf == nil {
		t.Fatal("expected preflight data")
	}
	txErr := ParseTransactionError(pf.Err)
	if txErr == nil || txErr.Custom == nil || *txErr.Custom != 1 {
		t.Errorf("unexpected transaction error %+v", txErr)
	}
	if len(pf.Logs) != 1 {
		t.Errorf("expected 1 log line, got %d", len(pf.Logs))
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("RPC errors must not be retried, got %d requests", got)
	}
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, "getSignatureStatuses", func(params []json.RawMessage) {
		if string(params[1]) != `{"searchTransactionHistory":true}` {
			t.Errorf("unexpected config %s", params[1])
		}
	}, map[string]interface{}{
		"context": map[string]interface{}{"slot": 82},
		"value": []interface{}{
			map[string]interface{}{
				"slot":               72,
				"confirmations":      10,
				"err":                nil,
				"status":             map[string]interface{}{"Ok": nil},
				"confirmationStatus": "confirmed",
			},
			nil,
			map[string]interface{}{
				"slot":               48,
				"confirmations":      nil,
				"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}}},
				"confirmationStatus": "finalized",
			},
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	if statuses[0] == nil || statuses[0].Slot != 72 || statuses[0].Failed() {
		t.Errorf("unexpected status 0: %+v", statuses[0])
	}
	if !statuses[0].ConfirmationStatus.Reached(CommitmentConfirmed) {
		t.Error("status 0 should satisfy confirmed")
	}
	if statuses[0].ConfirmationStatus.Reached(CommitmentFinalized) {
		t.Error("status 0 should not satisfy finalized")
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
	if statuses[2] == nil || !statuses[2].Failed() || statuses[2].Confirmations != nil {
		t.Errorf("unexpected status 2: %+v", statuses[2])
	}
}

func TestHTTPClient_GetBlockHeight(t *testing.T) {
	server := rpcServer(t, "getBlockHeight", nil, 1233)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	height, err := client.GetBlockHeight(context.Background(), CommitmentConfirmed)
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 1233 {
		t.Errorf("expected 1233, got %d", height)
	}
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, "getTransaction", nil, map[string]interface{}{
		"slot":      int64(123456),
		"blockTime": int64(1700000000),
		"meta": map[string]interface{}{
			"err":         nil,
			"logMessages": []string{"Program log: Instruction: MintToken", "Program log: Minted 1 tokens"},
		},
		"transaction": map[string]interface{}{
			"message": map[string]interface{}{
				"accountKeys": []string{"addr1", "addr2"},
			},
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.Slot != 123456 {
		t.Errorf("expected slot 123456, got %d", tx.Slot)
	}
	if tx.Meta == nil || len(tx.Meta.LogMessages) != 2 {
		t.Errorf("unexpected meta %+v", tx.Meta)
	}
	if tx.Message == nil || len(tx.Message.AccountKeys) != 2 {
		t.Errorf("unexpected message %+v", tx.Message)
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, "getTransaction", nil, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, "getAccountInfo", func(params []json.RawMessage) {
		var cfg map[string]string
		json.Unmarshal(params[1], &cfg)
		if cfg["encoding"] != "base64" || cfg["commitment"] != "confirmed" {
			t.Errorf("unexpected config %v", cfg)
		}
	}, map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value": map[string]interface{}{
			"lamports":   2039280,
			"owner":      "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb",
			"data":       []string{"AQID", "base64"},
			"executable": false,
			"rentEpoch":  uint64(18446744073709551615),
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "acct", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info")
	}
	if info.Owner != "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb" || info.Data != "AQID" || info.Lamports != 2039280 {
		t.Errorf("unexpected account info %+v", info)
	}
}

func TestHTTPClient_GetAccountInfo_Missing(t *testing.T) {
	server := rpcServer(t, "getAccountInfo", nil, map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value":   nil,
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "acct", "")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestHTTPClient_TokenAmounts(t *testing.T) {
	amount := map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value": map[string]interface{}{
			"amount":         "18446744073709551615",
			"decimals":       9,
			"uiAmount":       1.8446744073709552e10,
			"uiAmountString": "18446744073.709551615",
		},
	}

	t.Run("supply", func(t *testing.T) {
		server := rpcServer(t, "getTokenSupply", nil, amount)
		defer server.Close()

		got, err := NewHTTPClient(server.URL).GetTokenSupply(context.Background(), "mint", CommitmentConfirmed)
		if err != nil {
			t.Fatalf("GetTokenSupply: %v", err)
		}
		if got.Amount != ^uint64(0) || got.Decimals != 9 {
			t.Errorf("unexpected amount %+v", got)
		}
	})

	t.Run("balance", func(t *testing.T) {
		server := rpcServer(t, "getTokenAccountBalance", nil, amount)
		defer server.Close()

		got, err := NewHTTPClient(server.URL).GetTokenAccountBalance(context.Background(), "acct", CommitmentConfirmed)
		if err != nil {
			t.Fatalf("GetTokenAccountBalance: %v", err)
		}
		if got.Amount != ^uint64(0) {
			t.Errorf("unexpected amount %d", got.Amount)
		}
	})
}

func TestHTTPClient_RequestAirdrop(t *testing.T) {
	server := rpcServer(t, "requestAirdrop", func(params []json.RawMessage) {
		if string(params[1]) != "1000000000" {
			t.Errorf("unexpected lamports %s", params[1])
		}
	}, "airdropsig")
	defer server.Close()

	sig, err := NewHTTPClient(server.URL).RequestAirdrop(context.Background(), "pk", 1_000_000_000)
	if err != nil {
		t.Fatalf("RequestAirdrop: %v", err)
	}
	if sig != "airdropsig" {
		t.Errorf("unexpected signature %s", sig)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  42,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(5),
		WithRetryDelay(10*time.Millisecond),
	)

	height, err := client.GetBlockHeight(context.Background(), "")
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("expected 42, got %d", height)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestHTTPClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := client.GetBlockHeight(context.Background(), ""); err == nil {
		t.Fatal("expected error after max retries")
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(10),
		WithRetryDelay(100*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBlockHeight(ctx, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPClient_RateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 1})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.GetBlockHeight(context.Background(), ""); err != nil {
			t.Fatalf("GetBlockHeight: %v", err)
		}
	}
	// burst 1 at 20 rps: the 2nd and 3rd calls wait ~50ms each
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("expected limiter to delay calls, took %s", elapsed)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", attempts.Load())
	}
}
