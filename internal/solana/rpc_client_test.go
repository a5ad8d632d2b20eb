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

// rpcServer answers every request with result for the expected method.
func rpcServer(t *testing.T, method string, result interface{}, inspect func(req rpcRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}
		if inspect != nil {
			inspect(req)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, "getBalance", map[string]interface{}{
		"context": map[string]interface{}{"slot": 1},
		"value":   uint64(2_500_000_000),
	}, func(req rpcRequest) {
		if req.Params[0] != "wallet" {
			t.Errorf("expected pubkey wallet, got %v", req.Params[0])
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	lamports, err := client.GetBalance(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if lamports != 2_500_000_000 {
		t.Errorf("expected 2500000000 lamports, got %d", lamports)
	}
}

func TestHTTPClient_GetTokenAccountsByOwner(t *testing.T) {
	account := func(pubkey, amount string) map[string]interface{} {
		return map[string]interface{}{
			"pubkey": pubkey,
			"account": map[string]interface{}{
				"data": map[string]interface{}{
					"parsed": map[string]interface{}{
						"info": map[string]interface{}{
							"mint": "mintA",
							"tokenAmount": map[string]interface{}{
								"amount":   amount,
								"decimals": 6,
							},
						},
					},
				},
			},
		}
	}

	server := rpcServer(t, "getTokenAccountsByOwner", map[string]interface{}{
		"value": []interface{}{account("ata1", "1500000"), account("ata2", "250")},
	}, func(req rpcRequest) {
		filter, ok := req.Params[1].(map[string]interface{})
		if !ok || filter["mint"] != "mintA" {
			t.Errorf("expected mint filter, got %v", req.Params[1])
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	accounts, err := client.GetTokenAccountsByOwner(context.Background(), "wallet", "mintA")
	if err != nil {
		t.Fatalf("GetTokenAccountsByOwner: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Amount != 1_500_000 || accounts[0].Decimals != 6 {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
	if accounts[1].Pubkey != "ata2" || accounts[1].Amount != 250 {
		t.Errorf("unexpected second account: %+v", accounts[1])
	}
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	server := rpcServer(t, "getTokenSupply", map[string]interface{}{
		"value": map[string]interface{}{"amount": "1000000000000000", "decimals": 6},
	}, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	supply, err := client.GetTokenSupply(context.Background(), "mintA")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply.Decimals != 6 {
		t.Errorf("expected 6 decimals, got %d", supply.Decimals)
	}
	if supply.Amount != 1_000_000_000_000_000 {
		t.Errorf("unexpected supply %d", supply.Amount)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	server := rpcServer(t, "sendTransaction", "5sig", func(req rpcRequest) {
		if req.Params[0] != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("expected base64 payload, got %v", req.Params[0])
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		if cfg["skipPreflight"] != true {
			t.Errorf("expected skipPreflight true, got %v", cfg["skipPreflight"])
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	sig, err := client.SendTransaction(context.Background(), raw, &SendOptions{SkipPreflight: true})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("expected 5sig, got %s", sig)
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, "getSignatureStatuses", map[string]interface{}{
		"context": map[string]interface{}{"slot": 10},
		"value": []interface{}{
			map[string]interface{}{
				"slot":               int64(9),
				"confirmations":      nil,
				"err":                nil,
				"confirmationStatus": "finalized",
			},
			nil,
		},
	}, nil)
	defer server.Close()

	client := NewHTTPClient(server.URL)
	statuses, err := client.GetSignatureStatuses(context.Background(), "sigA", "sigB")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Landed() || statuses[0].Slot != 9 {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, "getTransaction", map[string]interface{}{
		"slot":      int64(123456),
		"blockTime": int64(1700000000),
		"meta": map[string]interface{}{
			"err":         map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6001}}},
			"fee":         5000,
			"logMessages": []string{"Program log: Hello", "Program log: World"},
		},
	}, nil)
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
	if tx.BlockTime != 1700000000 {
		t.Errorf("expected blockTime 1700000000, got %d", tx.BlockTime)
	}
	if tx.Meta == nil || tx.Meta.Err == nil {
		t.Fatal("expected meta with error")
	}
	if tx.Meta.Fee != 5000 {
		t.Errorf("expected fee 5000, got %d", tx.Meta.Fee)
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

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed: Blockhash not found",
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.SendTransaction(context.Background(), []byte{1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpcError, got %T", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": 42},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(10*time.Millisecond),
		WithMaxRetries(3),
	)

	lamports, err := client.GetBalance(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if lamports != 42 {
		t.Errorf("expected 42, got %d", lamports)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RateLimit(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(5*time.Millisecond),
		WithMaxRetries(2),
	)

	_, err := client.GetBalance(context.Background(), "wallet")
	if err == nil {
		t.Fatal("expected error after rate limiting")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(time.Second),
		WithMaxRetries(5),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBalance(ctx, "wallet")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
