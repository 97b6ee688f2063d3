package liquidity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/lp-intermediary/swapd/internal/chain"
)

type jsonrpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// fakeEVMNode answers eth_getBalance with a fixed hex balance, enough to
// exercise EVMChecker's native-token path without a real chain.
func fakeEVMNode(t *testing.T, hexBalance string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode json-rpc request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_getBalance":
			json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": hexBalance})
		default:
			t.Fatalf("unexpected method %s", req.Method)
		}
	}))
}

func TestEVMCheckerAvailableLiquidityNative(t *testing.T) {
	chain.RegisterToken(&chain.Token{Symbol: "ETH", ChainID: 99002, IsNative: true})

	srv := fakeEVMNode(t, "0x64")
	defer srv.Close()

	client, err := ethclient.Dial(srv.URL)
	if err != nil {
		t.Fatalf("ethclient.Dial: %v", err)
	}
	defer client.Close()

	checker, err := NewEVMChecker(map[uint64]*ethclient.Client{99002: client}, common.Address{})
	if err != nil {
		t.Fatalf("NewEVMChecker: %v", err)
	}

	bal, err := checker.AvailableLiquidity(context.Background(), 99002, "ETH")
	if err != nil {
		t.Fatalf("AvailableLiquidity() error = %v", err)
	}
	if bal.Int64() != 0x64 {
		t.Errorf("balance = %s, want 100", bal)
	}
}

func TestEVMCheckerUnknownChain(t *testing.T) {
	checker, err := NewEVMChecker(map[uint64]*ethclient.Client{}, common.Address{})
	if err != nil {
		t.Fatalf("NewEVMChecker: %v", err)
	}
	_, err = checker.AvailableLiquidity(context.Background(), 404, "ETH")
	if err == nil {
		t.Fatal("expected error for an unconfigured chain")
	}
}

func TestEVMCheckerUnknownToken(t *testing.T) {
	client, err := ethclient.Dial("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("ethclient.Dial: %v", err)
	}
	defer client.Close()

	checker, err := NewEVMChecker(map[uint64]*ethclient.Client{99003: client}, common.Address{})
	if err != nil {
		t.Fatalf("NewEVMChecker: %v", err)
	}
	_, err = checker.AvailableLiquidity(context.Background(), 99003, "NOPE")
	if err == nil {
		t.Fatal("expected error for an unregistered token")
	}
}
