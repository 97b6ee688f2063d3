package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
	"github.com/lp-intermediary/swapd/internal/swapcore"
)

func TestSwapTypeFor(t *testing.T) {
	cases := []struct {
		dir  config.Direction
		want swapcontract.SwapType
	}{
		{config.FromBtc, swapcontract.SwapTypeFromBtc},
		{config.FromBtcLn, swapcontract.SwapTypeFromBtc},
		{config.ToBtc, swapcontract.SwapTypeToBtc},
		{config.ToBtcLn, swapcontract.SwapTypeToBtc},
		{config.TrustedFromBtcLn, swapcontract.SwapTypeFromBtc},
	}
	for _, c := range cases {
		if got := swapTypeFor(c.dir); got != c.want {
			t.Errorf("swapTypeFor(%s) = %s, want %s", c.dir, got, c.want)
		}
	}
}

func TestStatusCodeFromBtc(t *testing.T) {
	cases := []struct {
		state string
		want  int
	}{
		{swapcore.StateCreated, CodeAwaitingBitcoin},
		{swapcore.StateCommited, CodeBitcoinProcessing},
		{swapcore.StateBTCConfirmed, CodeBitcoinAccepted},
		{swapcore.StateClaimed, CodeSuccess},
		{swapcore.StateExpired, CodeExpiredOrCanceled},
		{swapcore.StateRefundable, CodeRefunded},
		{swapcore.StateRefunded, CodeRefunded},
		{"unknown-state", CodeAwaitingBitcoin},
	}
	for _, c := range cases {
		if got := statusCode(config.FromBtc, c.state); got != c.want {
			t.Errorf("statusCode(FromBtc, %q) = %d, want %d", c.state, got, c.want)
		}
	}
}

func TestStatusCodeTrustedFromBtcLn(t *testing.T) {
	cases := []struct {
		state string
		want  int
	}{
		{swapcore.StateTrCreated, CodeAwaitingBitcoin},
		{swapcore.StateTrReceived, CodeBitcoinAccepted},
		{swapcore.StateTrCrediting, CodeBitcoinAccepted},
		{swapcore.StateTrFinished, CodeSuccess},
		{swapcore.StateTrDoubleSpent, CodeDoubleSpendBurned},
		{swapcore.StateTrRefunding, CodeRefunded},
		{swapcore.StateTrRefunded, CodeRefunded},
	}
	for _, c := range cases {
		if got := statusCode(config.TrustedFromBtcLn, c.state); got != c.want {
			t.Errorf("statusCode(TrustedFromBtcLn, %q) = %d, want %d", c.state, got, c.want)
		}
	}
}

func TestRandomHashIsNonZeroAndUnique(t *testing.T) {
	h1, err := randomHash()
	if err != nil {
		t.Fatalf("randomHash: %v", err)
	}
	h2, err := randomHash()
	if err != nil {
		t.Fatalf("randomHash: %v", err)
	}
	if h1 == h2 {
		t.Error("two calls to randomHash produced the same hash")
	}
	var zero [32]byte
	if h1 == zero {
		t.Error("randomHash produced an all-zero hash")
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "swapd-api-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Server{store: store}
}

func TestHandleStatusNotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/from-btc-onchain/getInvoiceStatus?paymentHash="+hex.EncodeToString(make([]byte, 32)), nil)
	rec := httptest.NewRecorder()

	s.handleStatus(config.FromBtc)(rec, req)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Code != CodeNotFound {
		t.Errorf("Code = %d, want %d", env.Code, CodeNotFound)
	}
}

func TestHandleStatusInvalidHash(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/from-btc-onchain/getInvoiceStatus?paymentHash=not-hex", nil)
	rec := httptest.NewRecorder()

	s.handleStatus(config.FromBtc)(rec, req)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Code != CodeInvalidRequestBody {
		t.Errorf("Code = %d, want %d", env.Code, CodeInvalidRequestBody)
	}
}

func TestHandleStatusFound(t *testing.T) {
	s := newTestServer(t)

	var hash [32]byte
	hash[0] = 0x42
	if err := s.store.Put(context.Background(), &storage.Record{
		PaymentHash: hash,
		Direction:   string(config.FromBtc),
		ChainID:     1,
		State:       swapcore.StateBTCConfirmed,
		Data:        json.RawMessage(`{}`),
	}); err != nil {
		t.Fatalf("store.Put: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/from-btc-onchain/getInvoiceStatus?paymentHash="+hex.EncodeToString(hash[:]), nil)
	rec := httptest.NewRecorder()

	s.handleStatus(config.FromBtc)(rec, req)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Code != CodeSuccess {
		t.Errorf("Code = %d, want %d", env.Code, CodeSuccess)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data = %T, want map[string]any", env.Data)
	}
	if data["code"].(float64) != float64(CodeBitcoinAccepted) {
		t.Errorf("inner code = %v, want %d", data["code"], CodeBitcoinAccepted)
	}
}
