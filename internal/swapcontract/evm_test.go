package swapcontract

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

func testAdapter(t *testing.T) *EVMAdapter {
	t.Helper()
	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		t.Fatalf("abi.JSON: %v", err)
	}
	parsedERC20ABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		t.Fatalf("abi.JSON (erc20): %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return &EVMAdapter{
		contractABI: parsedABI,
		erc20ABI:    parsedERC20ABI,
		chainID:     big.NewInt(1337),
		signerKey:   key,
	}
}

func TestEncodeSwapDataIsDeterministic(t *testing.T) {
	d := SwapData{
		Offerer: "alice",
		Claimer: "bob",
		Token:   "USDC",
		Amount:  big.NewInt(12345),
		Hash:    [32]byte{1, 2, 3},
	}
	a := encodeSwapData(d)
	b := encodeSwapData(d)
	if string(a) != string(b) {
		t.Error("encodeSwapData is not deterministic for identical input")
	}

	d2 := d
	d2.Claimer = "carol"
	c := encodeSwapData(d2)
	if string(a) == string(c) {
		t.Error("encodeSwapData produced the same bytes for different claimers")
	}
}

func TestEncodeSPVProof(t *testing.T) {
	p := &SPVProof{
		MerkleProof: [][]byte{{0xaa}, {0xbb}},
		RawTx:       []byte{0xcc, 0xdd},
	}
	got := encodeSPVProof(p)
	want := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	if string(got) != string(want) {
		t.Errorf("encodeSPVProof() = %x, want %x", got, want)
	}
}

func TestAddressFromPrivateKeyMatchesPublicKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := AddressFromPrivateKey(key)
	want := crypto.PubkeyToAddress(key.PublicKey)
	if addr != want {
		t.Errorf("AddressFromPrivateKey() = %s, want %s", addr.Hex(), want.Hex())
	}
}

func TestCreateSwapDataRejectsNegativeAmount(t *testing.T) {
	a := testAdapter(t)
	_, err := a.CreateSwapData(context.Background(), SwapData{Amount: big.NewInt(-1)})
	if err == nil {
		t.Fatal("expected an error for a negative amount")
	}
}

func TestCreateSwapDataPacksInitializeCall(t *testing.T) {
	a := testAdapter(t)
	payload, err := a.CreateSwapData(context.Background(), SwapData{
		Offerer: "alice",
		Claimer: "bob",
		Token:   "USDC",
		Amount:  big.NewInt(1000),
		Hash:    [32]byte{9},
	})
	if err != nil {
		t.Fatalf("CreateSwapData() error = %v", err)
	}
	if len(payload) == 0 {
		t.Fatal("expected a non-empty ABI-packed payload")
	}
}

func TestSignInitAuthorizationBindsQuotedTerms(t *testing.T) {
	a := testAdapter(t)
	data := SwapData{
		Offerer: "alice",
		Claimer: "bob",
		Token:   "USDC",
		Amount:  big.NewInt(50000),
		Hash:    [32]byte{7},
		Expiry:  1234567,
	}

	auth, err := a.SignInitAuthorization(context.Background(), data)
	if err != nil {
		t.Fatalf("SignInitAuthorization() error = %v", err)
	}
	if len(auth.Signature) == 0 {
		t.Error("expected a non-empty signature")
	}
	if auth.Timeout != data.Expiry {
		t.Errorf("Timeout = %d, want %d", auth.Timeout, data.Expiry)
	}
	if auth.FeeRate.Cmp(data.Amount) != 0 {
		t.Errorf("FeeRate = %s, want %s", auth.FeeRate, data.Amount)
	}

	// a different amount must produce a different signature, since the
	// signature binds keccak256(swap_data) and swap_data includes amount.
	data2 := data
	data2.Amount = big.NewInt(99999)
	auth2, err := a.SignInitAuthorization(context.Background(), data2)
	if err != nil {
		t.Fatalf("SignInitAuthorization() (2nd) error = %v", err)
	}
	if string(auth.Signature) == string(auth2.Signature) {
		t.Error("expected different amounts to produce different signatures")
	}
}

func TestSendDirectRejectsNegativeAmount(t *testing.T) {
	a := testAdapter(t)
	_, err := a.SendDirect(context.Background(), "0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222", big.NewInt(-1))
	if err == nil {
		t.Fatal("expected an error for a negative amount")
	}
}

func TestSignRefundAuthorizationSetsExpiry(t *testing.T) {
	a := testAdapter(t)
	var hash [32]byte
	hash[0] = 0x11

	auth, err := a.SignRefundAuthorization(context.Background(), hash)
	if err != nil {
		t.Fatalf("SignRefundAuthorization() error = %v", err)
	}
	if len(auth.Signature) == 0 {
		t.Error("expected a non-empty signature")
	}
	if auth.ExpiresAt == 0 {
		t.Error("expected a non-zero ExpiresAt")
	}
}
