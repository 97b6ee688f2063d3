package btcsend

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lp-intermediary/swapd/internal/btcwatcher"
)

func testUTXO(t *testing.T, priv *btcec.PrivateKey, txid string, vout uint32, valueSats uint64) btcwatcher.UTXO {
	t.Helper()
	script, err := btcwatcher.ScriptPubKeyForAddress(p2wpkhAddress(t, priv), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("ScriptPubKeyForAddress: %v", err)
	}
	return btcwatcher.UTXO{TxID: txid, Vout: vout, ValueSats: valueSats, ScriptPubKey: script}
}

func p2wpkhAddress(t *testing.T, priv *btcec.PrivateKey) string {
	t.Helper()
	pubKeyHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %v", err)
	}
	return addr.EncodeAddress()
}

func fakeTxID(b byte) string {
	return strings.Repeat(string([]byte{'0' + b%10}), 64)
}

func TestSelectUTXOsGreedyLargestFirst(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}

	utxos := []btcwatcher.UTXO{
		testUTXO(t, priv, fakeTxID(1), 0, 1000),
		testUTXO(t, priv, fakeTxID(2), 0, 50000),
		testUTXO(t, priv, fakeTxID(3), 0, 5000),
	}

	selected, total, err := SelectUTXOs(utxos, 40000, 1)
	if err != nil {
		t.Fatalf("SelectUTXOs() error = %v", err)
	}
	if len(selected) != 1 || selected[0].ValueSats != 50000 {
		t.Errorf("selected = %+v, want the single 50000-sat UTXO", selected)
	}
	if total != 50000 {
		t.Errorf("total = %d, want 50000", total)
	}
}

func TestSelectUTXOsAccumulatesUntilCovered(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}

	utxos := []btcwatcher.UTXO{
		testUTXO(t, priv, fakeTxID(1), 0, 3000),
		testUTXO(t, priv, fakeTxID(2), 0, 3000),
		testUTXO(t, priv, fakeTxID(3), 0, 3000),
	}

	selected, total, err := SelectUTXOs(utxos, 8000, 1)
	if err != nil {
		t.Fatalf("SelectUTXOs() error = %v", err)
	}
	if len(selected) != 3 {
		t.Errorf("selected %d UTXOs, want all 3 to cover target+fee", len(selected))
	}
	if total != 9000 {
		t.Errorf("total = %d, want 9000", total)
	}
}

func TestSelectUTXOsInsufficientFunds(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}

	utxos := []btcwatcher.UTXO{testUTXO(t, priv, fakeTxID(1), 0, 1000)}

	_, _, err = SelectUTXOs(utxos, 5000, 1)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestSelectUTXOsNoUTXOs(t *testing.T) {
	_, _, err := SelectUTXOs(nil, 1000, 1)
	if !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("err = %v, want ErrNoUTXOs", err)
	}
}

func TestBuildAndSignPaymentProducesSpendableTx(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	changeAddr := p2wpkhAddress(t, priv)
	utxo := testUTXO(t, priv, fakeTxID(1), 0, 100000)

	destPriv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey (dest): %v", err)
	}
	destAddr := p2wpkhAddress(t, destPriv)

	rawHex, txID, err := BuildAndSignPayment(PaymentParams{
		UTXOs:         []btcwatcher.UTXO{utxo},
		DestAddress:   destAddr,
		DestAmount:    50000,
		ChangeAddress: changeAddr,
		FeeRate:       1,
		Params:        &chaincfg.RegressionNetParams,
		PrivKey:       priv,
	})
	if err != nil {
		t.Fatalf("BuildAndSignPayment() error = %v", err)
	}
	if rawHex == "" {
		t.Error("expected non-empty raw tx hex")
	}
	if txID == "" {
		t.Error("expected non-empty txid")
	}
}

func TestBuildAndSignPaymentInsufficientFunds(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	addr := p2wpkhAddress(t, priv)
	utxo := testUTXO(t, priv, fakeTxID(1), 0, 1000)

	_, _, err = BuildAndSignPayment(PaymentParams{
		UTXOs:         []btcwatcher.UTXO{utxo},
		DestAddress:   addr,
		DestAmount:    50000,
		ChangeAddress: addr,
		FeeRate:       1,
		Params:        &chaincfg.RegressionNetParams,
		PrivKey:       priv,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestBuildAndSignPaymentInvalidTxID(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	addr := p2wpkhAddress(t, priv)
	utxo := testUTXO(t, priv, "not-a-txid", 0, 100000)

	_, _, err = BuildAndSignPayment(PaymentParams{
		UTXOs:         []btcwatcher.UTXO{utxo},
		DestAddress:   addr,
		DestAmount:    50000,
		ChangeAddress: addr,
		FeeRate:       1,
		Params:        &chaincfg.RegressionNetParams,
		PrivKey:       priv,
	})
	if !errors.Is(err, ErrInvalidTxID) {
		t.Errorf("err = %v, want ErrInvalidTxID", err)
	}
}

func TestDeriveDepositAddressDeterministic(t *testing.T) {
	master, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	var hash1, hash2 [32]byte
	hash1[0] = 0x01
	hash2[0] = 0x02

	addr1, priv1, err := DeriveDepositAddress(master, hash1, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("DeriveDepositAddress: %v", err)
	}
	addr1Again, priv1Again, err := DeriveDepositAddress(master, hash1, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("DeriveDepositAddress (again): %v", err)
	}
	if addr1 != addr1Again {
		t.Errorf("same master+hash produced different addresses: %s vs %s", addr1, addr1Again)
	}
	if string(priv1.Serialize()) != string(priv1Again.Serialize()) {
		t.Error("same master+hash produced different derived keys")
	}

	addr2, _, err := DeriveDepositAddress(master, hash2, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("DeriveDepositAddress (hash2): %v", err)
	}
	if addr1 == addr2 {
		t.Error("different payment hashes must derive different addresses")
	}
}

func TestBuildBurnTransactionProducesSignedTx(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	utxo := testUTXO(t, priv, fakeTxID(1), 0, 10000)
	var paymentHash [32]byte
	paymentHash[0] = 0xaa

	rawHex, txID, err := BuildBurnTransaction(utxo, paymentHash, 1, priv)
	if err != nil {
		t.Fatalf("BuildBurnTransaction() error = %v", err)
	}
	if rawHex == "" {
		t.Error("expected non-empty raw tx hex")
	}
	if txID == "" {
		t.Error("expected non-empty txid")
	}
}
