// Package btcsend builds and signs the plain Bitcoin payment ToBtc sends to
// a user's address once the SC-chain escrow is committed (spec.md §4.4). It
// is adapted from the teacher's internal/swap funding-transaction builder
// and UTXO selector, simplified from the teacher's MuSig2 P2TR swap output to
// a single-signer P2WPKH spend since the escrow itself now lives on the
// SC chain rather than in a Bitcoin-side HTLC.
package btcsend

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lp-intermediary/swapd/internal/btcwatcher"
)

var (
	ErrNoUTXOs           = errors.New("btcsend: no UTXOs available")
	ErrInsufficientFunds = errors.New("btcsend: insufficient funds")
	ErrInvalidTxID       = errors.New("btcsend: invalid prior transaction id")
)

// PaymentParams describes a single ToBtc payment to build and sign.
type PaymentParams struct {
	UTXOs         []btcwatcher.UTXO
	DestAddress   string
	DestAmount    uint64 // satoshis, exact amount per spec.md §4.4's hash binding
	ChangeAddress string
	FeeRate       uint64 // sat/vByte, per confirmation_target, spec.md §3/§4.4
	Params        *chaincfg.Params
	PrivKey       *btcec.PrivateKey // spends ChangeAddress's UTXOs
}

const dustLimitSats = 546

// BuildAndSignPayment selects UTXOs, builds a transaction paying DestAddress
// the exact DestAmount, adds a change output back to ChangeAddress above the
// dust limit, and returns the signed raw transaction ready to broadcast.
func BuildAndSignPayment(p PaymentParams) (rawTxHex string, txID string, err error) {
	selected, total, err := SelectUTXOs(p.UTXOs, p.DestAmount, p.FeeRate)
	if err != nil {
		return "", "", err
	}

	destScript, err := btcwatcher.ScriptPubKeyForAddress(p.DestAddress, p.Params)
	if err != nil {
		return "", "", fmt.Errorf("btcsend: invalid destination address: %w", err)
	}
	changeScript, err := btcwatcher.ScriptPubKeyForAddress(p.ChangeAddress, p.Params)
	if err != nil {
		return "", "", fmt.Errorf("btcsend: invalid change address: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	prevScripts := make([][]byte, 0, len(selected))
	prevAmounts := make([]int64, 0, len(selected))

	for _, u := range selected {
		h, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidTxID, u.TxID)
		}
		in := wire.NewTxIn(wire.NewOutPoint(h, u.Vout), nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum - 2 // signal RBF
		tx.AddTxIn(in)
		prevScripts = append(prevScripts, u.ScriptPubKey)
		prevAmounts = append(prevAmounts, int64(u.ValueSats))
	}

	tx.AddTxOut(wire.NewTxOut(int64(p.DestAmount), destScript))

	fee := estimateFee(len(selected), 2, p.FeeRate)
	if total < p.DestAmount+fee {
		return "", "", fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, p.DestAmount+fee, total)
	}
	change := total - p.DestAmount - fee
	if change > dustLimitSats {
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	}

	if err := signAllInputs(tx, prevScripts, prevAmounts, p.PrivKey); err != nil {
		return "", "", fmt.Errorf("btcsend: signing failed: %w", err)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", "", fmt.Errorf("btcsend: serialize: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), tx.TxHash().String(), nil
}

func signAllInputs(tx *wire.MsgTx, prevScripts [][]byte, prevAmounts []int64, priv *btcec.PrivateKey) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, wire.NewTxOut(prevAmounts[i], prevScripts[i]))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i := range tx.TxIn {
		witness, err := txscript.WitnessSignature(tx, sigHashes, i, prevAmounts[i], prevScripts[i], txscript.SigHashAll, priv, true)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return nil
}

// estimateFee approximates vsize for nIn P2WPKH inputs and nOut P2WPKH
// outputs: 10 bytes overhead, ~68vB per witness input, ~31vB per output.
func estimateFee(nIn, nOut int, feeRate uint64) uint64 {
	vsize := uint64(10 + nIn*68 + nOut*31)
	return vsize * feeRate
}

// DeriveDepositAddress derives a one-off P2WPKH deposit key/address for a
// single FromBtc swap from the LP's master key and the swap's payment hash:
// priv_i = sha256(masterPriv.Serialize() || paymentHash), folded onto the
// curve order. Each swap gets its own address so a deposit can be attributed
// unambiguously without a shared-address UTXO race (spec.md §4.2).
func DeriveDepositAddress(master *btcec.PrivateKey, paymentHash [32]byte, params *chaincfg.Params) (address string, priv *btcec.PrivateKey, err error) {
	h := sha256.Sum256(append(master.Serialize(), paymentHash[:]...))
	priv, _ = btcec.PrivKeyFromBytes(h[:])

	pubKeyHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
	if err != nil {
		return "", nil, fmt.Errorf("btcsend: derive address: %w", err)
	}
	return addr.EncodeAddress(), priv, nil
}

// BuildBurnTransaction spends a single UTXO entirely to fees plus an
// OP_RETURN output carrying paymentHash, replacing (via RBF) whatever
// transaction the same outpoint was previously committed to. Used by the
// trusted-custodial double-spend watchdog (spec.md §4.6, P7): once a
// replacement is detected, the LP races its own conflicting spend so the
// original outpoint can never be reused to extract a second credit.
func BuildBurnTransaction(utxo btcwatcher.UTXO, paymentHash [32]byte, feeRate uint64, priv *btcec.PrivateKey) (rawTxHex, txID string, err error) {
	h, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidTxID, utxo.TxID)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	in := wire.NewTxIn(wire.NewOutPoint(h, utxo.Vout), nil, nil)
	in.Sequence = wire.MaxTxInSequenceNum - 2 // signal RBF
	tx.AddTxIn(in)

	burnScript, err := txscript.NullDataScript(paymentHash[:])
	if err != nil {
		return "", "", fmt.Errorf("btcsend: build burn script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(0, burnScript))

	if err := signAllInputs(tx, [][]byte{utxo.ScriptPubKey}, []int64{int64(utxo.ValueSats)}, priv); err != nil {
		return "", "", fmt.Errorf("btcsend: sign burn tx: %w", err)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", "", fmt.Errorf("btcsend: serialize burn tx: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), tx.TxHash().String(), nil
}

// SelectUTXOs greedily selects UTXOs (largest first) to cover targetAmount
// plus an estimated fee at feeRate, per the teacher's UTXO-selection
// discipline in internal/swap.
func SelectUTXOs(utxos []btcwatcher.UTXO, targetAmount, feeRate uint64) ([]btcwatcher.UTXO, uint64, error) {
	if len(utxos) == 0 {
		return nil, 0, ErrNoUTXOs
	}

	sorted := make([]btcwatcher.UTXO, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ValueSats > sorted[j].ValueSats })

	var selected []btcwatcher.UTXO
	var total uint64
	for _, u := range sorted {
		selected = append(selected, u)
		total += u.ValueSats
		if total >= targetAmount+estimateFee(len(selected), 2, feeRate) {
			return selected, total, nil
		}
	}

	need := targetAmount + estimateFee(len(selected), 2, feeRate)
	if total < need {
		return nil, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, need, total)
	}
	return selected, total, nil
}
