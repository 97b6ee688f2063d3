// Package btcwatcher observes Bitcoin addresses for deposits, tracks
// confirmations, detects double-spends/replacements, and broadcasts refund
// and burn packages. It depends only on the abstract BitcoinRPC interface
// below (spec.md §1: implementing a Bitcoin node is out of scope), mirroring
// the teacher's internal/backend.Backend abstraction generalized from a
// multi-chain registry down to the single Bitcoin RPC surface this LP needs.
package btcwatcher

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("btcwatcher: rpc not connected")
	ErrTxNotFound   = errors.New("btcwatcher: transaction not found")
)

// UTXO represents an unspent transaction output observed at a watched address.
type UTXO struct {
	TxID          string
	Vout          uint32
	ValueSats     uint64
	ScriptPubKey  []byte
	Confirmations int64
	BlockHeight   int64
}

// RawTx holds the raw transaction bytes plus the inclusion proof data the
// ChainAdapter needs to submit an SPV claim (spec.md §4.2).
type RawTx struct {
	TxID        string
	Raw         []byte
	BlockHash   string
	BlockHeight int64
	MerkleProof [][]byte
	MerklePos   uint32
}

// FeeEstimate mirrors the teacher's mempool-derived fee estimate shape.
type FeeEstimate struct {
	SatsPerVByte map[uint32]uint64 // confirmation target (blocks) -> sat/vB
}

// BitcoinRPC is the abstract capability the watcher and ToBtc sender use to
// talk to a Bitcoin node or block explorer. EsploraRPC in esplora.go is the
// concrete adapter in this package; others plug in behind the same interface.
type BitcoinRPC interface {
	GetAddressUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetMempoolTxIDs(ctx context.Context, address string) ([]string, error)
	GetRawTransaction(ctx context.Context, txID string) (*RawTx, error)
	BroadcastTransaction(ctx context.Context, rawTxHex string) (string, error)
	GetBlockHeight(ctx context.Context) (int64, error)
	EstimateFee(ctx context.Context) (*FeeEstimate, error)
}
