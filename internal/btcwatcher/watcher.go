package btcwatcher

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lp-intermediary/swapd/pkg/logging"
)

// Deposit is an observed UTXO matched against a watched address's expected
// TXO hash.
type Deposit struct {
	Address       string
	TxID          string
	Vout          uint32
	ValueSats     uint64
	ScriptPubKey  []byte
	Confirmed     bool
	BlockHeight   int64
	Confirmations int64
}

// WatchTarget is one address the watcher is tracking on behalf of a swap.
type WatchTarget struct {
	PaymentHash [32]byte
	Address     string
	ExpectedSats uint64 // 0 means any amount is accepted (underpay/overpay handled by caller)
}

// Watcher observes a set of registered addresses and reports deposits,
// applying the tie-break rule from spec.md §4.2: when multiple deposits land
// at the same address, the earliest confirmed one wins; the watcher sorts by
// (confirmed desc, block_height asc).
type Watcher struct {
	mu      sync.RWMutex
	rpc     BitcoinRPC
	targets map[[32]byte]*WatchTarget // keyed by payment_hash
	log     *logging.Logger
}

// New creates a Watcher bound to a BitcoinRPC client.
func New(rpc BitcoinRPC) *Watcher {
	return &Watcher{
		rpc:     rpc,
		targets: make(map[[32]byte]*WatchTarget),
		log:     logging.GetDefault().Component("btcwatcher"),
	}
}

// Register starts tracking an address for a swap. Idempotent.
func (w *Watcher) Register(t *WatchTarget) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.targets[t.PaymentHash] = t
}

// Unregister stops tracking a swap's address.
func (w *Watcher) Unregister(paymentHash [32]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.targets, paymentHash)
}

// Poll checks a single registered swap's address for UTXOs and returns the
// winning deposit, if any, per the tie-break rule. Returns (nil, nil) if
// nothing has landed yet.
func (w *Watcher) Poll(ctx context.Context, paymentHash [32]byte) (*Deposit, error) {
	w.mu.RLock()
	target, ok := w.targets[paymentHash]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("btcwatcher: no target registered for payment hash")
	}

	utxos, err := w.rpc.GetAddressUTXOs(ctx, target.Address)
	if err != nil {
		return nil, fmt.Errorf("btcwatcher: get utxos: %w", err)
	}
	if len(utxos) == 0 {
		return nil, nil
	}

	sort.Slice(utxos, func(i, j int) bool {
		iConf := utxos[i].Confirmations > 0
		jConf := utxos[j].Confirmations > 0
		if iConf != jConf {
			return iConf // confirmed first
		}
		return utxos[i].BlockHeight < utxos[j].BlockHeight // earliest first
	})

	winner := utxos[0]
	return &Deposit{
		Address:       target.Address,
		TxID:          winner.TxID,
		Vout:          winner.Vout,
		ValueSats:     winner.ValueSats,
		ScriptPubKey:  winner.ScriptPubKey,
		Confirmed:     winner.Confirmations > 0,
		BlockHeight:   winner.BlockHeight,
		Confirmations: winner.Confirmations,
	}, nil
}

// HasSufficientConfirmations reports whether a deposit meets the required
// confirmation count.
func HasSufficientConfirmations(d *Deposit, required uint32) bool {
	return d != nil && d.Confirmations >= int64(required)
}

// StillInMempool checks whether a previously-seen txID is still known to the
// node/mempool, used by the double-spend watchdog (spec.md §5, P7): if the
// tx has disappeared (replaced by a conflicting spend), the caller should
// trigger burn/refund logic.
func (w *Watcher) StillInMempool(ctx context.Context, address, txID string) (bool, error) {
	ids, err := w.rpc.GetMempoolTxIDs(ctx, address)
	if err != nil {
		return false, fmt.Errorf("btcwatcher: mempool lookup: %w", err)
	}
	for _, id := range ids {
		if id == txID {
			return true, nil
		}
	}
	// It may also have confirmed already; check UTXOs for the same txid.
	utxos, err := w.rpc.GetAddressUTXOs(ctx, address)
	if err != nil {
		return false, fmt.Errorf("btcwatcher: utxo lookup: %w", err)
	}
	for _, u := range utxos {
		if u.TxID == txID {
			return true, nil
		}
	}
	return false, nil
}

// BurnPackage describes an OP_RETURN transaction spending the same input as
// a replaced funding tx, marking it unusable without crediting anyone
// (spec.md §4.6, P7).
type BurnPackage struct {
	RawTxHex string
	TxID     string
}

// Broadcast submits a raw transaction (a burn package or a refund) and
// returns its txid.
func (w *Watcher) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	return w.rpc.BroadcastTransaction(ctx, rawTxHex)
}

// GetOwnUTXOs fetches the UTXOs available at the LP's own funding address,
// used by ToBtc sends rather than the per-swap deposit-tracking path above.
func (w *Watcher) GetOwnUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	return w.rpc.GetAddressUTXOs(ctx, address)
}

// BuildSPVProof fetches the raw transaction, merkle inclusion proof, and
// block height for a confirmed deposit, ready to submit as a FromBtc claim
// (spec.md §4.2).
func (w *Watcher) BuildSPVProof(ctx context.Context, txID string, vout uint32) (blockHeight uint32, merkleProof [][]byte, rawTx []byte, err error) {
	raw, err := w.rpc.GetRawTransaction(ctx, txID)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("btcwatcher: get raw tx: %w", err)
	}
	return uint32(raw.BlockHeight), raw.MerkleProof, raw.Raw, nil
}

// MatchesTXO reports whether a deposit's (value, scriptPubKey) matches an
// expected TXO hash, used when a swap is bound to a specific output rather
// than merely an address.
func MatchesTXO(d *Deposit, expected [32]byte) bool {
	got := TXOHash(d.ValueSats, d.ScriptPubKey)
	return bytes.Equal(got[:], expected[:])
}
