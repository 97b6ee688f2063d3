// Package swapcontract defines the abstract SC-chain capability spec.md §2
// calls ChainAdapter (the `SwapContract` capability): create swap data, sign
// init/refund authorizations, send/confirm transactions, read commit
// status, and subscribe to Initialize/Claim/Refund events. A concrete EVM
// implementation lives in evm.go, adapted from the teacher's
// internal/contracts/htlc client; other SC chains plug in behind the same
// interface (spec.md §1: implementing the SC chain itself is out of scope).
package swapcontract

import (
	"context"
	"errors"
	"math/big"
)

var (
	ErrSwapNotFound        = errors.New("swapcontract: swap not found")
	ErrNotClaimable        = errors.New("swapcontract: swap not claimable")
	ErrNotRefundable       = errors.New("swapcontract: swap not refundable")
	ErrSignatureInvalid    = errors.New("swapcontract: signature verification failed")
	ErrCommitStatusUnknown = errors.New("swapcontract: commit status unknown")
)

// SwapType distinguishes which side pays in (offerer vs claimer), used to
// enforce I3 from spec.md §3.
type SwapType string

const (
	SwapTypeFromBtc SwapType = "from_btc" // claimer = LP
	SwapTypeToBtc   SwapType = "to_btc"   // offerer = user, pay_in = true
)

// SwapData is the opaque escrow payload spec.md §3 describes: offerer,
// claimer, token, amount, hash, expiry, confirmations, sequence,
// security_deposit, claimer_bounty, type, pay_in flag.
type SwapData struct {
	Offerer          string
	Claimer          string
	Token            string
	Amount           *big.Int
	Hash             [32]byte
	Expiry           uint64 // unix seconds
	Confirmations    uint32
	Sequence         uint64
	SecurityDeposit  *big.Int
	ClaimerBounty    *big.Int
	Type             SwapType
	PayIn            bool
}

// CommitStatus reports whether a swap escrow exists and its lifecycle state
// on the SC chain.
type CommitStatus string

const (
	CommitNone      CommitStatus = "none"
	CommitCommitted CommitStatus = "committed"
	CommitClaimed   CommitStatus = "claimed"
	CommitRefunded  CommitStatus = "refunded"
	CommitExpired   CommitStatus = "expired"
)

// InitAuthorization is the LP's signed permission for a client to commit a
// swap with the exact parameters quoted (spec.md §4.1).
type InitAuthorization struct {
	Prefix    string
	Timeout   uint64
	Signature []byte
	FeeRate   *big.Int
}

// RefundAuthorization is a cooperative refund message: the LP authorizes the
// user to refund an escrow before its time-lock expires (spec.md §GLOSSARY,
// §4.5).
type RefundAuthorization struct {
	Signature []byte
	ExpiresAt uint64
}

// SPVProof carries the Bitcoin inclusion proof a FromBtc claim submits to
// the SC chain (spec.md §4.2).
type SPVProof struct {
	BlockHeight uint32
	MerkleProof [][]byte
	Vout        uint32
	RawTx       []byte
}

// Event is the common shape of Initialize/Claim/Refund events (spec.md §5).
type Event struct {
	Type        EventType
	PaymentHash [32]byte
	BlockNumber uint64
	TxHash      string
	Preimage    [32]byte // set only for Claim events
}

// EventType discriminates SC-chain events.
type EventType string

const (
	EventInitialize EventType = "Initialize"
	EventClaim      EventType = "Claim"
	EventRefund     EventType = "Refund"
)

// SwapContract is the abstract ChainAdapter capability every SwapCore state
// machine drives.
type SwapContract interface {
	// ChainID identifies the SC chain this adapter talks to.
	ChainID() uint64

	// CreateSwapData builds the opaque escrow payload for a new swap.
	CreateSwapData(ctx context.Context, data SwapData) ([]byte, error)

	// SignInitAuthorization signs the LP's permission for the client to
	// commit, binding it to the exact quoted terms.
	SignInitAuthorization(ctx context.Context, data SwapData) (*InitAuthorization, error)

	// SignRefundAuthorization signs a cooperative refund message (spec.md
	// §4.5's "Lightning payment failed permanently" path).
	SignRefundAuthorization(ctx context.Context, paymentHash [32]byte) (*RefundAuthorization, error)

	// SendClaim submits a claim transaction. proof is non-nil only for
	// FromBtc (SPV-backed) claims; it is nil for FromBtcLn (preimage-backed).
	SendClaim(ctx context.Context, paymentHash [32]byte, preimage [32]byte, proof *SPVProof) (txID string, err error)

	// SendDirect transfers amount of token to recipient straight from the
	// LP's own account, bypassing the escrow entirely. Used by
	// TrustedFromBtcLn (spec.md §4.6): trusted swaps never commit/init an
	// SC-chain escrow, so there is nothing for SendClaim to claim against.
	SendDirect(ctx context.Context, token string, recipient string, amount *big.Int) (txID string, err error)

	// SendRefund submits a refund transaction.
	SendRefund(ctx context.Context, paymentHash [32]byte) (txID string, err error)

	// GetCommitStatus reads the current on-chain state of a swap escrow.
	GetCommitStatus(ctx context.Context, paymentHash [32]byte) (CommitStatus, error)

	// WaitForConfirmation blocks until txID has the chain's configured
	// number of confirmations or ctx is cancelled.
	WaitForConfirmation(ctx context.Context, txID string) error

	// SubscribeEvents streams Initialize/Claim/Refund events starting from
	// fromBlock. The returned channel is closed when ctx is cancelled.
	SubscribeEvents(ctx context.Context, fromBlock uint64) (<-chan Event, error)
}
