// Package lightning abstracts the Lightning node capabilities the LP needs:
// creating/cancelling/settling HODL invoices, paying BOLT11 invoices with
// routing bounds, and probing a route before committing (spec.md §1, §4.5 -
// implementing a Lightning node itself is out of scope).
package lightning

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	ErrInvoiceNotFound  = errors.New("lightning: invoice not found")
	ErrPaymentFailed    = errors.New("lightning: payment failed permanently")
	ErrNoRoute          = errors.New("lightning: no route found")
	ErrRoutingFeeExceeded = errors.New("lightning: routing fee exceeds cap")
)

// InvoiceState mirrors a HODL invoice's lifecycle.
type InvoiceState string

const (
	InvoiceOpen      InvoiceState = "open"
	InvoiceAccepted  InvoiceState = "accepted" // HTLC accepted but not settled
	InvoiceSettled   InvoiceState = "settled"
	InvoiceCanceled  InvoiceState = "canceled"
)

// Invoice describes a HODL invoice's observable state.
type Invoice struct {
	PaymentHash [32]byte
	Bolt11      string
	State       InvoiceState
	AmountSats  uint64
	ExpiresAt   time.Time
}

// PaymentStatus describes the result of a PayInvoice call, spec.md §4.5.
type PaymentStatus string

const (
	PaymentInFlight PaymentStatus = "in_flight"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentResult is returned by PayInvoice and by polling an in-flight payment.
type PaymentResult struct {
	Status        PaymentStatus
	Preimage      [32]byte
	FeeSats       uint64
	FailureReason string
}

// ProbeResult is the outcome of probeForRoute, used by ToBtcLn's
// probe-before-commit rule (spec.md §4.5).
type ProbeResult struct {
	Confidence     float64 // 0..1, expected probability of success
	EstimatedFeeSats uint64
}

// RoutingBounds caps what PayInvoice is allowed to spend on routing,
// spec.md §4.5 (maxRoutingBaseFee / maxRoutingPPM).
type RoutingBounds struct {
	MaxBaseFeeSats uint64
	MaxFeePPM      int64
}

// FeeCap returns the maximum routing fee allowed for the given payment amount.
func (b RoutingBounds) FeeCap(amountSats *big.Int) *big.Int {
	ppmFee := new(big.Int).Mul(amountSats, big.NewInt(b.MaxFeePPM))
	ppmFee.Div(ppmFee, big.NewInt(1_000_000))
	return ppmFee.Add(ppmFee, new(big.Int).SetUint64(b.MaxBaseFeeSats))
}

// Node is the abstract Lightning node capability.
type Node interface {
	// CreateHODLInvoice creates an invoice whose payment hash is fixed to
	// paymentHash (it must match the SC-chain swap hash, spec.md §4.3) and
	// whose incoming HTLC is held rather than auto-settled.
	CreateHODLInvoice(ctx context.Context, paymentHash [32]byte, amountSats uint64, expiry time.Duration) (*Invoice, error)
	// CancelInvoice cancels a held invoice, returning funds to the sender.
	CancelInvoice(ctx context.Context, paymentHash [32]byte) error
	// SettleInvoice releases a held invoice's HTLC using preimage.
	SettleInvoice(ctx context.Context, preimage [32]byte) error
	// GetInvoiceStatus returns the current state of a HODL invoice.
	GetInvoiceStatus(ctx context.Context, paymentHash [32]byte) (*Invoice, error)

	// ProbeForRoute estimates the probability of successfully paying bolt11
	// without actually sending the payment.
	ProbeForRoute(ctx context.Context, bolt11 string, amountSats uint64) (*ProbeResult, error)
	// PayInvoice pays a BOLT11 invoice within the given routing bounds.
	PayInvoice(ctx context.Context, bolt11 string, bounds RoutingBounds) (*PaymentResult, error)
	// GetPaymentStatus polls the status of a previously-initiated payment.
	GetPaymentStatus(ctx context.Context, paymentHash [32]byte) (*PaymentResult, error)
}
