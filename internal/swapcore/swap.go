// Package swapcore implements the per-direction swap state engines spec.md
// §4.2-§4.6 describe: FromBtc, FromBtcLn, ToBtc, ToBtcLn, and the trusted
// custodial variants. Each swap is a tagged-union record keyed by payment
// hash (spec.md §3's "Swap (base)" plus a direction-specific extension),
// mutated only inside the per-hash critical section lock.go provides.
package swapcore

import (
	"math/big"
	"time"

	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

// Direction re-exports config.Direction so callers only need one import for
// the direction vocabulary.
type Direction = config.Direction

const (
	DirFromBtc          = config.FromBtc
	DirFromBtcLn         = config.FromBtcLn
	DirToBtc             = config.ToBtc
	DirToBtcLn           = config.ToBtcLn
	DirTrustedFromBtcLn  = config.TrustedFromBtcLn
)

// TxIDs records every transaction id touching a swap's lifecycle, spec.md §3.
type TxIDs struct {
	Init   string `json:"init,omitempty"`
	Commit string `json:"commit,omitempty"`
	Claim  string `json:"claim,omitempty"`
	Refund string `json:"refund,omitempty"`
	Burn   string `json:"burn,omitempty"`
}

// PriceInfo is the price snapshot a quote was computed against, spec.md §3.
type PriceInfo struct {
	BaseFeeSats           uint64   `json:"base_fee_sats"`
	FeePPM                int64    `json:"fee_ppm"`
	SwapPriceMicroSatsPerToken *big.Int `json:"swap_price_musat_per_token"`
}

// SignedQuote is the LP's init authorization, carried on the swap record so
// it can be replayed in status responses, spec.md §3/§6.
type SignedQuote struct {
	Prefix    string   `json:"prefix"`
	Timeout   uint64   `json:"timeout"`
	Signature []byte   `json:"signature"`
	FeeRate   *big.Int `json:"fee_rate,omitempty"`
}

// Metadata holds free-form timing marks (e.g. "committed_at", "claimed_at").
type Metadata map[string]time.Time

// Base holds the fields common to every direction, spec.md §3.
type Base struct {
	PaymentHash [32]byte            `json:"-"`
	Direction   Direction           `json:"direction"`
	State       string              `json:"state"`
	ChainID     uint64              `json:"chain_id"`
	SwapData    swapcontract.SwapData `json:"swap_data"`
	SwapFee     *big.Int            `json:"swap_fee"`     // token units
	SwapFeeBTC  *big.Int            `json:"swap_fee_btc"` // sats
	NetworkFee  *big.Int            `json:"network_fee,omitempty"` // ToBtc variants only, sats
	PriceInfo   PriceInfo           `json:"price_info"`
	SignedQuote SignedQuote         `json:"signed_quote"`
	TxIDs       TxIDs               `json:"tx_ids"`
	Metadata    Metadata            `json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// IsTerminal reports whether state is a terminal value for dir, per the
// state tables in spec.md §4.2-§4.6. Terminal swaps are never mutated (I4).
func IsTerminal(dir Direction, state string) bool {
	terminals := terminalStates[dir]
	for _, s := range terminals {
		if s == state {
			return true
		}
	}
	return false
}

var terminalStates = map[Direction][]string{
	DirFromBtc:         {StateClaimed, StateRefunded, StateExpired},
	DirFromBtcLn:        {StateFLClaimClaimed, StateFLFailed, StateFLQuoteExpired},
	DirToBtc:            {StateTBClaimed, StateTBRefunded},
	DirToBtcLn:          {StateTLClaimed, StateTLRefunded},
	DirTrustedFromBtcLn: {StateTrFinished, StateTrDoubleSpent, StateTrRefunded},
}

// FromBtcData extends Base for the from-btc-onchain direction, spec.md §3/§4.2.
type FromBtcData struct {
	Base
	BtcAddress            string `json:"btc_address"`
	AmountSats            *big.Int `json:"amount_sats"`
	TXOHash               [32]byte `json:"txo_hash"`
	ConfirmationsRequired uint32 `json:"confirmations_required"`
	ObservedTxID          string `json:"observed_tx_id,omitempty"`
	ObservedVout          uint32 `json:"observed_vout,omitempty"`
	AdjustedInput         *big.Int `json:"adjusted_input,omitempty"`
	AdjustedOutput        *big.Int `json:"adjusted_output,omitempty"`
	RefundAddress         string `json:"refund_address,omitempty"`
}

// FromBtcLnData extends Base for from-btc-lightning, spec.md §3/§4.3.
type FromBtcLnData struct {
	Base
	Bolt11        string `json:"bolt11"`
	PaymentSecret string `json:"payment_secret,omitempty"`
	LNURL         string `json:"lnurl,omitempty"`
}

// ToBtcData extends Base for to-btc-onchain, spec.md §3/§4.4.
type ToBtcData struct {
	Base
	DestinationAddress string   `json:"destination_address"`
	AmountSats          *big.Int `json:"amount_sats"`
	ConfirmationTarget  uint32   `json:"confirmation_target"`
	SatsPerVByte        uint64   `json:"sats_per_vbyte"`
	BtcTxID             string   `json:"btc_tx_id,omitempty"`
}

// ToBtcLnData extends Base for to-btc-lightning, spec.md §3/§4.5.
type ToBtcLnData struct {
	Base
	Bolt11             string   `json:"bolt11"`
	Confidence         float64  `json:"confidence"`
	RoutingFeeSatsMax  uint64   `json:"routing_fee_sats_max"`
	RoutingFeePPMMax   int64    `json:"routing_fee_ppm_max"`
	Preimage           [32]byte `json:"preimage,omitempty"`
}

// TrustedFromBtcLnData extends Base for the custodial bootstrap mode,
// spec.md §3/§4.6. Despite the name it also covers trusted-from-btc
// (on-chain funding instead of Lightning); Bolt11 is empty in that case.
type TrustedFromBtcLnData struct {
	Base
	Bolt11          string   `json:"bolt11,omitempty"`
	InputSats       *big.Int `json:"input_sats"`
	OutputTokens    *big.Int `json:"output_tokens"`
	RecommendedFee  uint64   `json:"recommended_fee"`
	RefundAddress   string   `json:"refund_address,omitempty"`
	AdjustedInput   *big.Int `json:"adjusted_input,omitempty"`
	AdjustedOutput  *big.Int `json:"adjusted_output,omitempty"`
	FundingTxID     string   `json:"funding_tx_id,omitempty"`
	BurnTxID        string   `json:"burn_tx_id,omitempty"`
}
