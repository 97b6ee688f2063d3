package swapcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

// advanceFromBtcLn re-drives a from-btc-lightning swap, spec.md §4.3.
// Ordering invariant (P5): the HODL invoice is settled strictly after the
// SC-chain preimage reveal is confirmed, never before — so this state
// machine never calls SettleInvoice itself; only applyFromBtcLnEvent does,
// once it has observed a Claim event with a matching preimage.
func (c *Core) advanceFromBtcLn(ctx context.Context, r *storage.Record) error {
	var d FromBtcLnData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("fromBtcLn: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch d.State {
	case StateFLPRCreated:
		if time.Now().After(d.ExpiresAt) {
			return c.saveFromBtcLn(ctx, &d, StateFLQuoteExpired)
		}
		inv, err := c.ln.GetInvoiceStatus(ctx, d.PaymentHash)
		if err != nil {
			return fmt.Errorf("fromBtcLn: invoice status: %w", err)
		}
		if inv.State == lightning.InvoiceAccepted {
			return c.saveFromBtcLn(ctx, &d, StateFLPRPaid)
		}
		return nil

	case StateFLPRPaid:
		contract, ok := c.contracts[d.ChainID]
		if !ok {
			return fmt.Errorf("fromBtcLn: no SwapContract for chain %d", d.ChainID)
		}
		// Accepting the HTLC (not settling) lets the LP safely sign its
		// init authorization tying the invoice hash to the SC-chain HTLC.
		auth, err := contract.SignInitAuthorization(ctx, d.SwapData)
		if err != nil {
			return fmt.Errorf("fromBtcLn: sign init: %w", err)
		}
		d.SignedQuote = SignedQuote{Prefix: auth.Prefix, Timeout: auth.Timeout, Signature: auth.Signature, FeeRate: auth.FeeRate}
		return c.saveFromBtcLn(ctx, &d, StateFLClaimCommited)

	case StateFLClaimCommited:
		if time.Now().Unix() > int64(d.SwapData.Expiry) {
			if err := c.ln.CancelInvoice(ctx, d.PaymentHash); err != nil {
				return fmt.Errorf("fromBtcLn: cancel invoice: %w", err)
			}
			return c.saveFromBtcLn(ctx, &d, StateFLFailed)
		}
		return nil // waits for the Claim event (applyFromBtcLnEvent)

	default:
		return nil // terminal: CLAIM_CLAIMED, FAILED, QUOTE_EXPIRED
	}
}

func (c *Core) saveFromBtcLn(ctx context.Context, d *FromBtcLnData, newState string) error {
	d.State = newState
	d.Direction = DirFromBtcLn
	return c.putState(ctx, DirFromBtcLn, d.PaymentHash, d.ChainID, newState, d)
}

// applyFromBtcLnEvent settles the HODL invoice only once the SC-chain Claim
// event (carrying the preimage) is observed — never earlier (P5).
func (c *Core) applyFromBtcLnEvent(ctx context.Context, r *storage.Record, ev swapcontract.Event) error {
	var d FromBtcLnData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("fromBtcLn: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch ev.Type {
	case swapcontract.EventClaim:
		if d.State != StateFLClaimCommited {
			return nil // idempotent (P4)
		}
		if err := c.ln.SettleInvoice(ctx, ev.Preimage); err != nil {
			return fmt.Errorf("fromBtcLn: settle invoice: %w", err)
		}
		d.TxIDs.Claim = ev.TxHash
		return c.saveFromBtcLn(ctx, &d, StateFLClaimClaimed)
	case swapcontract.EventRefund:
		if IsTerminal(DirFromBtcLn, d.State) {
			return nil
		}
		d.TxIDs.Refund = ev.TxHash
		return c.saveFromBtcLn(ctx, &d, StateFLFailed)
	}
	return nil
}
