package swapcore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

// advanceToBtcLn re-drives a to-btc-lightning swap, spec.md §4.5. Before ever
// paying, it probes the route (probe-before-commit) and bounds the routing
// fee it is willing to spend; on permanent payment failure it signs a
// cooperative refund instead of leaving the user's escrow stuck.
func (c *Core) advanceToBtcLn(ctx context.Context, r *storage.Record) error {
	var d ToBtcLnData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("toBtcLn: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch d.State {
	case StateTLCreated:
		return nil // waits for the Initialize event (applyToBtcLnEvent)

	case StateTLCommited:
		bounds := lightning.RoutingBounds{MaxBaseFeeSats: d.RoutingFeeSatsMax, MaxFeePPM: d.RoutingFeePPMMax}
		probe, err := c.ln.ProbeForRoute(ctx, d.Bolt11, d.SwapData.Amount.Uint64())
		if err != nil {
			return fmt.Errorf("toBtcLn: probe: %w", err)
		}
		d.Confidence = probe.Confidence
		if probe.EstimatedFeeSats > d.RoutingFeeSatsMax {
			return c.refundToBtcLn(ctx, &d)
		}
		result, err := c.ln.PayInvoice(ctx, d.Bolt11, bounds)
		if err != nil {
			if err == lightning.ErrNoRoute || err == lightning.ErrRoutingFeeExceeded {
				return c.refundToBtcLn(ctx, &d)
			}
			return fmt.Errorf("toBtcLn: pay invoice: %w", err)
		}
		switch result.Status {
		case lightning.PaymentSucceeded:
			d.Preimage = result.Preimage
			return c.saveToBtcLn(ctx, &d, StateTLPaid)
		case lightning.PaymentFailed:
			return c.refundToBtcLn(ctx, &d)
		default: // in flight: poll next tick
			return nil
		}

	case StateTLPaid:
		return c.claimToBtcLn(ctx, &d)

	case StateTLRefundable:
		return nil // cooperative refund signed; waits for the on-chain EventRefund

	default:
		return nil // terminal: CLAIMED, REFUNDED
	}
}

// claimToBtcLn submits the SC-chain claim using the real Lightning payment
// preimage, once the invoice has actually been paid.
func (c *Core) claimToBtcLn(ctx context.Context, d *ToBtcLnData) error {
	contract, ok := c.contracts[d.ChainID]
	if !ok {
		return fmt.Errorf("toBtcLn: no SwapContract for chain %d", d.ChainID)
	}
	txID, err := contract.SendClaim(ctx, d.PaymentHash, d.Preimage, nil)
	if err != nil {
		return fmt.Errorf("toBtcLn: send claim: %w", err)
	}
	d.TxIDs.Claim = txID
	return c.saveToBtcLn(ctx, d, StateTLClaimed)
}

// refundToBtcLn signs a cooperative refund authorization for the user once
// the Lightning payment has failed permanently, spec.md §4.5. Signing the
// authorization is not itself a settlement artifact (I4): the swap only
// reaches the terminal REFUNDED state once applyToBtcLnEvent observes the
// matching on-chain EventRefund and records its tx hash.
func (c *Core) refundToBtcLn(ctx context.Context, d *ToBtcLnData) error {
	contract, ok := c.contracts[d.ChainID]
	if !ok {
		return fmt.Errorf("toBtcLn: no SwapContract for chain %d", d.ChainID)
	}
	auth, err := contract.SignRefundAuthorization(ctx, d.PaymentHash)
	if err != nil {
		return fmt.Errorf("toBtcLn: sign refund authorization: %w", err)
	}
	d.SignedQuote.Signature = auth.Signature
	return c.saveToBtcLn(ctx, d, StateTLRefundable)
}

func (c *Core) saveToBtcLn(ctx context.Context, d *ToBtcLnData, newState string) error {
	d.State = newState
	d.Direction = DirToBtcLn
	return c.putState(ctx, DirToBtcLn, d.PaymentHash, d.ChainID, newState, d)
}

// applyToBtcLnEvent reacts to an Initialize/Claim/Refund event for a
// to-btc-lightning swap, spec.md §4.5/§5.
func (c *Core) applyToBtcLnEvent(ctx context.Context, r *storage.Record, ev swapcontract.Event) error {
	var d ToBtcLnData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("toBtcLn: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch ev.Type {
	case swapcontract.EventInitialize:
		if d.State != StateTLCreated {
			return nil // idempotent (P4)
		}
		d.TxIDs.Init = ev.TxHash
		return c.saveToBtcLn(ctx, &d, StateTLCommited)
	case swapcontract.EventClaim:
		return nil // LP-initiated; no-op if observed twice
	case swapcontract.EventRefund:
		if IsTerminal(DirToBtcLn, d.State) {
			return nil
		}
		d.TxIDs.Refund = ev.TxHash
		return c.saveToBtcLn(ctx, &d, StateTLRefunded)
	}
	return nil
}
