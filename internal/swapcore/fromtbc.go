package swapcore

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/lp-intermediary/swapd/internal/btcwatcher"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

// advanceFromBtc re-drives a from-btc-onchain swap against the current
// Bitcoin and SC-chain view, spec.md §4.2.
func (c *Core) advanceFromBtc(ctx context.Context, r *storage.Record) error {
	var d FromBtcData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("fromBtc: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch d.State {
	case StateCreated:
		if time.Now().After(d.ExpiresAt) {
			return c.saveFromBtc(ctx, &d, StateExpired)
		}
		return nil // waits for the Initialize event (applyFromBtcEvent)

	case StateCommited:
		dep, err := c.btc.Poll(ctx, d.PaymentHash)
		if err != nil {
			return fmt.Errorf("fromBtc: poll deposit: %w", err)
		}
		if dep == nil {
			if uint64(time.Now().Unix()) > d.SwapData.Expiry {
				return c.saveFromBtc(ctx, &d, StateRefundable)
			}
			return nil
		}
		d.ObservedTxID = dep.TxID
		d.ObservedVout = dep.Vout
		if !btcwatcher.HasSufficientConfirmations(dep, d.ConfirmationsRequired) {
			return c.saveFromBtc(ctx, &d, StateCommited) // persist observed tx, stay
		}
		c.applyUnderpayOverpay(&d, dep.ValueSats)
		return c.saveFromBtc(ctx, &d, StateBTCConfirmed)

	case StateBTCConfirmed:
		return c.claimFromBtc(ctx, &d)

	case StateRefundable:
		contract, ok := c.contracts[d.ChainID]
		if !ok {
			return fmt.Errorf("fromBtc: no SwapContract for chain %d", d.ChainID)
		}
		txID, err := contract.SendRefund(ctx, d.PaymentHash)
		if err != nil {
			return fmt.Errorf("fromBtc: send refund: %w", err)
		}
		d.TxIDs.Refund = txID
		return c.saveFromBtc(ctx, &d, StateRefunded)

	default:
		return nil // terminal: CLAIMED, REFUNDED, EXPIRED
	}
}

// applyUnderpayOverpay implements spec.md §8's underpay/overpay scenarios:
// if the observed deposit differs from the quoted amount, the adjusted
// input/output are scaled proportionally. Overpayment is scaled the same
// way: there is no upper cap, and a deposit far beyond the configured max
// is not routed to a refund.
func (c *Core) applyUnderpayOverpay(d *FromBtcData, observedSats uint64) {
	observed := new(big.Int).SetUint64(observedSats)
	if observed.Cmp(d.AmountSats) == 0 {
		d.AdjustedInput = d.AmountSats
		d.AdjustedOutput = d.SwapData.Amount
		return
	}
	d.AdjustedInput = observed
	adjustedOutput := new(big.Int).Mul(d.SwapData.Amount, observed)
	adjustedOutput.Div(adjustedOutput, d.AmountSats)
	d.AdjustedOutput = adjustedOutput
}

// claimFromBtc builds and submits the SC-chain claim with an SPV proof of
// the Bitcoin deposit, spec.md §4.2's key algorithm.
func (c *Core) claimFromBtc(ctx context.Context, d *FromBtcData) error {
	contract, ok := c.contracts[d.ChainID]
	if !ok {
		return fmt.Errorf("fromBtc: no SwapContract for chain %d", d.ChainID)
	}
	blockHeight, merkleProof, rawTx, err := c.btc.BuildSPVProof(ctx, d.ObservedTxID, d.ObservedVout)
	if err != nil {
		return fmt.Errorf("fromBtc: build spv proof: %w", err)
	}
	proof := &swapcontract.SPVProof{
		BlockHeight: blockHeight,
		MerkleProof: merkleProof,
		Vout:        d.ObservedVout,
		RawTx:       rawTx,
	}
	txID, err := contract.SendClaim(ctx, d.PaymentHash, [32]byte{}, proof)
	if err != nil {
		return fmt.Errorf("fromBtc: send claim: %w", err)
	}
	d.TxIDs.Claim = txID
	return c.saveFromBtc(ctx, d, StateClaimed)
}

func (c *Core) saveFromBtc(ctx context.Context, d *FromBtcData, newState string) error {
	d.State = newState
	d.Direction = DirFromBtc
	return c.putState(ctx, DirFromBtc, d.PaymentHash, d.ChainID, newState, d)
}

// applyFromBtcEvent reacts to an Initialize/Claim/Refund event for a
// from-btc-onchain swap, spec.md §4.2/§5.
func (c *Core) applyFromBtcEvent(ctx context.Context, r *storage.Record, ev swapcontract.Event) error {
	var d FromBtcData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("fromBtc: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch ev.Type {
	case swapcontract.EventInitialize:
		if d.State != StateCreated {
			return nil // idempotent: already applied (P4)
		}
		d.TxIDs.Init = ev.TxHash
		return c.saveFromBtc(ctx, &d, StateCommited)
	case swapcontract.EventClaim:
		return nil // LP-initiated; no-op if observed twice
	case swapcontract.EventRefund:
		if IsTerminal(DirFromBtc, d.State) {
			return nil
		}
		d.TxIDs.Refund = ev.TxHash
		return c.saveFromBtc(ctx, &d, StateRefunded)
	}
	return nil
}
