package swapcore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lp-intermediary/swapd/internal/btcsend"
	"github.com/lp-intermediary/swapd/internal/chain"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
)

// advanceToBtc re-drives a to-btc-onchain swap, spec.md §4.4. The invariant
// (P6, "never send after SC expiry") is enforced before BuildAndSignPayment
// is ever called: a swap whose SC-chain escrow has expired is abandoned
// rather than funded, since the user could refund the escrow out from under
// a payment already in flight.
func (c *Core) advanceToBtc(ctx context.Context, r *storage.Record) error {
	var d ToBtcData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("toBtc: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch d.State {
	case StateTBCreated:
		return nil // waits for the Initialize event (applyToBtcEvent)

	case StateTBCommited:
		if uint64(time.Now().Unix()) >= c.refundSafeDeadline(d.ChainID, d.SwapData.Expiry) {
			c.log.Warn("toBtc: refusing to send, within SC escrow refund safety margin", "payment_hash", hex.EncodeToString(d.PaymentHash[:]))
			return nil // left COMMITED; the user can only refund, nothing to claim
		}
		if c.btcWallet == nil {
			return fmt.Errorf("toBtc: no BTC wallet configured")
		}
		utxos, err := c.btc.GetOwnUTXOs(ctx, c.btcWallet.FundingAddress)
		if err != nil {
			return fmt.Errorf("toBtc: list own utxos: %w", err)
		}
		rawTxHex, txID, err := btcsend.BuildAndSignPayment(btcsend.PaymentParams{
			UTXOs:         utxos,
			DestAddress:   d.DestinationAddress,
			DestAmount:    d.AmountSats.Uint64(),
			ChangeAddress: c.btcWallet.ChangeAddress,
			FeeRate:       d.SatsPerVByte,
			Params:        c.btcWallet.Params,
			PrivKey:       c.btcWallet.PrivKey,
		})
		if err != nil {
			return fmt.Errorf("toBtc: build payment: %w", err)
		}
		if _, err := c.btc.Broadcast(ctx, rawTxHex); err != nil {
			return fmt.Errorf("toBtc: broadcast: %w", err)
		}
		d.BtcTxID = txID
		d.TxIDs.Commit = txID
		return c.saveToBtc(ctx, &d, StateTBSending)

	case StateTBSending:
		still, err := c.btc.StillInMempool(ctx, d.DestinationAddress, d.BtcTxID)
		if err != nil {
			return fmt.Errorf("toBtc: mempool check: %w", err)
		}
		if !still {
			return nil // neither in the mempool nor among the address's UTXOs; re-check next tick
		}
		confirmed, err := c.toBtcConfirmed(ctx, &d)
		if err != nil {
			return err
		}
		if confirmed {
			return c.saveToBtc(ctx, &d, StateTBSent)
		}
		return nil

	case StateTBSent:
		contract, ok := c.contracts[d.ChainID]
		if !ok {
			return fmt.Errorf("toBtc: no SwapContract for chain %d", d.ChainID)
		}
		// The destination output is always vout 0: BuildAndSignPayment adds
		// it before the (optional) change output.
		blockHeight, merkleProof, rawTx, err := c.btc.BuildSPVProof(ctx, d.BtcTxID, 0)
		if err != nil {
			return fmt.Errorf("toBtc: build spv proof: %w", err)
		}
		proof := &swapcontract.SPVProof{
			BlockHeight: blockHeight,
			MerkleProof: merkleProof,
			Vout:        0,
			RawTx:       rawTx,
		}
		txID, err := contract.SendClaim(ctx, d.PaymentHash, [32]byte{}, proof)
		if err != nil {
			return fmt.Errorf("toBtc: send claim: %w", err)
		}
		d.TxIDs.Claim = txID
		return c.saveToBtc(ctx, &d, StateTBClaimed)

	default:
		return nil // terminal: CLAIMED, REFUNDED
	}
}

// refundSafeDeadline returns the latest unix time the LP may still broadcast
// a Bitcoin payment against an escrow expiring at scExpiry, per spec.md §9(c)
// and property P6: SC_expiry - RefundSafetyBlocks*blocktime*RefundSafetyFactor.
// Past this point the user could refund the escrow out from under a payment
// already in flight, so the send is abandoned instead.
func (c *Core) refundSafeDeadline(chainID uint64, scExpiry uint64) uint64 {
	policy := c.cfg.Bitcoin
	blockTime := uint64(15) // seconds, fallback if the chain isn't registered
	if sc, ok := chain.GetSCChain(chainID); ok && sc.BlockTime > 0 {
		blockTime = uint64(sc.BlockTime)
	}
	margin := float64(policy.RefundSafetyBlocks) * float64(blockTime) * policy.RefundSafetyFactor
	if uint64(margin) >= scExpiry {
		return 0
	}
	return scExpiry - uint64(margin)
}

// toBtcConfirmed reports whether the LP's own sent payment shows up among the
// destination address's UTXOs with at least ConfirmationTarget confirmations.
func (c *Core) toBtcConfirmed(ctx context.Context, d *ToBtcData) (bool, error) {
	utxos, err := c.btc.GetOwnUTXOs(ctx, d.DestinationAddress)
	if err != nil {
		return false, fmt.Errorf("toBtc: confirm check: %w", err)
	}
	for _, u := range utxos {
		if u.TxID == d.BtcTxID && u.Confirmations >= int64(d.ConfirmationTarget) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Core) saveToBtc(ctx context.Context, d *ToBtcData, newState string) error {
	d.State = newState
	d.Direction = DirToBtc
	return c.putState(ctx, DirToBtc, d.PaymentHash, d.ChainID, newState, d)
}

// applyToBtcEvent reacts to an Initialize/Claim/Refund event for a
// to-btc-onchain swap, spec.md §4.4/§5.
func (c *Core) applyToBtcEvent(ctx context.Context, r *storage.Record, ev swapcontract.Event) error {
	var d ToBtcData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("toBtc: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch ev.Type {
	case swapcontract.EventInitialize:
		if d.State != StateTBCreated {
			return nil // idempotent (P4)
		}
		d.TxIDs.Init = ev.TxHash
		return c.saveToBtc(ctx, &d, StateTBCommited)
	case swapcontract.EventClaim:
		return nil // LP-initiated; no-op if observed twice
	case swapcontract.EventRefund:
		if IsTerminal(DirToBtc, d.State) {
			return nil
		}
		d.TxIDs.Refund = ev.TxHash
		return c.saveToBtc(ctx, &d, StateTBRefunded)
	}
	return nil
}
