package swapcore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/lp-intermediary/swapd/internal/btcsend"
	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/storage"
)

// advanceTrusted re-drives a trusted-from-btc(-lightning) swap, spec.md
// §4.6: the LP credits the counterparty optimistically on an unconfirmed
// deposit, racing a burn transaction if the deposit is later replaced (P7).
// Trusted swaps never wait on SC-chain events: no SC escrow is opened for
// them, and the LP pays out with a direct transfer once it decides to
// credit, so there is nothing for applyEventLocked to drive here.
func (c *Core) advanceTrusted(ctx context.Context, r *storage.Record) error {
	var d TrustedFromBtcLnData
	if err := json.Unmarshal(r.Data, &d); err != nil {
		return fmt.Errorf("trusted: unmarshal: %w", err)
	}
	d.PaymentHash = r.PaymentHash

	switch d.State {
	case StateTrCreated:
		if time.Now().After(d.ExpiresAt) {
			return nil // left CREATED; nothing was credited, nothing to unwind
		}
		if d.Bolt11 != "" {
			return c.pollTrustedLn(ctx, &d)
		}
		return c.pollTrustedOnchain(ctx, &d)

	case StateTrReceived:
		return c.checkDoubleSpend(ctx, &d)

	case StateTrCrediting:
		contract, ok := c.contracts[d.ChainID]
		if !ok {
			return fmt.Errorf("trusted: no SwapContract for chain %d", d.ChainID)
		}
		// Trusted swaps never commit/init an SC-chain escrow for this payment
		// hash (see advanceTrusted's doc above), so there is nothing for SendClaim
		// to claim against: the LP instead sends tokens directly from its own
		// account via a plain transfer.
		txID, err := contract.SendDirect(ctx, d.SwapData.Token, d.SwapData.Claimer, d.AdjustedOutput)
		if err != nil {
			return fmt.Errorf("trusted: send tokens: %w", err)
		}
		d.FundingTxID = txID
		return c.saveTrusted(ctx, &d, StateTrFinished)

	case StateTrRefunding:
		contract, ok := c.contracts[d.ChainID]
		if !ok {
			return fmt.Errorf("trusted: no SwapContract for chain %d", d.ChainID)
		}
		txID, err := contract.SendRefund(ctx, d.PaymentHash)
		if err != nil {
			return fmt.Errorf("trusted: send refund: %w", err)
		}
		d.TxIDs.Refund = txID
		return c.saveTrusted(ctx, &d, StateTrRefunded)

	default:
		return nil // terminal: FINISHED, DOUBLE_SPENT, REFUNDED
	}
}

func (c *Core) pollTrustedLn(ctx context.Context, d *TrustedFromBtcLnData) error {
	inv, err := c.ln.GetInvoiceStatus(ctx, d.PaymentHash)
	if err != nil {
		return fmt.Errorf("trusted: invoice status: %w", err)
	}
	if inv.State != lightning.InvoiceAccepted {
		return nil
	}
	d.AdjustedInput = d.InputSats
	d.AdjustedOutput = d.OutputTokens
	return c.saveTrusted(ctx, d, StateTrReceived)
}

func (c *Core) pollTrustedOnchain(ctx context.Context, d *TrustedFromBtcLnData) error {
	dep, err := c.btc.Poll(ctx, d.PaymentHash)
	if err != nil {
		return fmt.Errorf("trusted: poll deposit: %w", err)
	}
	if dep == nil {
		return nil
	}
	observed := new(big.Int).SetUint64(dep.ValueSats)
	if observed.Cmp(d.InputSats) == 0 {
		d.AdjustedInput = d.InputSats
		d.AdjustedOutput = d.OutputTokens
	} else {
		d.AdjustedInput = observed
		adjusted := new(big.Int).Mul(d.OutputTokens, observed)
		adjusted.Div(adjusted, d.InputSats)
		d.AdjustedOutput = adjusted
	}
	d.FundingTxID = dep.TxID
	return c.saveTrusted(ctx, d, StateTrReceived)
}

// checkDoubleSpend is the trusted-mode double-spend watchdog step (spec.md
// §5, P7): if the credited deposit has vanished from the mempool (replaced),
// the LP races its own burn transaction and marks the swap unrecoverable
// rather than crediting against a tx that no longer exists.
func (c *Core) checkDoubleSpend(ctx context.Context, d *TrustedFromBtcLnData) error {
	if d.FundingTxID == "" {
		return c.saveTrusted(ctx, d, StateTrCrediting) // Lightning path: no on-chain tx to watch
	}
	if c.btcWallet == nil {
		return c.saveTrusted(ctx, d, StateTrCrediting)
	}
	// Trusted deposits land directly in the LP's own wallet address (no
	// escrow), so that's the address to recheck for a replacement.
	still, err := c.btc.StillInMempool(ctx, c.btcWallet.FundingAddress, d.FundingTxID)
	if err != nil {
		return fmt.Errorf("trusted: mempool check: %w", err)
	}
	if still {
		return c.saveTrusted(ctx, d, StateTrCrediting)
	}

	if c.btcWallet == nil {
		c.log.Error("trusted: double-spend detected but no wallet configured to burn", "payment_hash", hex.EncodeToString(d.PaymentHash[:]))
		return c.saveTrusted(ctx, d, StateTrDoubleSpent)
	}
	utxos, err := c.btc.GetOwnUTXOs(ctx, c.btcWallet.FundingAddress)
	if err != nil || len(utxos) == 0 {
		return c.saveTrusted(ctx, d, StateTrDoubleSpent)
	}
	burnHex, burnTxID, err := btcsend.BuildBurnTransaction(utxos[0], d.PaymentHash, 10, c.btcWallet.PrivKey)
	if err != nil {
		c.log.Error("trusted: burn transaction build failed", "err", err)
		return c.saveTrusted(ctx, d, StateTrDoubleSpent)
	}
	if _, err := c.btc.Broadcast(ctx, burnHex); err != nil {
		c.log.Error("trusted: burn transaction broadcast failed", "err", err)
	}
	d.BurnTxID = burnTxID
	return c.saveTrusted(ctx, d, StateTrDoubleSpent)
}

func (c *Core) saveTrusted(ctx context.Context, d *TrustedFromBtcLnData, newState string) error {
	d.State = newState
	d.Direction = DirTrustedFromBtcLn
	return c.putState(ctx, DirTrustedFromBtcLn, d.PaymentHash, d.ChainID, newState, d)
}
