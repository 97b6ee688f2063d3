package swapcore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lp-intermediary/swapd/internal/btcwatcher"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/pluginbus"
	"github.com/lp-intermediary/swapd/internal/quote"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/internal/swapcontract"
	"github.com/lp-intermediary/swapd/pkg/logging"
)

// BTCWallet holds the LP's own hot-wallet material used to fund ToBtc sends
// (spec.md §4.4), separate from the per-swap deposit addresses Watcher tracks.
type BTCWallet struct {
	FundingAddress string
	ChangeAddress  string
	PrivKey        *btcec.PrivateKey
	Params         *chaincfg.Params
}

// Core is the SwapCore spec.md §2 and §4 describe: it owns the durable Swap
// records for every direction, drives their state machines in reaction to
// SC-chain events and Bitcoin/Lightning observation, and runs the three
// watchdogs spec.md §5 names.
type Core struct {
	cfg       *config.Config
	store     *storage.Storage
	quotes    *quote.Engine
	contracts map[uint64]swapcontract.SwapContract
	btc       *btcwatcher.Watcher
	ln        lightning.Node
	btcWallet *BTCWallet
	locks     hashLocks
	plugins   pluginbus.Bus
	log       *logging.Logger
}

// New wires a Core from its collaborators. ln may be nil when no direction
// configured uses Lightning; wallet may be nil when no direction configured
// uses ToBtc/TrustedFromBtc. Plugin hooks are a no-op until SetPluginBus is
// called.
func New(cfg *config.Config, store *storage.Storage, quotes *quote.Engine, contracts map[uint64]swapcontract.SwapContract, btc *btcwatcher.Watcher, ln lightning.Node, wallet *BTCWallet) *Core {
	return &Core{
		cfg:       cfg,
		store:     store,
		quotes:    quotes,
		contracts: contracts,
		btc:       btc,
		ln:        ln,
		btcWallet: wallet,
		plugins:   pluginbus.Noop{},
		log:       logging.GetDefault().Component("swapcore"),
	}
}

// SetPluginBus replaces the Core's PluginBus, spec.md §2.
func (c *Core) SetPluginBus(bus pluginbus.Bus) {
	c.plugins = bus
}

// Run starts the three watchdogs (spec.md §5) and blocks until ctx is
// cancelled.
func (c *Core) Run(ctx context.Context) {
	var tickers []*time.Ticker

	processPast := time.NewTicker(c.cfg.Watchdogs.ProcessPastSwapsInterval)
	doubleSpend := time.NewTicker(c.cfg.Watchdogs.DoubleSpendInterval)
	tickers = append(tickers, processPast, doubleSpend)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	go c.eventLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("swapcore shutting down")
			return
		case <-processPast.C:
			c.processPastSwaps(ctx)
		case <-doubleSpend.C:
			c.doubleSpendWatchdog(ctx)
		}
	}
}

// processPastSwaps reloads every unfinished swap across every configured
// direction and re-drives its state machine against the current view of
// chain and mempool, spec.md §5.
func (c *Core) processPastSwaps(ctx context.Context) {
	for dir, unfinished := range unfinishedStatesByDirection {
		records, err := c.store.ListByDirectionState(ctx, string(dir), unfinished)
		if err != nil {
			c.log.Error("processPastSwaps: list failed", "direction", dir, "err", err)
			continue
		}
		for _, r := range records {
			c.advance(ctx, r)
		}
	}
}

// unfinishedStatesByDirection lists every non-terminal state per direction,
// the candidate set processPastSwaps re-drives.
var unfinishedStatesByDirection = map[Direction][]string{
	DirFromBtc:          {StateCreated, StateCommited, StateBTCConfirmed, StateRefundable},
	DirFromBtcLn:        {StateFLPRCreated, StateFLPRPaid, StateFLClaimCommited},
	DirToBtc:            {StateTBCreated, StateTBCommited, StateTBSending, StateTBSent},
	DirToBtcLn:          {StateTLCreated, StateTLCommited, StateTLPaid},
	DirTrustedFromBtcLn: {StateTrCreated, StateTrReceived, StateTrCrediting, StateTrRefunding},
}

// advance dispatches a stored record to its direction's state machine under
// the record's per-hash lock, per spec.md §5's critical-section discipline.
func (c *Core) advance(ctx context.Context, r *storage.Record) {
	timeout := c.cfg.Watchdogs.PerHashLockTimeout
	err := c.locks.withHashLock(ctx, r.PaymentHash, timeout, func(ctx context.Context) error {
		return c.advanceLocked(ctx, r)
	})
	if err != nil {
		if err == ErrLockTimeout {
			c.log.Warn("skipping tick: lock busy", "payment_hash", hex.EncodeToString(r.PaymentHash[:]))
			return
		}
		c.log.Error("advance failed", "payment_hash", hex.EncodeToString(r.PaymentHash[:]), "err", err)
	}
}

func (c *Core) advanceLocked(ctx context.Context, r *storage.Record) error {
	switch Direction(r.Direction) {
	case DirFromBtc:
		return c.advanceFromBtc(ctx, r)
	case DirFromBtcLn:
		return c.advanceFromBtcLn(ctx, r)
	case DirToBtc:
		return c.advanceToBtc(ctx, r)
	case DirToBtcLn:
		return c.advanceToBtcLn(ctx, r)
	case DirTrustedFromBtcLn:
		return c.advanceTrusted(ctx, r)
	default:
		return fmt.Errorf("swapcore: unknown direction %q", r.Direction)
	}
}

// doubleSpendWatchdog checks every TrustedFromBtc(Ln) swap with an
// accepted-but-unconfirmed funding tx to see if it vanished from the
// mempool, spec.md §5/§4.6/P7.
func (c *Core) doubleSpendWatchdog(ctx context.Context) {
	records, err := c.store.ListByDirectionState(ctx, string(DirTrustedFromBtcLn), []string{StateTrReceived})
	if err != nil {
		c.log.Error("doubleSpendWatchdog: list failed", "err", err)
		return
	}
	for _, r := range records {
		c.advance(ctx, r)
	}
}

// eventLoop subscribes to every configured SC chain's Initialize/Claim/Refund
// events and dispatches them to the matching swap by payment hash, spec.md
// §5. A later SC event supersedes earlier state only when the transition is
// valid per the owning direction's state machine (enforced in the
// apply*Event handlers).
func (c *Core) eventLoop(ctx context.Context) {
	for chainID, contract := range c.contracts {
		go c.watchChainEvents(ctx, chainID, contract)
	}
	<-ctx.Done()
}

func (c *Core) watchChainEvents(ctx context.Context, chainID uint64, contract swapcontract.SwapContract) {
	events, err := contract.SubscribeEvents(ctx, 0)
	if err != nil {
		c.log.Error("eventLoop: subscribe failed", "chain_id", chainID, "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r, err := c.store.Get(ctx, ev.PaymentHash)
			if err != nil {
				c.log.Warn("eventLoop: unknown payment hash", "payment_hash", hex.EncodeToString(ev.PaymentHash[:]), "err", err)
				continue
			}
			timeout := c.cfg.Watchdogs.PerHashLockTimeout
			lockErr := c.locks.withHashLock(ctx, r.PaymentHash, timeout, func(ctx context.Context) error {
				return c.applyEventLocked(ctx, r, ev)
			})
			if lockErr != nil {
				c.log.Error("eventLoop: apply failed", "payment_hash", hex.EncodeToString(ev.PaymentHash[:]), "err", lockErr)
			}
		}
	}
}

func (c *Core) applyEventLocked(ctx context.Context, r *storage.Record, ev swapcontract.Event) error {
	switch Direction(r.Direction) {
	case DirFromBtc:
		return c.applyFromBtcEvent(ctx, r, ev)
	case DirFromBtcLn:
		return c.applyFromBtcLnEvent(ctx, r, ev)
	case DirToBtc:
		return c.applyToBtcEvent(ctx, r, ev)
	case DirToBtcLn:
		return c.applyToBtcLnEvent(ctx, r, ev)
	case DirTrustedFromBtcLn:
		return nil // trusted mode never waits on SC events to progress
	default:
		return fmt.Errorf("swapcore: unknown direction %q", r.Direction)
	}
}

// putState persists data at a new state. It does not check the prior state
// itself: I4 (terminal swaps are never mutated) and monotone transitions rest
// on its callers, which run within the per-hash lock on a freshly-loaded
// record and check its state before calling.
// Every write fires the PluginBus's OnStateTransition hook (spec.md §2).
func (c *Core) putState(ctx context.Context, dir Direction, paymentHash [32]byte, chainID uint64, newState string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("swapcore: marshal record: %w", err)
	}

	var fromState string
	if prev, err := c.store.Get(ctx, paymentHash); err == nil && prev != nil {
		fromState = prev.State
	}

	if err := c.store.Put(ctx, &storage.Record{
		PaymentHash: paymentHash,
		Direction:   string(dir),
		ChainID:     chainID,
		State:       newState,
		Data:        raw,
	}); err != nil {
		return err
	}

	c.plugins.OnStateTransition(ctx, pluginbus.StateTransitionEvent{
		Direction:   dir,
		ChainID:     chainID,
		PaymentHash: paymentHash,
		FromState:   fromState,
		ToState:     newState,
	})
	return nil
}
