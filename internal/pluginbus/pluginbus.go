// Package pluginbus exposes the synchronous hook contract around quote
// creation and swap state transitions (spec.md §2's PluginBus); any actual
// plugin implementation (risk scoring, external accounting, alerting) is out
// of scope, only the contract callers invoke it through.
package pluginbus

import (
	"context"
	"math/big"

	"github.com/lp-intermediary/swapd/internal/config"
)

// QuoteEvent is passed to OnQuoteCreated once a quote has been computed and
// signed, before it is returned to the caller.
type QuoteEvent struct {
	Direction   config.Direction
	ChainID     uint64
	Token       string
	PaymentHash [32]byte
	AmountSats  *big.Int
	SwapFeeSats *big.Int
}

// StateTransitionEvent is passed to OnStateTransition on every durable state
// write a Swap record makes (swapcore.Core.putState).
type StateTransitionEvent struct {
	Direction   config.Direction
	ChainID     uint64
	PaymentHash [32]byte
	FromState   string
	ToState     string
}

// Bus is the synchronous hook contract. Both methods run inline on the
// calling goroutine: a slow or blocking Bus implementation slows quoting and
// state advancement directly, so implementations must return quickly.
type Bus interface {
	OnQuoteCreated(ctx context.Context, ev QuoteEvent)
	OnStateTransition(ctx context.Context, ev StateTransitionEvent)
}

// Noop is a Bus that does nothing, the default when no plugin is configured.
type Noop struct{}

func (Noop) OnQuoteCreated(ctx context.Context, ev QuoteEvent)             {}
func (Noop) OnStateTransition(ctx context.Context, ev StateTransitionEvent) {}

var _ Bus = Noop{}

// Chain fans a single call out to multiple buses in order, so more than one
// plugin can observe the same events.
type Chain []Bus

func (c Chain) OnQuoteCreated(ctx context.Context, ev QuoteEvent) {
	for _, b := range c {
		b.OnQuoteCreated(ctx, ev)
	}
}

func (c Chain) OnStateTransition(ctx context.Context, ev StateTransitionEvent) {
	for _, b := range c {
		b.OnStateTransition(ctx, ev)
	}
}

var _ Bus = Chain(nil)
