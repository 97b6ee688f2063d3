package pluginbus

import (
	"context"
	"testing"

	"github.com/lp-intermediary/swapd/internal/config"
)

type recordingBus struct {
	quotes      []QuoteEvent
	transitions []StateTransitionEvent
}

func (r *recordingBus) OnQuoteCreated(ctx context.Context, ev QuoteEvent) {
	r.quotes = append(r.quotes, ev)
}

func (r *recordingBus) OnStateTransition(ctx context.Context, ev StateTransitionEvent) {
	r.transitions = append(r.transitions, ev)
}

func TestNoopDoesNothing(t *testing.T) {
	var bus Bus = Noop{}
	bus.OnQuoteCreated(context.Background(), QuoteEvent{})
	bus.OnStateTransition(context.Background(), StateTransitionEvent{})
}

func TestChainFansOutInOrder(t *testing.T) {
	a := &recordingBus{}
	b := &recordingBus{}
	chain := Chain{a, b}

	ev := StateTransitionEvent{Direction: config.FromBtc, FromState: "awaiting_payment", ToState: "claimed"}
	chain.OnStateTransition(context.Background(), ev)

	if len(a.transitions) != 1 || a.transitions[0] != ev {
		t.Errorf("bus a did not observe the transition")
	}
	if len(b.transitions) != 1 || b.transitions[0] != ev {
		t.Errorf("bus b did not observe the transition")
	}
}

func TestChainEmptyIsNoop(t *testing.T) {
	var chain Chain
	chain.OnQuoteCreated(context.Background(), QuoteEvent{})
	chain.OnStateTransition(context.Background(), StateTransitionEvent{})
}
