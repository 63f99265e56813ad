package events

import (
	"context"
	"sync"

	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
)

// BookChangedHandler runs after a committed mutation of the resting book.
type BookChangedHandler func(ctx context.Context)

// PayoutExecutedHandler runs after an obligation left on its rail.
// Reference is the txid or unit that carried it.
type PayoutExecutedHandler func(ctx context.Context, obligation settlementv1.Obligation, reference string)

// Dispatcher is the in-process event bus tying the matching, instant and
// settlement components together without import cycles. Handlers run
// synchronously in registration order, on the emitter's goroutine.
type Dispatcher struct {
	mu             sync.RWMutex
	bookChanged    []BookChangedHandler
	payoutExecuted []PayoutExecutedHandler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnBookChanged registers a handler for book mutations.
func (d *Dispatcher) OnBookChanged(h BookChangedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bookChanged = append(d.bookChanged, h)
}

// OnPayoutExecuted registers a handler for completed payouts.
func (d *Dispatcher) OnPayoutExecuted(h PayoutExecutedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payoutExecuted = append(d.payoutExecuted, h)
}

// EmitBookChanged runs the book-changed handlers.
func (d *Dispatcher) EmitBookChanged(ctx context.Context) {
	d.mu.RLock()
	handlers := d.bookChanged
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ctx)
	}
}

// EmitPayoutExecuted runs the payout-executed handlers.
func (d *Dispatcher) EmitPayoutExecuted(ctx context.Context, obligation settlementv1.Obligation, reference string) {
	d.mu.RLock()
	handlers := d.payoutExecuted
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, obligation, reference)
	}
}
