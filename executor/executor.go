package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdnx/gomomentum/types"
)

// Executor places an order intent and reports how the request went.
// *exchange.Client is the live implementation.
type Executor interface {
	Submit(ctx context.Context, intent types.OrderIntent) (types.RequestOutcome, error)
}

// PaperExecutor fills every intent immediately at its limit price and keeps
// a cash balance and signed position, for dry runs.
type PaperExecutor struct {
	mu       sync.RWMutex
	balance  float64
	position map[string]float64 // qty (positive = long, negative = short)
	fills    int
}

func NewPaperExecutor(startBalance float64) *PaperExecutor {
	return &PaperExecutor{
		balance:  startBalance,
		position: make(map[string]float64),
	}
}

// Submit books the fill including the expected fee. Buying more than the
// balance allows is rejected; the outcome still reports the attempt.
func (p *PaperExecutor) Submit(ctx context.Context, o types.OrderIntent) (types.RequestOutcome, error) {
	if err := ctx.Err(); err != nil {
		return types.RequestOutcome{FinalState: "canceled"}, err
	}
	if o.Quantity <= 0 {
		return types.RequestOutcome{FinalState: "fatal_failure"}, fmt.Errorf("paper executor: quantity %g must be positive", o.Quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cost := o.LimitPrice * o.Quantity
	if o.Side == types.Buy {
		if cost+o.ExpectedFee > p.balance {
			return types.RequestOutcome{FinalState: "fatal_failure"}, fmt.Errorf("paper executor: insufficient balance %.2f for %.2f", p.balance, cost+o.ExpectedFee)
		}
		p.balance -= cost + o.ExpectedFee
		p.position[o.Symbol] += o.Quantity
	} else { // Sell / short
		p.balance += cost - o.ExpectedFee
		p.position[o.Symbol] -= o.Quantity
	}
	p.fills++
	return types.RequestOutcome{
		Success:         true,
		HTTPStatus:      200,
		ExchangeOrderID: fmt.Sprintf("paper-%d", p.fills),
		FinalState:      "success",
	}, nil
}

// Balance implements the engine's balance source.
func (p *PaperExecutor) Balance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balance
}

func (p *PaperExecutor) Position(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position[symbol]
}
