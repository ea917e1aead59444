package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/types"
)

// ErrNoDirection is returned when asked to size a signal without a side.
var ErrNoDirection = errors.New("signal has no direction")

// Sizer converts a momentum signal into an order intent. Quantity grows with
// signal strength up to a hard cap; fee and notional are reported, never
// enforced.
type Sizer struct {
	cfg config.TradingConfig
}

func NewSizer(cfg config.TradingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Quantity is the capped, step-rounded size for a given signal strength.
// It is non-decreasing in strength and constant beyond the cap.
func (s *Sizer) Quantity(strength float64) float64 {
	if !(strength > 0) {
		return 0
	}
	limit := s.cfg.OrderSizeFactor * s.cfg.MaxOrderSizeMultiplier
	raw := math.Min(s.cfg.OrderSizeFactor*strength, limit)

	qty := decimal.NewFromFloat(raw)
	if s.cfg.QuantityStep > 0 {
		step := decimal.NewFromFloat(s.cfg.QuantityStep)
		qty = qty.Div(step).Floor().Mul(step)
	}
	if s.cfg.MinQuantity > 0 && qty.LessThan(decimal.NewFromFloat(s.cfg.MinQuantity)) {
		return 0
	}
	return qty.InexactFloat64()
}

// SizeOrder builds the intent for sig at currentPrice. accountBalance only
// feeds the informational ExceedsBalance flag; +Inf means unknown.
func (s *Sizer) SizeOrder(sig types.MomentumSignal, accountBalance, currentPrice float64) (types.OrderIntent, error) {
	if sig.Direction == types.None {
		return types.OrderIntent{}, ErrNoDirection
	}
	if !positive(currentPrice) {
		return types.OrderIntent{}, fmt.Errorf("current price %g must be positive", currentPrice)
	}
	side := sig.Direction.Side()
	qty := s.Quantity(sig.Strength)

	price := decimal.NewFromFloat(currentPrice)
	orderType := types.Market
	feeRate := s.cfg.TakerFeeRate
	if s.cfg.Maker() {
		// Step away from the touch so the order rests on the book.
		offset := decimal.NewFromFloat(s.cfg.PriceAdjustmentOffset)
		if side == types.Buy {
			price = price.Sub(offset)
		} else {
			price = price.Add(offset)
		}
		orderType = types.Limit
		feeRate = s.cfg.MakerFeeRate
	}
	if !price.IsPositive() {
		return types.OrderIntent{}, fmt.Errorf("adjusted limit price %s is not positive", price)
	}

	notional := decimal.NewFromFloat(qty).Mul(price)
	fee := notional.Mul(decimal.NewFromFloat(feeRate))

	return types.OrderIntent{
		ClientOrderID:  newClientOrderID(),
		Symbol:         s.cfg.Asset,
		Side:           side,
		Quantity:       qty,
		LimitPrice:     price.InexactFloat64(),
		OrderType:      orderType,
		FeeRate:        feeRate,
		ExpectedFee:    fee.InexactFloat64(),
		Notional:       notional.InexactFloat64(),
		ExceedsBalance: !math.IsNaN(accountBalance) && notional.Add(fee).InexactFloat64() > accountBalance,
	}, nil
}

// newClientOrderID returns an OKX-compatible clOrdId (alphanumeric, <=32 chars).
func newClientOrderID() string {
	id := uuid.New()
	return fmt.Sprintf("mom%x", id[:14])
}
