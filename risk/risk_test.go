package risk

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/types"
)

func buildConfig() config.TradingConfig {
	return config.TradingConfig{
		Asset:                         "BTC-USDT",
		PriceMovementThreshold:        0.01,
		PriceResolutionMinutes:        1,
		MomentumLookbackWindowMinutes: 10,
		MomentumStdThreshold:          2,
		OrderSizeFactor:               0.01,
		MaxOrderSizeMultiplier:        4,
		MakerFeeRate:                  0.0008,
		TakerFeeRate:                  0.001,
		PriceValidationThreshold:      0.05,
		PriceAdjustmentOffset:         0.5,
		OrderType:                     config.OrderTypeMaker,
	}
}

func TestValidate_SamePriceAlwaysPasses(t *testing.T) {
	v := NewPriceValidator(0.05)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p := rng.Float64()*1e6 + 1e-6
		require.NoError(t, v.Validate(p, p))
	}
}

func TestValidate_BeyondThresholdFails(t *testing.T) {
	const threshold = 0.05
	v := NewPriceValidator(threshold)
	for _, p := range []float64{0.01, 1, 100, 65_000} {
		eps := 1e-6
		err := v.Validate(p*(1+threshold+eps), p)
		var anomaly *PriceAnomaly
		require.True(t, errors.As(err, &anomaly), "price %g", p)
		assert.Equal(t, p, anomaly.Reference)

		assert.Error(t, v.Validate(p*(1-threshold-eps), p))
		assert.NoError(t, v.Validate(p*(1+threshold/2), p))
	}
}

func TestValidate_NonPositivePrices(t *testing.T) {
	v := NewPriceValidator(0.05)
	assert.Error(t, v.Validate(0, 100))
	assert.Error(t, v.Validate(100, 0))
	assert.Error(t, v.Validate(math.NaN(), 100))
	assert.Contains(t, v.Validate(120, 100).Error(), "deviates")
}

func TestQuantity_MonotonicThenCapped(t *testing.T) {
	s := NewSizer(buildConfig())
	limit := 0.01 * 4
	prev := 0.0
	for strength := 0.0; strength <= 10; strength += 0.05 {
		q := s.Quantity(strength)
		require.GreaterOrEqual(t, q, prev, "strength %f", strength)
		require.LessOrEqual(t, q, limit+1e-12)
		prev = q
	}
	atCap := s.Quantity(4)
	for _, strength := range []float64{4.5, 10, 1e6, math.Inf(1)} {
		assert.Equal(t, atCap, s.Quantity(strength))
	}
	assert.InDelta(t, limit, atCap, 1e-12)
}

func TestQuantity_StepAndMinimum(t *testing.T) {
	cfg := buildConfig()
	cfg.QuantityStep = 0.001
	cfg.MinQuantity = 0.02
	s := NewSizer(cfg)

	assert.Equal(t, 0.0, s.Quantity(1.5), "0.015 is below min quantity")
	assert.Equal(t, 0.025, s.Quantity(2.55)) // 0.0255 floored to 0.025
	assert.Equal(t, 0.04, s.Quantity(9))
	assert.Equal(t, 0.0, s.Quantity(math.NaN()))
	assert.Equal(t, 0.0, s.Quantity(-3))
}

func TestSizeOrder_MakerPricesAwayFromTouch(t *testing.T) {
	s := NewSizer(buildConfig())

	buy, err := s.SizeOrder(types.MomentumSignal{Direction: types.Long, Strength: 2}, 10_000, 100)
	require.NoError(t, err)
	assert.Equal(t, types.Buy, buy.Side)
	assert.Equal(t, types.Limit, buy.OrderType)
	assert.Equal(t, 99.5, buy.LimitPrice)
	assert.Equal(t, 0.0008, buy.FeeRate)
	assert.InDelta(t, 0.02*99.5*0.0008, buy.ExpectedFee, 1e-12)
	assert.InDelta(t, 0.02*99.5, buy.Notional, 1e-12)
	assert.False(t, buy.ExceedsBalance)
	assert.Equal(t, "BTC-USDT", buy.Symbol)
	assert.NotEmpty(t, buy.ClientOrderID)
	assert.LessOrEqual(t, len(buy.ClientOrderID), 32)

	sell, err := s.SizeOrder(types.MomentumSignal{Direction: types.Short, Strength: 2}, 10_000, 100)
	require.NoError(t, err)
	assert.Equal(t, types.Sell, sell.Side)
	assert.Equal(t, 100.5, sell.LimitPrice)
	assert.NotEqual(t, buy.ClientOrderID, sell.ClientOrderID)
}

func TestSizeOrder_TakerUsesMarketAndTakerFee(t *testing.T) {
	cfg := buildConfig()
	cfg.OrderType = config.OrderTypeTaker
	s := NewSizer(cfg)

	o, err := s.SizeOrder(types.MomentumSignal{Direction: types.Long, Strength: 3}, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, types.Market, o.OrderType)
	assert.Equal(t, 200.0, o.LimitPrice)
	assert.Equal(t, 0.001, o.FeeRate)
	assert.InDelta(t, 0.03*200*0.001, o.ExpectedFee, 1e-12)
	assert.True(t, o.ExceedsBalance, "notional 6 exceeds balance 1 but is only flagged")
}

func TestSizeOrder_Rejects(t *testing.T) {
	s := NewSizer(buildConfig())
	_, err := s.SizeOrder(types.MomentumSignal{Direction: types.None, Strength: 3}, 1, 100)
	assert.ErrorIs(t, err, ErrNoDirection)

	_, err = s.SizeOrder(types.MomentumSignal{Direction: types.Long, Strength: 3}, 1, 0)
	assert.Error(t, err)

	// Offset larger than the price would produce a negative bid.
	_, err = s.SizeOrder(types.MomentumSignal{Direction: types.Long, Strength: 3}, 1, 0.25)
	assert.Error(t, err)
}
