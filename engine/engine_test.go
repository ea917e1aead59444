package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/exchange"
	"github.com/evdnx/gomomentum/executor"
	"github.com/evdnx/gomomentum/risk"
	"github.com/evdnx/gomomentum/testutils"
	"github.com/evdnx/gomomentum/types"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func tradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Asset:                         "BTC-USDT",
		PriceMovementThreshold:        0.01,
		PriceResolutionMinutes:        1,
		MomentumLookbackWindowMinutes: 10,
		MomentumStdThreshold:          2.0,
		OrderSizeFactor:               0.01,
		MaxOrderSizeMultiplier:        5,
		MakerFeeRate:                  0.0008,
		TakerFeeRate:                  0.001,
		PriceValidationThreshold:      0.05,
		PriceAdjustmentOffset:         0.5,
		OrderType:                     config.OrderTypeMaker,
		QuantityStep:                  0.0001,
	}
}

func obs(minute int, price float64) types.PriceObservation {
	return types.PriceObservation{Timestamp: t0.Add(time.Duration(minute) * time.Minute), Price: price}
}

// warmUp feeds nine flat minutes and a tenth that trades at 103, leaving the
// tenth candle open.
func warmUp(t *testing.T, e *Engine) {
	t.Helper()
	for m := 0; m < 9; m++ {
		d := e.OnObservation(context.Background(), obs(m, 100))
		require.NotEqual(t, ActionSubmitted, d.Action)
	}
	d := e.OnObservation(context.Background(), obs(9, 103))
	require.Equal(t, ActionNoSignal, d.Action)
}

func buildEngine(t *testing.T, exec executor.Executor, opts ...Option) (*Engine, *testutils.MockLogger) {
	t.Helper()
	log := testutils.NewMockLogger()
	e, err := New(tradingConfig(), exec, append([]Option{WithLogger(log)}, opts...)...)
	require.NoError(t, err)
	return e, log
}

func waitStarted(t *testing.T, m *testutils.MockExecutor) {
	t.Helper()
	select {
	case <-m.Started:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never started")
	}
}

func TestEngine_SubmitsOnMomentum(t *testing.T) {
	mock := testutils.NewMockExecutor()
	e, log := buildEngine(t, mock)
	warmUp(t, e)

	d := e.OnObservation(context.Background(), obs(10, 103))
	require.Equal(t, ActionSubmitted, d.Action)
	assert.Equal(t, types.Long, d.Signal.Direction)
	assert.InDelta(t, 2.846, d.Signal.Strength, 1e-3)
	assert.Equal(t, types.Buy, d.Intent.Side)
	assert.Equal(t, types.Limit, d.Intent.OrderType)
	assert.InDelta(t, 102.5, d.Intent.LimitPrice, 1e-9)
	assert.InDelta(t, 0.0284, d.Intent.Quantity, 1e-9)
	assert.False(t, d.Intent.ExceedsBalance, "unknown balance never flags")
	assert.Equal(t, Idle, e.State())

	waitStarted(t, mock)
	e.submitter.Wait()
	require.Len(t, mock.Intents(), 1)
	assert.Equal(t, d.Intent.ClientOrderID, mock.Intents()[0].ClientOrderID)
	assert.True(t, log.Contains("info", "momentum_signal"))
	assert.True(t, log.Contains("info", "order_dispatched"))
}

func TestEngine_PriceAnomalySkipsOrder(t *testing.T) {
	mock := testutils.NewMockExecutor()
	e, log := buildEngine(t, mock)
	warmUp(t, e)

	// 110 vs a 103 close is a ~6.8% gap, above the 5% tolerance.
	d := e.OnObservation(context.Background(), obs(10, 110))
	require.Equal(t, ActionPriceAnomaly, d.Action)
	var anomaly *risk.PriceAnomaly
	assert.True(t, errors.As(d.Err, &anomaly))
	assert.Empty(t, mock.Intents())
	assert.True(t, log.Contains("warn", "price_anomaly"))
}

func TestEngine_SkipsSignalWhileBusy(t *testing.T) {
	mock := testutils.NewMockExecutor()
	mock.Block = true
	e, log := buildEngine(t, mock)
	warmUp(t, e)

	first := e.OnObservation(context.Background(), obs(10, 103))
	require.Equal(t, ActionSubmitted, first.Action)
	waitStarted(t, mock)

	// Drop 6% inside minute 10, then close the candle at minute 11.
	require.Equal(t, ActionNone, e.OnObservation(context.Background(), types.PriceObservation{
		Timestamp: t0.Add(10*time.Minute + 30*time.Second), Price: 96.82,
	}).Action)
	second := e.OnObservation(context.Background(), obs(11, 96.82))
	require.Equal(t, ActionSkippedBusy, second.Action)
	assert.Equal(t, types.Short, second.Signal.Direction)
	assert.ErrorIs(t, second.Err, executor.ErrBusy)
	assert.True(t, log.Contains("warn", "submission_skipped"))

	close(mock.Release)
	e.submitter.Wait()
	assert.Len(t, mock.Intents(), 1, "busy signal is dropped, not queued")
}

func TestEngine_FeedAnomalyDoesNotStop(t *testing.T) {
	e, log := buildEngine(t, testutils.NewMockExecutor())
	require.Equal(t, ActionNone, e.OnObservation(context.Background(), obs(5, 100)).Action)

	d := e.OnObservation(context.Background(), obs(3, 100))
	assert.Equal(t, ActionFeedAnomaly, d.Action)
	assert.Error(t, d.Err)
	assert.True(t, log.Contains("warn", "feed_anomaly"))

	assert.Equal(t, ActionNoSignal, e.OnObservation(context.Background(), obs(6, 100)).Action)
}

func TestEngine_UsesExecutorBalance(t *testing.T) {
	paper := executor.NewPaperExecutor(1)
	e, log := buildEngine(t, paper)
	warmUp(t, e)

	d := e.OnObservation(context.Background(), obs(10, 103))
	require.Equal(t, ActionSubmitted, d.Action)
	assert.True(t, d.Intent.ExceedsBalance)
	assert.True(t, log.Contains("warn", "order_exceeds_balance"))
	e.submitter.Wait()
}

func TestEngine_WithBalanceOverridesExecutor(t *testing.T) {
	paper := executor.NewPaperExecutor(1)
	e, _ := buildEngine(t, paper, WithBalance(StaticBalance(1e6)))
	warmUp(t, e)

	d := e.OnObservation(context.Background(), obs(10, 103))
	require.Equal(t, ActionSubmitted, d.Action)
	assert.False(t, d.Intent.ExceedsBalance)
	e.submitter.Wait()
}

func runScenario(t *testing.T, e *Engine) {
	t.Helper()
	feed := make(chan types.PriceObservation, 16)
	for m := 0; m < 9; m++ {
		feed <- obs(m, 100)
	}
	feed <- obs(9, 103)
	feed <- obs(10, 103)
	close(feed)
	require.NoError(t, e.Run(context.Background(), feed))
}

func receive(t *testing.T, e *Engine) executor.Result {
	t.Helper()
	select {
	case res := <-e.Outcomes():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome reported")
		return executor.Result{}
	}
}

func TestEngine_RunReportsSuccess(t *testing.T) {
	mock := testutils.NewMockExecutor()
	mock.Outcome.ExchangeOrderID = "42"
	e, log := buildEngine(t, mock)
	runScenario(t, e)

	res := receive(t, e)
	require.NoError(t, res.Err)
	assert.Equal(t, "42", res.Outcome.ExchangeOrderID)
	assert.True(t, log.Contains("info", "order_submitted"))
}

func TestEngine_RunReportsFailureWithoutStopping(t *testing.T) {
	mock := testutils.NewMockExecutor()
	mock.Outcome = types.RequestOutcome{HTTPStatus: 503, RetryCount: 3, FinalState: exchange.Exhausted.String()}
	mock.Err = fmt.Errorf("submit: %w", exchange.ErrRetriesExhausted)
	e, log := buildEngine(t, mock)
	runScenario(t, e)

	res := receive(t, e)
	assert.ErrorIs(t, res.Err, exchange.ErrRetriesExhausted)
	assert.True(t, log.Contains("error", "order_retries_exhausted"))
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _ := buildEngine(t, testutils.NewMockExecutor())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, make(chan types.PriceObservation)) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := tradingConfig()
	cfg.MomentumStdThreshold = 0
	_, err := New(cfg, testutils.NewMockExecutor())
	assert.Error(t, err)

	_, err = New(tradingConfig(), nil)
	assert.Error(t, err)
}

type fixedSource struct{ dir types.Direction }

func (f fixedSource) OnCandleClose(c types.Candle) (types.MomentumSignal, bool) {
	return types.MomentumSignal{Direction: f.dir, Strength: 3, ReferencePrice: c.Close, At: c.IntervalEnd()}, true
}

func TestEngine_CustomSignalSource(t *testing.T) {
	mock := testutils.NewMockExecutor()
	e, _ := buildEngine(t, mock, WithSignalSource(fixedSource{dir: types.Short}))
	require.Equal(t, ActionNone, e.OnObservation(context.Background(), obs(0, 100)).Action)

	d := e.OnObservation(context.Background(), obs(1, 100))
	require.Equal(t, ActionSubmitted, d.Action)
	assert.Equal(t, types.Sell, d.Intent.Side)
	assert.InDelta(t, 100.5, d.Intent.LimitPrice, 1e-9)
	assert.InDelta(t, 0.03, d.Intent.Quantity, 1e-9)
	e.submitter.Wait()
}
