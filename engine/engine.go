package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/evdnx/gomomentum/candle"
	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/exchange"
	"github.com/evdnx/gomomentum/executor"
	"github.com/evdnx/gomomentum/logger"
	"github.com/evdnx/gomomentum/metrics"
	"github.com/evdnx/gomomentum/risk"
	"github.com/evdnx/gomomentum/strategy"
	"github.com/evdnx/gomomentum/types"
)

// BalanceSource reports the account balance used to flag oversized intents.
type BalanceSource interface {
	Balance() float64
}

// StaticBalance is a fixed balance; math.Inf(1) disables the flag.
type StaticBalance float64

func (b StaticBalance) Balance() float64 { return float64(b) }

// Engine runs the per-asset pipeline: aggregate → detect → validate → size →
// submit. Everything up to submission happens on the caller's goroutine;
// submission runs on the AsyncSubmitter so retry sleeps never stall ingestion.
type Engine struct {
	cfg       config.TradingConfig
	agg       *candle.Aggregator
	detector  strategy.SignalSource
	validator *risk.PriceValidator
	sizer     *risk.Sizer
	submitter *executor.AsyncSubmitter
	balance   BalanceSource
	log       logger.Logger
	state     atomic.Int32
	outcomes  chan executor.Result
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithBalance(b BalanceSource) Option { return func(e *Engine) { e.balance = b } }

// WithSignalSource replaces the momentum detector built from cfg.
func WithSignalSource(s strategy.SignalSource) Option { return func(e *Engine) { e.detector = s } }

// New wires the pipeline around exec. If exec also reports a balance it is
// used unless WithBalance overrides it.
func New(cfg config.TradingConfig, exec executor.Executor, opts ...Option) (*Engine, error) {
	if exec == nil {
		return nil, errors.New("engine: nil executor")
	}
	det, err := strategy.NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	agg, err := candle.NewAggregator(cfg.PriceResolutionMinutes)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		agg:       agg,
		detector:  det,
		validator: risk.NewPriceValidator(cfg.PriceValidationThreshold),
		sizer:     risk.NewSizer(cfg),
		balance:   StaticBalance(math.Inf(1)),
		log:       logger.Nop(),
		outcomes:  make(chan executor.Result, 16),
	}
	if b, ok := exec.(BalanceSource); ok {
		e.balance = b
	}
	for _, opt := range opts {
		opt(e)
	}
	e.submitter = executor.NewAsyncSubmitter(exec, executor.WithSubmitterLogger(e.log))
	return e, nil
}

// State is the pipeline stage currently executing.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Outcomes receives every submission result reported by Run. Results that
// find the buffer full are logged and dropped.
func (e *Engine) Outcomes() <-chan executor.Result { return e.outcomes }

// OnObservation feeds one price into the pipeline and reports what the cycle
// decided. ctx bounds any submission started by this call. Without Run,
// submission results are buffered and then dropped once the buffer fills.
func (e *Engine) OnObservation(ctx context.Context, obs types.PriceObservation) Decision {
	defer e.setState(Idle)
	e.setState(AwaitingCandle)

	closed, ok, err := e.agg.Ingest(obs)
	if err != nil {
		metrics.FeedAnomalies.WithLabelValues(e.cfg.Asset).Inc()
		e.log.Warn("feed_anomaly", logger.String("asset", e.cfg.Asset), logger.Err(err))
		return Decision{Action: ActionFeedAnomaly, Err: err}
	}
	if !ok {
		return Decision{Action: ActionNone}
	}
	return e.onCandleClose(ctx, closed, obs.Price)
}

// onCandleClose runs one decision cycle. quoted is the live price that
// closed the candle; it is checked against the signal's reference.
func (e *Engine) onCandleClose(ctx context.Context, c types.Candle, quoted float64) Decision {
	metrics.CandlesClosed.WithLabelValues(e.cfg.Asset).Inc()
	d := Decision{Candle: c}

	e.setState(EvaluatingSignal)
	sig, ok := e.detector.OnCandleClose(c)
	if !ok {
		d.Action = ActionNoSignal
		return d
	}
	d.Signal = sig
	metrics.SignalsEmitted.WithLabelValues(e.cfg.Asset, sig.Direction.String()).Inc()
	metrics.LastSignalStrength.WithLabelValues(e.cfg.Asset).Set(sig.Strength)
	e.log.Info("momentum_signal",
		logger.String("asset", e.cfg.Asset),
		logger.String("direction", sig.Direction.String()),
		logger.Float64("strength", sig.Strength),
		logger.Float64("return", sig.Return),
		logger.Float64("reference_price", sig.ReferencePrice),
	)

	e.setState(Validating)
	if err := e.validator.Validate(quoted, sig.ReferencePrice); err != nil {
		metrics.PriceAnomalies.WithLabelValues(e.cfg.Asset).Inc()
		e.log.Warn("price_anomaly", logger.String("asset", e.cfg.Asset), logger.Err(err))
		d.Action, d.Err = ActionPriceAnomaly, err
		return d
	}

	e.setState(Sizing)
	intent, err := e.sizer.SizeOrder(sig, e.balance.Balance(), quoted)
	if err != nil {
		e.log.Warn("sizing_failed", logger.String("asset", e.cfg.Asset), logger.Err(err))
		d.Action, d.Err = ActionSizingFailed, err
		return d
	}
	d.Intent = intent
	if intent.Quantity <= 0 {
		e.log.Info("order_below_minimum", logger.String("asset", e.cfg.Asset), logger.Float64("strength", sig.Strength))
		d.Action = ActionZeroQuantity
		return d
	}
	if intent.ExceedsBalance {
		e.log.Warn("order_exceeds_balance",
			logger.String("client_order_id", intent.ClientOrderID),
			logger.Float64("notional", intent.Notional),
			logger.Float64("balance", e.balance.Balance()),
		)
	}

	e.setState(Submitting)
	if err := e.submitter.Submit(ctx, intent); err != nil {
		metrics.OrdersSubmitted.WithLabelValues(e.cfg.Asset, "skipped").Inc()
		e.log.Warn("submission_skipped",
			logger.String("asset", e.cfg.Asset),
			logger.String("client_order_id", intent.ClientOrderID),
			logger.Err(err),
		)
		d.Action, d.Err = ActionSkippedBusy, err
		return d
	}
	e.log.Info("order_dispatched",
		logger.String("client_order_id", intent.ClientOrderID),
		logger.String("side", string(intent.Side)),
		logger.String("type", string(intent.OrderType)),
		logger.Float64("qty", intent.Quantity),
		logger.Float64("price", intent.LimitPrice),
		logger.Float64("expected_fee", intent.ExpectedFee),
	)
	d.Action = ActionSubmitted
	return d
}

// Run consumes feed until it closes or ctx is done, reporting submission
// results as they arrive. Before returning it waits for the in-flight
// submission, which observes the same ctx and so stops early on shutdown.
func (e *Engine) Run(ctx context.Context, feed <-chan types.PriceObservation) error {
	defer e.drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs, ok := <-feed:
			if !ok {
				return nil
			}
			e.OnObservation(ctx, obs)
		case res := <-e.submitter.Results():
			e.report(res)
		}
	}
}

func (e *Engine) drain() {
	e.submitter.Wait()
	for {
		select {
		case res := <-e.submitter.Results():
			e.report(res)
		default:
			return
		}
	}
}

// report logs a finished submission. No outcome stops the engine.
func (e *Engine) report(res executor.Result) {
	fields := []logger.Field{
		logger.String("asset", e.cfg.Asset),
		logger.String("client_order_id", res.Intent.ClientOrderID),
		logger.Int("http_status", res.Outcome.HTTPStatus),
		logger.Int("retries", res.Outcome.RetryCount),
		logger.Duration("elapsed", res.Outcome.Elapsed),
		logger.String("state", res.Outcome.FinalState),
	}
	result := "success"
	switch {
	case res.Err == nil:
		e.log.Info("order_submitted", append(fields, logger.String("exchange_order_id", res.Outcome.ExchangeOrderID))...)
	case errors.Is(res.Err, context.Canceled), res.Outcome.FinalState == exchange.Canceled.String():
		result = "canceled"
		e.log.Warn("order_canceled", append(fields, logger.Err(res.Err))...)
	case errors.Is(res.Err, exchange.ErrRetriesExhausted):
		result = "exhausted"
		e.log.Error("order_retries_exhausted", append(fields, logger.Err(res.Err))...)
	case errors.Is(res.Err, exchange.ErrFatalFailure):
		result = "fatal"
		e.log.Error("order_failed_fatal", append(fields, logger.Err(res.Err))...)
	default:
		result = "failed"
		e.log.Error("order_failed", append(fields, logger.Err(res.Err))...)
	}
	metrics.OrdersSubmitted.WithLabelValues(e.cfg.Asset, result).Inc()

	select {
	case e.outcomes <- res:
	default:
		e.log.Warn("outcome_dropped", logger.String("client_order_id", res.Intent.ClientOrderID))
	}
}
