package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/logger"
	"github.com/evdnx/gomomentum/metrics"
	"github.com/evdnx/gomomentum/types"
)

// maxBodyBytes bounds how much of a response is read for classification.
const maxBodyBytes = 1 << 20

// Doer sends one HTTP request; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestDecorator mutates an outgoing request before it is sent, typically
// to add authentication headers. An error aborts the submission as fatal.
type RequestDecorator func(req *http.Request) error

// Client submits order intents to the exchange with bounded retries.
// It holds no per-request state and may be shared.
type Client struct {
	cfg      config.ExchangeConfig
	url      string
	http     Doer
	sleeper  Sleeper
	now      func() time.Time
	limiter  *rate.Limiter
	decorate RequestDecorator
	log      logger.Logger
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option { return func(c *Client) { c.http = d } }

func WithSleeper(s Sleeper) Option { return func(c *Client) { c.sleeper = s } }

// WithClock overrides the time source used for RequestOutcome.Elapsed.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithRequestDecorator(d RequestDecorator) Option { return func(c *Client) { c.decorate = d } }

func WithLogger(l logger.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient validates cfg and builds a client for its order endpoint.
func NewClient(cfg config.ExchangeConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		url:     cfg.OrderURL(),
		http:    &http.Client{},
		sleeper: timerSleeper{},
		now:     time.Now,
		log:     logger.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if c.cfg.TradeMode == "" {
		c.cfg.TradeMode = "cash"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit places intent, retrying rate limits after the fixed ban sleep and
// transient failures with exponential backoff. Fatal failures abort at once.
// The loop checks ctx between attempts and sleeps; cancellation returns the
// partial outcome together with ctx's error.
func (c *Client) Submit(ctx context.Context, intent types.OrderIntent) (types.RequestOutcome, error) {
	start := c.now()
	out := types.RequestOutcome{}
	finish := func(s State) types.RequestOutcome {
		out.FinalState = s.String()
		out.Elapsed = c.now().Sub(start)
		return out
	}

	body, err := encodeOrder(intent, c.cfg.TradeMode)
	if err != nil {
		return finish(FatalFailure), &Error{Kind: KindFatal, Msg: "encoding order", Err: err}
	}

	policy := newRetryPolicy(c.cfg.BackoffFactor, c.cfg.BanSleep())
	state := Pending
	for {
		if err := ctx.Err(); err != nil {
			return finish(Canceled), fmt.Errorf("submit %s canceled: %w", intent.ClientOrderID, err)
		}
		state = mustTransition(state, EventSend)

		var (
			status     int
			verdict    classification
			attemptErr *Error
		)
		if err := c.waitTurn(ctx); err != nil {
			if ctx.Err() != nil {
				return finish(Canceled), fmt.Errorf("submit %s canceled: %w", intent.ClientOrderID, ctx.Err())
			}
			// The limiter refuses waits it cannot finish before ctx's deadline.
			attemptErr = &Error{Kind: KindTransient, Msg: "request pacing", Err: err}
		} else {
			status, verdict, attemptErr = c.attempt(ctx, body)
		}
		out.HTTPStatus = status
		if attemptErr == nil && verdict.ok() {
			out.Success = true
			out.ExchangeOrderID = verdict.orderID
			mustTransition(state, EventOK)
			return finish(Success), nil
		}
		if ctx.Err() != nil {
			return finish(Canceled), fmt.Errorf("submit %s canceled: %w", intent.ClientOrderID, ctx.Err())
		}

		failure := attemptErr
		if failure == nil {
			failure = &Error{Kind: verdict.kind, Status: status, Code: verdict.code, Msg: verdict.msg}
		}
		state = mustTransition(state, failure.Kind.event())
		if state == FatalFailure {
			c.log.Error("order_rejected",
				logger.String("client_order_id", intent.ClientOrderID),
				logger.Int("http_status", status),
				logger.Err(failure),
			)
			return finish(FatalFailure), failure
		}

		if out.RetryCount >= c.cfg.MaxRetries {
			mustTransition(state, EventGiveUp)
			return finish(Exhausted), &Error{Kind: KindRetriesExhausted, Status: status, Last: failure}
		}

		delay := policy.next(failure.Kind)
		metrics.RequestRetries.WithLabelValues(failure.Kind.String()).Inc()
		c.log.Warn("order_retry",
			logger.String("client_order_id", intent.ClientOrderID),
			logger.String("cause", failure.Kind.String()),
			logger.Int("retry", out.RetryCount+1),
			logger.Duration("delay", delay),
			logger.Err(failure),
		)
		if err := c.sleeper.Sleep(ctx, delay); err != nil {
			return finish(Canceled), fmt.Errorf("submit %s canceled: %w", intent.ClientOrderID, err)
		}
		out.RetryCount++
		state = mustTransition(state, EventRetry)
	}
}

func (c *Client) waitTurn(ctx context.Context) error {
	if c.limiter != nil {
		return c.limiter.Wait(ctx)
	}
	return nil
}

// attempt performs one bounded HTTP round trip. A transport-level failure is
// returned as a transient *Error; otherwise the response is classified.
func (c *Client) attempt(ctx context.Context, body []byte) (int, classification, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, classification{}, &Error{Kind: KindFatal, Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.decorate != nil {
		if err := c.decorate(req); err != nil {
			return 0, classification{}, &Error{Kind: KindFatal, Msg: "decorating request", Err: err}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		msg := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return 0, classification{}, &Error{Kind: KindTransient, Msg: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, classification{}, &Error{Kind: KindTransient, Status: resp.StatusCode, Msg: "reading response body", Err: err}
	}
	return resp.StatusCode, classify(resp.StatusCode, raw), nil
}

// mustTransition advances the state machine along a path the retry loop
// guarantees is valid.
func mustTransition(from State, ev Event) State {
	next, err := Transition(from, ev)
	if err != nil {
		panic(err)
	}
	return next
}
