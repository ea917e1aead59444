package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/gomomentum/logger"
	"github.com/evdnx/gomomentum/metrics"
	"github.com/evdnx/gomomentum/types"
)

// ErrBusy is returned when a submission for the asset is already running.
var ErrBusy = errors.New("submission already in flight")

// Result is delivered once per accepted submission.
type Result struct {
	Intent  types.OrderIntent
	Outcome types.RequestOutcome
	Err     error
}

// AsyncSubmitter runs submissions off the caller's goroutine with at most one
// in flight; a second Submit while busy fails fast with ErrBusy.
type AsyncSubmitter struct {
	exec    Executor
	busy    atomic.Bool
	results chan Result
	dropped atomic.Int64
	wg      sync.WaitGroup
	log     logger.Logger
}

type SubmitterOption func(*AsyncSubmitter)

// WithSubmitterLogger reports results dropped on a full buffer.
func WithSubmitterLogger(l logger.Logger) SubmitterOption {
	return func(s *AsyncSubmitter) { s.log = l }
}

// NewAsyncSubmitter wraps exec. Results are buffered so a slow reader does
// not hold the gate closed.
func NewAsyncSubmitter(exec Executor, opts ...SubmitterOption) *AsyncSubmitter {
	s := &AsyncSubmitter{
		exec:    exec,
		results: make(chan Result, 16),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts intent in the background. ctx governs the whole retry loop.
func (s *AsyncSubmitter) Submit(ctx context.Context, intent types.OrderIntent) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	metrics.SubmissionInFlight.Set(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		out, err := s.exec.Submit(ctx, intent)
		metrics.SubmitDuration.Observe(time.Since(start).Seconds())
		metrics.SubmissionInFlight.Set(0)
		// Release before publishing so a reader reacting to the result can
		// submit again straight away.
		s.busy.Store(false)
		s.publish(Result{Intent: intent, Outcome: out, Err: err})
	}()
	return nil
}

func (s *AsyncSubmitter) Busy() bool { return s.busy.Load() }

// publish never blocks, so an undrained buffer cannot strand the worker.
func (s *AsyncSubmitter) publish(res Result) {
	select {
	case s.results <- res:
	default:
		s.dropped.Add(1)
		s.log.Warn("submission_result_dropped",
			logger.String("client_order_id", res.Intent.ClientOrderID),
			logger.String("state", res.Outcome.FinalState),
			logger.Err(res.Err),
		)
	}
}

// Results streams one Result per accepted submission. Once the buffer is full
// further results are logged and dropped.
func (s *AsyncSubmitter) Results() <-chan Result { return s.results }

// Dropped counts results discarded because nobody was reading Results.
func (s *AsyncSubmitter) Dropped() int64 { return s.dropped.Load() }

// Wait blocks until the in-flight submission, if any, has finished.
func (s *AsyncSubmitter) Wait() { s.wg.Wait() }
