package candle

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/evdnx/gomomentum/types"
)

// ErrOutOfOrder is wrapped by FeedAnomaly when an observation predates the
// bucket in progress.
var ErrOutOfOrder = errors.New("observation older than current bucket")

// ErrBadPrice is wrapped by FeedAnomaly for non-positive or non-finite prices.
var ErrBadPrice = errors.New("observation price is not a positive finite number")

// FeedAnomaly reports an observation that was dropped. It never corrupts
// aggregator state.
type FeedAnomaly struct {
	Observation types.PriceObservation
	BucketStart time.Time
	Err         error
}

func (e *FeedAnomaly) Error() string {
	return fmt.Sprintf("feed anomaly at %s (bucket %s, price %g): %v",
		e.Observation.Timestamp.UTC().Format(time.RFC3339Nano),
		e.BucketStart.UTC().Format(time.RFC3339), e.Observation.Price, e.Err)
}

func (e *FeedAnomaly) Unwrap() error { return e.Err }

// Aggregator buckets observations into fixed-interval OHLC candles. Bucket
// boundaries are aligned to the Unix epoch so restarts agree on them.
// It is not safe for concurrent use; one aggregator serves one asset stream.
type Aggregator struct {
	intervalMinutes int
	interval        time.Duration
	current         types.Candle
	open            bool
}

func NewAggregator(intervalMinutes int) (*Aggregator, error) {
	if intervalMinutes <= 0 {
		return nil, fmt.Errorf("interval minutes must be positive, got %d", intervalMinutes)
	}
	return &Aggregator{
		intervalMinutes: intervalMinutes,
		interval:        time.Duration(intervalMinutes) * time.Minute,
	}, nil
}

// BucketStart returns the start of the bucket containing ts, aligned to
// whole multiples of the interval since the Unix epoch.
func (a *Aggregator) BucketStart(ts time.Time) time.Time {
	ns := ts.UnixNano()
	step := int64(a.interval)
	rem := ns % step
	if rem < 0 {
		rem += step
	}
	return time.Unix(0, ns-rem).UTC()
}

// Ingest folds obs into the in-progress bucket. When obs falls past the
// bucket's end the finished candle is returned with ok=true and obs opens
// the next bucket. Gaps are not back-filled with empty candles.
func (a *Aggregator) Ingest(obs types.PriceObservation) (closed types.Candle, ok bool, err error) {
	if obs.Price <= 0 || math.IsNaN(obs.Price) || math.IsInf(obs.Price, 0) {
		return types.Candle{}, false, &FeedAnomaly{Observation: obs, BucketStart: a.current.IntervalStart, Err: ErrBadPrice}
	}
	start := a.BucketStart(obs.Timestamp)
	if !a.open {
		a.startBucket(start, obs.Price)
		return types.Candle{}, false, nil
	}
	switch {
	case start.Before(a.current.IntervalStart):
		return types.Candle{}, false, &FeedAnomaly{Observation: obs, BucketStart: a.current.IntervalStart, Err: ErrOutOfOrder}
	case start.Equal(a.current.IntervalStart):
		a.fold(obs.Price)
		return types.Candle{}, false, nil
	default:
		closed = a.current
		a.startBucket(start, obs.Price)
		return closed, true, nil
	}
}

// Current returns a copy of the in-progress candle, if any.
func (a *Aggregator) Current() (types.Candle, bool) {
	return a.current, a.open
}

func (a *Aggregator) startBucket(start time.Time, price float64) {
	a.current = types.Candle{
		IntervalStart:   start,
		Open:            price,
		High:            price,
		Low:             price,
		Close:           price,
		IntervalMinutes: a.intervalMinutes,
		Count:           1,
	}
	a.open = true
}

func (a *Aggregator) fold(price float64) {
	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Close = price
	a.current.Count++
}
