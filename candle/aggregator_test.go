package candle

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gomomentum/types"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func obs(offset time.Duration, price float64) types.PriceObservation {
	return types.PriceObservation{Timestamp: base.Add(offset), Price: price}
}

func TestAggregator_OHLCProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		agg, err := NewAggregator(5)
		require.NoError(t, err)

		n := 1 + rng.Intn(50)
		prices := make([]float64, n)
		hi, lo := math.Inf(-1), math.Inf(1)
		for i := range prices {
			prices[i] = 100 + rng.Float64()*20 - 10
			hi = math.Max(hi, prices[i])
			lo = math.Min(lo, prices[i])
			// all offsets stay inside [0, 5min)
			off := time.Duration(i) * (5 * time.Minute / time.Duration(n+1))
			_, closed, err := agg.Ingest(obs(off, prices[i]))
			require.NoError(t, err)
			require.False(t, closed)
		}

		c, closed, err := agg.Ingest(obs(5*time.Minute, 1))
		require.NoError(t, err)
		require.True(t, closed, "run %d: boundary observation must close the bucket", run)
		assert.Equal(t, prices[0], c.Open)
		assert.Equal(t, prices[n-1], c.Close)
		assert.Equal(t, hi, c.High)
		assert.Equal(t, lo, c.Low)
		assert.Equal(t, n, c.Count)
		assert.GreaterOrEqual(t, c.High, math.Max(c.Open, c.Close))
		assert.LessOrEqual(t, c.Low, math.Min(c.Open, c.Close))
	}
}

func TestAggregator_EpochAlignment(t *testing.T) {
	agg, err := NewAggregator(7)
	require.NoError(t, err)

	ts := time.Unix(7*60*1000+125, 0) // 125s into a 7-minute bucket
	start := agg.BucketStart(ts)
	assert.Equal(t, time.Unix(7*60*1000, 0).UTC(), start)

	// A second aggregator started mid-bucket agrees on the boundary.
	other, _ := NewAggregator(7)
	_, _, _ = other.Ingest(types.PriceObservation{Timestamp: ts.Add(3 * time.Minute), Price: 10})
	cur, ok := other.Current()
	require.True(t, ok)
	assert.Equal(t, start, cur.IntervalStart)
	assert.Equal(t, start.Add(7*time.Minute), cur.IntervalEnd())
}

func TestAggregator_OutOfOrderIsReportedAndDropped(t *testing.T) {
	agg, _ := NewAggregator(1)
	_, _, err := agg.Ingest(obs(0, 100))
	require.NoError(t, err)
	_, _, err = agg.Ingest(obs(time.Minute+10*time.Second, 101))
	require.NoError(t, err)

	_, closed, err := agg.Ingest(obs(30*time.Second, 50))
	require.Error(t, err)
	assert.False(t, closed)
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	var anomaly *FeedAnomaly
	require.True(t, errors.As(err, &anomaly))
	assert.Equal(t, 50.0, anomaly.Observation.Price)

	cur, _ := agg.Current()
	assert.Equal(t, 101.0, cur.Low, "dropped observation must not touch the bucket")
	assert.Equal(t, 1, cur.Count)
}

func TestAggregator_SameBucketOlderTimestampIsFolded(t *testing.T) {
	agg, _ := NewAggregator(1)
	_, _, _ = agg.Ingest(obs(40*time.Second, 100))
	_, _, err := agg.Ingest(obs(10*time.Second, 99))
	require.NoError(t, err)
	cur, _ := agg.Current()
	assert.Equal(t, 99.0, cur.Low)
}

func TestAggregator_RejectsBadPrices(t *testing.T) {
	agg, _ := NewAggregator(1)
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, _, err := agg.Ingest(obs(0, p))
		assert.ErrorIs(t, err, ErrBadPrice)
	}
	_, ok := agg.Current()
	assert.False(t, ok)
}

func TestAggregator_GapClosesOnlyCurrentBucket(t *testing.T) {
	agg, _ := NewAggregator(1)
	_, _, _ = agg.Ingest(obs(0, 100))
	c, closed, err := agg.Ingest(obs(10*time.Minute, 110))
	require.NoError(t, err)
	require.True(t, closed)
	assert.Equal(t, base, c.IntervalStart)

	cur, _ := agg.Current()
	assert.Equal(t, base.Add(10*time.Minute), cur.IntervalStart)
	assert.Equal(t, 110.0, cur.Open)
}

func TestNewAggregator_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewAggregator(0)
	assert.Error(t, err)
}
