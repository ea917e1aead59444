package types

import "time"

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType mirrors the exchange's ordType values we emit.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

type Direction int

const (
	None Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "none"
	}
}

// Side maps a signal direction to the order side that follows it.
func (d Direction) Side() Side {
	if d == Short {
		return Sell
	}
	return Buy
}

// PriceObservation is a single timestamped price delivered by a feed.
type PriceObservation struct {
	Timestamp time.Time
	Price     float64
}

// Candle is an OHLC summary of the observations whose timestamp falls in
// [IntervalStart, IntervalStart+IntervalMinutes).
type Candle struct {
	IntervalStart   time.Time
	Open            float64
	High            float64
	Low             float64
	Close           float64
	IntervalMinutes int
	Count           int
}

// IntervalEnd is the exclusive upper bound of the candle's bucket.
func (c Candle) IntervalEnd() time.Time {
	return c.IntervalStart.Add(time.Duration(c.IntervalMinutes) * time.Minute)
}

type MomentumSignal struct {
	Direction      Direction
	Strength       float64 // |z|
	ReferencePrice float64
	Return         float64
	ZScore         float64
	At             time.Time
}

type OrderIntent struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      float64
	LimitPrice    float64 // reference price for market orders
	OrderType     OrderType
	FeeRate       float64
	ExpectedFee   float64
	Notional      float64
	// ExceedsBalance is informational; budget enforcement lives elsewhere.
	ExceedsBalance bool
}

type RequestOutcome struct {
	Success         bool
	HTTPStatus      int
	RetryCount      int
	Elapsed         time.Duration
	ExchangeOrderID string
	FinalState      string
}
