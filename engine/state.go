package engine

import "github.com/evdnx/gomomentum/types"

// State is the stage of the decision cycle currently running.
type State int32

const (
	Idle State = iota
	AwaitingCandle
	EvaluatingSignal
	Validating
	Sizing
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCandle:
		return "awaiting_candle"
	case EvaluatingSignal:
		return "evaluating_signal"
	case Validating:
		return "validating"
	case Sizing:
		return "sizing"
	case Submitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Action is how a single observation was resolved.
type Action int

const (
	// ActionNone: the observation was folded into the open candle.
	ActionNone Action = iota
	ActionFeedAnomaly
	ActionNoSignal
	ActionPriceAnomaly
	ActionSizingFailed
	ActionZeroQuantity
	ActionSkippedBusy
	ActionSubmitted
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFeedAnomaly:
		return "feed_anomaly"
	case ActionNoSignal:
		return "no_signal"
	case ActionPriceAnomaly:
		return "price_anomaly"
	case ActionSizingFailed:
		return "sizing_failed"
	case ActionZeroQuantity:
		return "zero_quantity"
	case ActionSkippedBusy:
		return "skipped_busy"
	case ActionSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Decision records what OnObservation did. Candle, Signal and Intent are set
// as far as the cycle got.
type Decision struct {
	Action Action
	Candle types.Candle
	Signal types.MomentumSignal
	Intent types.OrderIntent
	Err    error
}
