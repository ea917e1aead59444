package strategy

import "github.com/evdnx/gomomentum/types"

// SignalSource turns closed candles into trade signals. *Detector is the
// production implementation; the engine accepts any SignalSource.
type SignalSource interface {
	OnCandleClose(c types.Candle) (types.MomentumSignal, bool)
}

var _ SignalSource = (*Detector)(nil)
