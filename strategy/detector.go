package strategy

import (
	"math"

	"github.com/evdnx/gomomentum/config"
	"github.com/evdnx/gomomentum/types"
)

// stdFloor guards the z-score against flat markets; below it no signal fires.
const stdFloor = 1e-12

// Detector turns closed candles into momentum signals. A signal needs both an
// absolute move of at least PriceMovementThreshold and a z-score of at least
// MomentumStdThreshold against the lookback window.
//
// The ring holds twice the lookback; the extra half is warm-up capacity only.
type Detector struct {
	cfg       config.TradingConfig
	window    *MomentumWindow
	prevClose float64
	hasPrev   bool
}

// NewDetector validates cfg and sizes the window from it.
func NewDetector(cfg config.TradingConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:    cfg,
		window: NewMomentumWindow(cfg.HistoryCandles(), cfg.LookbackCandles()),
	}, nil
}

// OnCandleClose records the candle's return and reports a signal when both
// thresholds agree. ok=false covers insufficient history and flat windows.
func (d *Detector) OnCandleClose(c types.Candle) (sig types.MomentumSignal, ok bool) {
	// The very first candle has no predecessor; its open stands in for one.
	ref := c.Open
	if d.hasPrev {
		ref = d.prevClose
	}
	d.prevClose, d.hasPrev = c.Close, true
	if ref <= 0 {
		return types.MomentumSignal{}, false
	}
	ret := (c.Close - ref) / ref
	d.window.Push(ret)

	if !d.window.Ready() {
		return types.MomentumSignal{}, false
	}
	mean, std, _ := d.window.Stats()
	if std < stdFloor || math.IsNaN(std) {
		return types.MomentumSignal{}, false
	}
	z := (ret - mean) / std
	if math.Abs(ret) < d.cfg.PriceMovementThreshold || math.Abs(z) < d.cfg.MomentumStdThreshold {
		return types.MomentumSignal{}, false
	}

	dir := types.Short
	if ret > 0 {
		dir = types.Long
	}
	return types.MomentumSignal{
		Direction:      dir,
		Strength:       math.Abs(z),
		ReferencePrice: c.Close,
		Return:         ret,
		ZScore:         z,
		At:             c.IntervalEnd(),
	}, true
}

// Window exposes the return history, mainly for diagnostics.
func (d *Detector) Window() *MomentumWindow { return d.window }
