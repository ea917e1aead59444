package risk

import (
	"fmt"
	"math"
)

// PriceAnomaly is returned when a quoted price cannot be trusted relative to
// the reference. The engine skips the cycle; it is never fatal.
type PriceAnomaly struct {
	Quoted    float64
	Reference float64
	Threshold float64
}

func (e *PriceAnomaly) Error() string {
	if e.Reference > 0 {
		dev := (e.Quoted - e.Reference) / e.Reference
		return fmt.Sprintf("quoted price %g deviates %.4f%% from reference %g (limit %.4f%%)",
			e.Quoted, dev*100, e.Reference, e.Threshold*100)
	}
	return fmt.Sprintf("quoted price %g invalid against reference %g", e.Quoted, e.Reference)
}

// PriceValidator rejects quotes outside reference*(1±threshold).
type PriceValidator struct {
	threshold float64
}

func NewPriceValidator(threshold float64) *PriceValidator {
	return &PriceValidator{threshold: threshold}
}

func (v *PriceValidator) Validate(quoted, reference float64) error {
	if !positive(quoted) || !positive(reference) {
		return &PriceAnomaly{Quoted: quoted, Reference: reference, Threshold: v.threshold}
	}
	lo := reference * (1 - v.threshold)
	hi := reference * (1 + v.threshold)
	if quoted < lo || quoted > hi {
		return &PriceAnomaly{Quoted: quoted, Reference: reference, Threshold: v.threshold}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
