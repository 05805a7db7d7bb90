package systems

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// DemandSignal is the external market demand factories respond to.
// Values are smooth in time, in [0,1], and fully determined by the seed.
type DemandSignal struct {
	noise opensimplex.Noise
	scale float64 // Noise frequency along the tick axis
}

// NewDemandSignal creates a seeded demand signal. scale <= 0 disables it.
func NewDemandSignal(seed int64, scale float64) *DemandSignal {
	return &DemandSignal{
		noise: opensimplex.NewNormalized(seed),
		scale: scale,
	}
}

// At returns the demand seen by one factory on one tick.
// Each factory samples its own row of the noise plane.
func (d *DemandSignal) At(id uint32, tick uint64) float64 {
	if d == nil || d.scale <= 0 {
		return 0
	}
	v := d.noise.Eval2(float64(id)*7.31, float64(tick)*d.scale)
	return clamp(v, 0, 1)
}
