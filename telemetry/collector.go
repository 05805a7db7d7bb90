package telemetry

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Collector accumulates per-tick stats within windows and produces WindowStats.
type Collector struct {
	windowDurationTicks uint64

	// Current window tracking
	windowStartTick uint64
	means           []float64
	peaks           []float64
	last            TickStats

	// Counters for current window
	emitted     float64
	absorbed    float64
	clamped     float64
	carsMoved   int
	carsBlocked int
	alerts      int
}

// NewCollector creates a new stats collector that flushes every windowTicks ticks.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowDurationTicks: uint64(windowTicks)}
}

// Record adds one tick to the current window.
func (c *Collector) Record(s TickStats) {
	c.means = append(c.means, s.MeanPollution)
	c.peaks = append(c.peaks, s.MaxPollution)
	c.emitted += s.Emitted
	c.absorbed += s.Absorbed
	c.clamped += s.Clamped
	c.carsMoved += s.CarsMoved
	c.carsBlocked += s.CarsBlocked
	c.alerts += s.Alerts
	c.last = s
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick uint64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Pending reports whether any ticks have been recorded since the last flush.
func (c *Collector) Pending() bool {
	return len(c.means) > 0
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick uint64) WindowStats {
	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,

		EndTotal: c.last.TotalPollution,

		Emitted:  c.emitted,
		Absorbed: c.absorbed,
		Clamped:  c.clamped,

		CarsMoved:   c.carsMoved,
		CarsBlocked: c.carsBlocked,
		Alerts:      c.alerts,

		TreesHealthy:  c.last.TreesHealthy,
		TreesStressed: c.last.TreesStressed,
		TreesDead:     c.last.TreesDead,
	}
	if len(c.means) > 0 {
		stats.MeanPollution = stat.Mean(c.means, nil)
		stats.PeakPollution = floats.Max(c.peaks)
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.means = c.means[:0]
	c.peaks = c.peaks[:0]
	c.emitted = 0
	c.absorbed = 0
	c.clamped = 0
	c.carsMoved = 0
	c.carsBlocked = 0
	c.alerts = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() uint64 {
	return c.windowDurationTicks
}
