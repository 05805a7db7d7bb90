package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step.
const (
	PhaseDiffusion = "diffusion"
	PhaseMonitors  = "monitors"
	PhaseFactories = "factories"
	PhaseTrees     = "trees"
	PhaseCars      = "cars"
	PhaseCommit    = "commit"
	PhaseSnapshot  = "snapshot"
	PhaseObservers = "observers"
)

// Phases lists every step phase in execution order.
var Phases = [...]string{
	PhaseDiffusion, PhaseMonitors, PhaseFactories, PhaseTrees,
	PhaseCars, PhaseCommit, PhaseSnapshot, PhaseObservers,
}

func phaseIndex(name string) int {
	for i, p := range Phases {
		if p == name {
			return i
		}
	}
	return -1
}

// tickTiming is one tick's wall time split by phase.
type tickTiming struct {
	total  time.Duration
	phases [len(Phases)]time.Duration
}

// PerfCollector keeps step timings for the last windowSize ticks.
type PerfCollector struct {
	ring  []tickTiming
	next  int
	count int

	cur        tickTiming
	tickStart  time.Time
	phaseStart time.Time
	phase      int // -1 outside a phase
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &PerfCollector{ring: make([]tickTiming, windowSize), phase: -1}
}

// StartTick begins timing a new simulation tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.cur = tickTiming{}
	p.phase = -1
}

// StartPhase ends the running phase and starts timing the named one.
// Unknown names are not timed.
func (p *PerfCollector) StartPhase(name string) {
	now := time.Now()
	p.endPhase(now)
	p.phase = phaseIndex(name)
	p.phaseStart = now
}

func (p *PerfCollector) endPhase(now time.Time) {
	if p.phase >= 0 {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.phase = -1
}

// EndTick closes the tick and stores it in the window.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.endPhase(now)
	p.cur.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	p.count = min(p.count+1, len(p.ring))
}

// PerfStats averages the stored ticks.
type PerfStats struct {
	AvgTickDuration time.Duration
	TicksPerSecond  float64

	// Average duration and share of tick time per timed phase
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64
}

// Stats averages the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.count == 0 {
		return st
	}

	var sum tickTiming
	for _, t := range p.ring[:p.count] {
		sum.total += t.total
		for i, d := range t.phases {
			sum.phases[i] += d
		}
	}
	n := time.Duration(p.count)
	st.AvgTickDuration = sum.total / n
	if st.AvgTickDuration > 0 {
		st.TicksPerSecond = float64(time.Second) / float64(st.AvgTickDuration)
	}
	for i, d := range sum.phases {
		if d == 0 {
			continue
		}
		avg := d / n
		st.PhaseAvg[Phases[i]] = avg
		if st.AvgTickDuration > 0 {
			st.PhasePct[Phases[i]] = float64(avg) / float64(st.AvgTickDuration) * 100
		}
	}
	return st
}

// LogValue implements slog.LogValuer. Phases under 0.1% of tick time are
// omitted.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	for _, phase := range Phases {
		if pct := s.PhasePct[phase]; pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// LogStats logs the timings using the given logger.
func (s PerfStats) LogStats(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("perf", "window", s)
}
