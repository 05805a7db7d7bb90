package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TickStats summarizes one completed tick.
type TickStats struct {
	Tick uint64 `csv:"tick" json:"tick" db:"tick"`

	// Pollution field after commit
	TotalPollution float64 `csv:"total" json:"total" db:"total"`
	MeanPollution  float64 `csv:"mean" json:"mean" db:"mean"`
	MaxPollution   float64 `csv:"max" json:"max" db:"max"`
	P90Pollution   float64 `csv:"p90" json:"p90" db:"p90"`

	// Field total right after diffusion and decay, before agents act
	PostDiffusionTotal float64 `csv:"post_diffusion_total" json:"post_diffusion_total" db:"post_diffusion_total"`

	// Agent deltas applied at commit
	Emitted  float64 `csv:"emitted" json:"emitted" db:"emitted"`
	Absorbed float64 `csv:"absorbed" json:"absorbed" db:"absorbed"`
	Clamped  float64 `csv:"clamped" json:"clamped" db:"clamped"`

	CarsMoved     int     `csv:"cars_moved" json:"cars_moved" db:"cars_moved"`
	CarsBlocked   int     `csv:"cars_blocked" json:"cars_blocked" db:"cars_blocked"`
	FactoryOutput float64 `csv:"factory_output" json:"factory_output" db:"factory_output"`

	TreesHealthy  int `csv:"trees_healthy" json:"trees_healthy" db:"trees_healthy"`
	TreesStressed int `csv:"trees_stressed" json:"trees_stressed" db:"trees_stressed"`
	TreesDead     int `csv:"trees_dead" json:"trees_dead" db:"trees_dead"`

	Alerts int `csv:"alerts" json:"alerts" db:"alerts"`
}

// Trees returns the total number of trees, alive or dead.
func (s TickStats) Trees() int {
	return s.TreesHealthy + s.TreesStressed + s.TreesDead
}

// FieldSummary returns total, mean, max and 90th percentile of a field.
// Returns zeros for an empty field.
func FieldSummary(field []float64) (total, mean, peak, p90 float64) {
	if len(field) == 0 {
		return 0, 0, 0, 0
	}
	total = floats.Sum(field)
	mean = stat.Mean(field, nil)
	peak = floats.Max(field)

	sorted := make([]float64, len(field))
	copy(sorted, field)
	sort.Float64s(sorted)
	p90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)

	return total, mean, peak, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s TickStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("tick", s.Tick),
		slog.Float64("total", s.TotalPollution),
		slog.Float64("mean", s.MeanPollution),
		slog.Float64("max", s.MaxPollution),
		slog.Float64("p90", s.P90Pollution),
		slog.Float64("emitted", s.Emitted),
		slog.Float64("absorbed", s.Absorbed),
		slog.Int("cars_moved", s.CarsMoved),
		slog.Int("cars_blocked", s.CarsBlocked),
		slog.Int("trees_healthy", s.TreesHealthy),
		slog.Int("trees_stressed", s.TreesStressed),
		slog.Int("trees_dead", s.TreesDead),
		slog.Int("alerts", s.Alerts),
	)
}

// WindowStats aggregates TickStats over a window of ticks.
type WindowStats struct {
	WindowStartTick uint64 `csv:"-"`
	WindowEndTick   uint64 `csv:"window_end"`

	MeanPollution float64 `csv:"mean_pollution"`
	PeakPollution float64 `csv:"peak_pollution"`
	EndTotal      float64 `csv:"end_total"`

	Emitted  float64 `csv:"emitted"`
	Absorbed float64 `csv:"absorbed"`
	Clamped  float64 `csv:"clamped"`

	CarsMoved   int `csv:"cars_moved"`
	CarsBlocked int `csv:"cars_blocked"`
	Alerts      int `csv:"alerts"`

	// Tree counts at window end
	TreesHealthy  int `csv:"trees_healthy"`
	TreesStressed int `csv:"trees_stressed"`
	TreesDead     int `csv:"trees_dead"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("mean_pollution", s.MeanPollution),
		slog.Float64("peak_pollution", s.PeakPollution),
		slog.Float64("end_total", s.EndTotal),
		slog.Float64("emitted", s.Emitted),
		slog.Float64("absorbed", s.Absorbed),
		slog.Float64("clamped", s.Clamped),
		slog.Int("cars_moved", s.CarsMoved),
		slog.Int("cars_blocked", s.CarsBlocked),
		slog.Int("alerts", s.Alerts),
		slog.Int("trees_healthy", s.TreesHealthy),
		slog.Int("trees_stressed", s.TreesStressed),
		slog.Int("trees_dead", s.TreesDead),
	)
}

// LogStats logs the window stats using the given logger.
func (s WindowStats) LogStats(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("stats", "window", s)
}
