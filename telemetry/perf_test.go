package telemetry

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseDiffusion)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseCars)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}
	if _, ok := stats.PhaseAvg[PhaseDiffusion]; !ok {
		t.Error("expected diffusion phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseCars]; !ok {
		t.Error("expected cars phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseCommit]; ok {
		t.Error("commit phase was never started")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseDiffusion)
		time.Sleep(10 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
	want := float64(time.Second) / float64(stats.AvgTickDuration)
	if math.Abs(stats.TicksPerSecond-want) > 1e-6*want {
		t.Errorf("ticks per second = %v, want %v", stats.TicksPerSecond, want)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseCommit)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseObservers)
		time.Sleep(2 * time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()
	fast := stats.PhasePct[PhaseCommit]
	slow := stats.PhasePct[PhaseObservers]
	if slow <= fast {
		t.Errorf("expected observers (%v%%) > commit (%v%%)", slow, fast)
	}
	if slow > 100 {
		t.Errorf("phase share %v%% exceeds the tick", slow)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfCollector_UnknownPhaseNotTimed(t *testing.T) {
	pc := NewPerfCollector(3)
	pc.StartTick()
	pc.StartPhase("rendering")
	time.Sleep(50 * time.Microsecond)
	pc.EndTick()

	stats := pc.Stats()
	if len(stats.PhaseAvg) != 0 {
		t.Errorf("unexpected phases %v", stats.PhaseAvg)
	}
	if stats.AvgTickDuration <= 0 {
		t.Error("tick time should still be recorded")
	}
}

func TestPerfStats_LogStats(t *testing.T) {
	pc := NewPerfCollector(3)
	pc.StartTick()
	pc.StartPhase(PhaseDiffusion)
	time.Sleep(200 * time.Microsecond)
	pc.EndTick()

	var buf bytes.Buffer
	pc.Stats().LogStats(slog.New(slog.NewJSONHandler(&buf, nil)))

	out := buf.String()
	for _, key := range []string{`"msg":"perf"`, `"ticks_per_sec"`, `"diffusion_pct"`} {
		if !strings.Contains(out, key) {
			t.Errorf("log line missing %s: %s", key, out)
		}
	}
}
