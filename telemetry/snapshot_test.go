package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
)

func testSnapshot(tick uint64, events ...CommEvent) *Snapshot {
	return &Snapshot{
		Tick:   tick,
		Width:  2,
		Height: 2,
		Field:  [][]float64{{1, 2}, {3, float64(tick)}},
		Agents: []AgentState{
			{ID: 1, Kind: "monitor", X: 0, Y: 0, Mode: "observe", Reading: 3},
			{ID: 2, Kind: "tree", X: 1, Y: 1, Mode: "healthy", Health: 1},
		},
		Events: events,
		Stats:  TickStats{Tick: tick, TotalPollution: 6 + float64(tick), Alerts: len(events)},
	}
}

func TestSnapshotLookups(t *testing.T) {
	s := testSnapshot(4)
	if v := s.PollutionAt(1, 1); v != 4 {
		t.Errorf("PollutionAt(1,1) = %v, want 4", v)
	}
	if v := s.PollutionAt(5, 0); v != 0 {
		t.Errorf("PollutionAt outside = %v, want 0", v)
	}
	a, ok := s.Agent(2)
	if !ok || a.Kind != "tree" {
		t.Errorf("Agent(2) = %+v, %v", a, ok)
	}
	if _, ok := s.Agent(9); ok {
		t.Error("Agent(9) found a missing agent")
	}
	if got := s.AgentsOfKind("monitor"); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("AgentsOfKind(monitor) = %+v", got)
	}
}

func TestCommLogAppendOnly(t *testing.T) {
	log := NewCommLog()
	e1 := CommEvent{Tick: 1, Source: 3, Message: "first"}
	e2 := CommEvent{Tick: 2, Source: 1, Message: "second"}

	_ = log.OnTick(testSnapshot(1, e1))
	_ = log.OnTick(testSnapshot(2))
	_ = log.OnTick(testSnapshot(3, e2))

	got := log.Records()
	if len(got) != 2 || got[0] != e1 || got[1] != e2 {
		t.Fatalf("records = %+v", got)
	}
	got[0].Message = "changed"
	if log.Records()[0].Message != "first" {
		t.Error("Records exposed internal storage")
	}
}

func TestOutputManagerWritesHeadersOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	_ = om.OnTick(testSnapshot(1, CommEvent{Tick: 1, Source: 1, Message: "alert"}))
	_ = om.OnTick(testSnapshot(2))
	_ = om.OnTick(testSnapshot(3, CommEvent{Tick: 3, Source: 1, Message: "again"}))
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "tick,"); n != 1 {
		t.Errorf("stats.csv has %d header rows, want 1", n)
	}

	var stats []TickStats
	if err := gocsv.UnmarshalBytes(data, &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 3 || stats[2].Tick != 3 {
		t.Errorf("stats rows = %+v", stats)
	}

	f, err := os.Open(filepath.Join(dir, "comm.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var comm []CommEvent
	if err := gocsv.UnmarshalFile(f, &comm); err != nil {
		t.Fatal(err)
	}
	if len(comm) != 2 || comm[1].Message != "again" {
		t.Errorf("comm rows = %+v", comm)
	}

	agents, err := os.ReadFile(filepath.Join(dir, "agents.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(agents)), "\n") + 1; lines != 7 {
		t.Errorf("agents.csv has %d lines, want header + 6 rows", lines)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	if err := om.OnTick(testSnapshot(1)); err != nil {
		t.Errorf("nil manager OnTick: %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil manager Close: %v", err)
	}
}

func TestSnapshotStreamRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl.zst")
	s, err := NewSnapshotStream(path)
	if err != nil {
		t.Fatal(err)
	}
	for tick := uint64(1); tick <= 5; tick++ {
		if err := s.OnTick(testSnapshot(tick)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	snaps, err := ReadSnapshots(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 5 {
		t.Fatalf("read %d snapshots, want 5", len(snaps))
	}
	if snaps[4].Tick != 5 || snaps[4].PollutionAt(1, 1) != 5 {
		t.Errorf("last snapshot = tick %d field %v", snaps[4].Tick, snaps[4].Field)
	}
	if len(snaps[0].Agents) != 2 || snaps[0].Agents[1].Health != 1 {
		t.Errorf("agents not preserved: %+v", snaps[0].Agents)
	}
}

func TestStoreRecordsRun(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "comm.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rec, err := store.BeginRun("run-a", 42)
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.BeginRun("run-b", 7)
	if err != nil {
		t.Fatal(err)
	}

	_ = rec.OnTick(testSnapshot(1, CommEvent{Tick: 1, Source: 4, Message: "first"}))
	_ = rec.OnTick(testSnapshot(2, CommEvent{Tick: 2, Source: 4, Message: "second"}, CommEvent{Tick: 2, Source: 5, Message: "third"}))
	_ = other.OnTick(testSnapshot(1, CommEvent{Tick: 1, Source: 9, Message: "elsewhere"}))

	if err := store.FinishRun("run-a", 2, "max_ticks"); err != nil {
		t.Fatal(err)
	}

	events, err := store.Events("run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %+v, want 3", events)
	}
	if events[0].Message != "first" || events[2].Source != 5 {
		t.Errorf("events out of order: %+v", events)
	}

	stats, err := store.Stats("run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[1].Tick != 2 || stats[1].Alerts != 2 {
		t.Errorf("stats = %+v", stats)
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %+v", runs)
	}
	for _, r := range runs {
		if r.ID == "run-a" && (r.Ticks != 2 || r.Reason != "max_ticks") {
			t.Errorf("run-a not finished: %+v", r)
		}
	}
}
