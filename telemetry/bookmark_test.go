package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_PollutionSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: uint64(i * 100), MeanPollution: 5, PeakPollution: 40})
	}

	bookmarks := bd.Check(WindowStats{WindowEndTick: 500, MeanPollution: 6, PeakPollution: 120})
	if !hasBookmark(bookmarks, BookmarkPollutionSpike) {
		t.Error("expected pollution_spike bookmark")
	}
}

func TestBookmarkDetector_AlertStorm(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 4; i++ {
		bd.Check(WindowStats{WindowEndTick: uint64(i * 100), Alerts: 1})
	}

	if got := bd.Check(WindowStats{WindowEndTick: 400, Alerts: 2}); hasBookmark(got, BookmarkAlertStorm) {
		t.Error("two alerts should not count as a storm")
	}
	if got := bd.Check(WindowStats{WindowEndTick: 500, Alerts: 9}); !hasBookmark(got, BookmarkAlertStorm) {
		t.Error("expected alert_storm bookmark")
	}
}

func TestBookmarkDetector_TreeDieOff(t *testing.T) {
	bd := NewBookmarkDetector(10)

	tests := []struct {
		name    string
		healthy int
		dead    int
		want    bool
	}{
		{"no deaths", 20, 0, false},
		{"first death", 19, 1, true},
		{"one more", 18, 2, false},
		{"quarter lost at once", 13, 7, true},
	}
	for i, tt := range tests {
		got := bd.Check(WindowStats{
			WindowEndTick: uint64(i * 100),
			TreesHealthy:  tt.healthy,
			TreesDead:     tt.dead,
		})
		if hasBookmark(got, BookmarkTreeDieOff) != tt.want {
			t.Errorf("%s: tree_die_off = %v, want %v", tt.name, !tt.want, tt.want)
		}
	}
}

func TestBookmarkDetector_AirRecovery(t *testing.T) {
	bd := NewBookmarkDetector(10)

	bd.Check(WindowStats{WindowEndTick: 100, MeanPollution: 20})
	bd.Check(WindowStats{WindowEndTick: 200, MeanPollution: 30})

	if got := bd.Check(WindowStats{WindowEndTick: 300, MeanPollution: 12}); !hasBookmark(got, BookmarkAirRecovery) {
		t.Error("expected air_recovery bookmark after a 60% drop")
	}
	// The peak resets after a recovery.
	if got := bd.Check(WindowStats{WindowEndTick: 400, MeanPollution: 8}); hasBookmark(got, BookmarkAirRecovery) {
		t.Error("unexpected second air_recovery bookmark")
	}
}

func TestBookmarkDetector_SteadyState(t *testing.T) {
	bd := NewBookmarkDetector(10)

	var fired int
	for i := 0; i < 12; i++ {
		got := bd.Check(WindowStats{WindowEndTick: uint64(i * 100), MeanPollution: 10})
		if hasBookmark(got, BookmarkSteadyState) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("steady_state fired %d times, want 1", fired)
	}
}

func TestBookmarkDetector_HistoryOrder(t *testing.T) {
	bd := NewBookmarkDetector(5)
	for i := 1; i <= 7; i++ {
		bd.Check(WindowStats{WindowEndTick: uint64(i)})
	}

	history := bd.getHistory()
	if len(history) != 5 {
		t.Fatalf("history len = %d, want 5", len(history))
	}
	for i, h := range history {
		if want := uint64(i + 3); h.WindowEndTick != want {
			t.Errorf("history[%d] = %d, want %d", i, h.WindowEndTick, want)
		}
	}
}
