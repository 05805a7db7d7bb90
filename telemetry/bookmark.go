package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkPollutionSpike BookmarkType = "pollution_spike"
	BookmarkAlertStorm     BookmarkType = "alert_storm"
	BookmarkTreeDieOff     BookmarkType = "tree_die_off"
	BookmarkAirRecovery    BookmarkType = "air_recovery"
	BookmarkSteadyState    BookmarkType = "steady_state"
)

// Bookmark marks a notable window in a run.
type Bookmark struct {
	Type        BookmarkType
	Tick        uint64
	Description string
}

// LogBookmark logs the bookmark using the given logger.
func (b Bookmark) LogBookmark(log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector compares each window against recent history.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentPeakMean     float64 // highest mean pollution since the last recovery
	lastDead           int
	stableWindowsCount int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady state detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest window and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	checks := []func(WindowStats) *Bookmark{
		bd.checkPollutionSpike,
		bd.checkAlertStorm,
		bd.checkTreeDieOff,
		bd.checkAirRecovery,
		bd.checkSteadyState,
	}
	for _, check := range checks {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	bd.lastDead = stats.TreesDead
	if stats.MeanPollution > bd.recentPeakMean {
		bd.recentPeakMean = stats.MeanPollution
	}
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

// getHistory returns the stored windows, oldest first.
func (bd *BookmarkDetector) getHistory() []WindowStats {
	if !bd.historyFull {
		return bd.history[:bd.historyIdx]
	}
	ordered := make([]WindowStats, 0, bd.historySize)
	ordered = append(ordered, bd.history[bd.historyIdx:]...)
	return append(ordered, bd.history[:bd.historyIdx]...)
}

func (bd *BookmarkDetector) checkPollutionSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	peaks := make([]float64, len(history))
	for i, h := range history {
		peaks[i] = h.PeakPollution
	}
	avg := stat.Mean(peaks, nil)
	if avg <= 0 {
		return nil
	}

	if stats.PeakPollution > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkPollutionSpike,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Peak pollution %.1f is %.1fx average (%.1f)", stats.PeakPollution, stats.PeakPollution/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkAlertStorm(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 || stats.Alerts < 3 {
		return nil
	}

	var total int
	for _, h := range history {
		total += h.Alerts
	}
	avg := float64(total) / float64(len(history))

	if float64(stats.Alerts) > avg*2.0 {
		return &Bookmark{
			Type:        BookmarkAlertStorm,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d alerts against an average of %.1f", stats.Alerts, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkTreeDieOff(stats WindowStats) *Bookmark {
	total := stats.TreesHealthy + stats.TreesStressed + stats.TreesDead
	died := stats.TreesDead - bd.lastDead
	if total == 0 || died <= 0 {
		return nil
	}

	// First death, or a quarter of all trees lost in one window
	if bd.lastDead == 0 || died*4 >= total {
		return &Bookmark{
			Type:        BookmarkTreeDieOff,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d trees died, %d of %d dead", died, stats.TreesDead, total),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkAirRecovery(stats WindowStats) *Bookmark {
	if bd.recentPeakMean <= 0 {
		return nil
	}

	drop := 1.0 - stats.MeanPollution/bd.recentPeakMean
	if drop > 0.5 {
		oldPeak := bd.recentPeakMean
		bd.recentPeakMean = stats.MeanPollution

		return &Bookmark{
			Type:        BookmarkAirRecovery,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean pollution fell %.0f%% from %.2f to %.2f", drop*100, oldPeak, stats.MeanPollution),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSteadyState(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 4 || stats.MeanPollution <= 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	recent := make([]float64, 0, 5)
	for _, h := range history[len(history)-4:] {
		recent = append(recent, h.MeanPollution)
	}
	recent = append(recent, stats.MeanPollution)

	mean, std := stat.MeanStdDev(recent, nil)
	if mean > 0 && std/mean < 0.05 {
		bd.stableWindowsCount++
	} else {
		bd.stableWindowsCount = 0
	}

	if bd.stableWindowsCount == 3 { // trigger once per stable stretch
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Mean pollution steady near %.2f", mean),
		}
	}
	return nil
}
