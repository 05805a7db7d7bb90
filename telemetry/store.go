package telemetry

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store persists communication logs and tick stats of one or more runs
// in a SQLite database.
type Store struct {
	conn *sqlx.DB
}

// RunRow is one row of the runs table.
type RunRow struct {
	ID        string `db:"id"`
	Seed      int64  `db:"seed"`
	StartedAt string `db:"started_at"`
	Ticks     int64  `db:"ticks"`
	Reason    string `db:"reason"`
}

// OpenStore opens or creates a SQLite database at the given path.
func OpenStore(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Parallel runs share one writer.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS comm_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		message TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tick_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		total REAL NOT NULL,
		mean REAL NOT NULL,
		max REAL NOT NULL,
		p90 REAL NOT NULL,
		post_diffusion_total REAL NOT NULL,
		emitted REAL NOT NULL,
		absorbed REAL NOT NULL,
		clamped REAL NOT NULL,
		cars_moved INTEGER NOT NULL,
		cars_blocked INTEGER NOT NULL,
		factory_output REAL NOT NULL,
		trees_healthy INTEGER NOT NULL,
		trees_stressed INTEGER NOT NULL,
		trees_dead INTEGER NOT NULL,
		alerts INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE INDEX IF NOT EXISTS idx_comm_run_tick ON comm_events(run_id, tick);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// BeginRun registers a run and returns an observer that records its ticks.
func (s *Store) BeginRun(runID string, seed int64) (*RunRecorder, error) {
	_, err := s.conn.Exec(`INSERT INTO runs (id, seed, started_at) VALUES (?, ?, ?)`,
		runID, seed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("register run %s: %w", runID, err)
	}
	return &RunRecorder{store: s, runID: runID}, nil
}

// FinishRun records how a run ended.
func (s *Store) FinishRun(runID string, ticks uint64, reason string) error {
	_, err := s.conn.Exec(`UPDATE runs SET ticks = ?, reason = ? WHERE id = ?`,
		int64(ticks), reason, runID)
	return err
}

// Runs lists every recorded run in start order.
func (s *Store) Runs() ([]RunRow, error) {
	var rows []RunRow
	err := s.conn.Select(&rows, `SELECT id, seed, started_at, ticks, reason FROM runs ORDER BY started_at, id`)
	return rows, err
}

// Events returns a run's communication log in emission order.
func (s *Store) Events(runID string) ([]CommEvent, error) {
	var events []CommEvent
	err := s.conn.Select(&events,
		`SELECT tick, source_id, message FROM comm_events WHERE run_id = ? ORDER BY id`, runID)
	return events, err
}

// Stats returns a run's per-tick stats in tick order.
func (s *Store) Stats(runID string) ([]TickStats, error) {
	var stats []TickStats
	err := s.conn.Select(&stats, `SELECT tick, total, mean, max, p90, post_diffusion_total,
		emitted, absorbed, clamped, cars_moved, cars_blocked, factory_output,
		trees_healthy, trees_stressed, trees_dead, alerts
		FROM tick_stats WHERE run_id = ? ORDER BY tick`, runID)
	return stats, err
}

// RunRecorder writes one run's ticks into a Store.
type RunRecorder struct {
	store *Store
	runID string
}

// RunID returns the run this recorder writes to.
func (r *RunRecorder) RunID() string {
	return r.runID
}

// OnTick stores the tick's stats and messages in one transaction.
func (r *RunRecorder) OnTick(snap *Snapshot) error {
	tx, err := r.store.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range snap.Events {
		if _, err := tx.Exec(`INSERT INTO comm_events (run_id, tick, source_id, message) VALUES (?, ?, ?, ?)`,
			r.runID, int64(e.Tick), int64(e.Source), e.Message); err != nil {
			return fmt.Errorf("insert comm event: %w", err)
		}
	}

	st := snap.Stats
	if _, err := tx.Exec(`INSERT INTO tick_stats
		(run_id, tick, total, mean, max, p90, post_diffusion_total,
		 emitted, absorbed, clamped, cars_moved, cars_blocked, factory_output,
		 trees_healthy, trees_stressed, trees_dead, alerts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, int64(st.Tick), st.TotalPollution, st.MeanPollution, st.MaxPollution, st.P90Pollution,
		st.PostDiffusionTotal, st.Emitted, st.Absorbed, st.Clamped,
		st.CarsMoved, st.CarsBlocked, st.FactoryOutput,
		st.TreesHealthy, st.TreesStressed, st.TreesDead, st.Alerts); err != nil {
		return fmt.Errorf("insert tick stats: %w", err)
	}

	return tx.Commit()
}

// Close is a no-op; the Store owns the connection.
func (r *RunRecorder) Close() error {
	return nil
}
