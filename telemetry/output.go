package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/smog/config"
)

// OutputManager handles structured run output with CSV logging.
// It writes stats.csv (one row per tick), comm.csv (one row per message)
// and agents.csv (one row per agent per tick).
type OutputManager struct {
	dir        string
	statsFile  *os.File
	commFile   *os.File
	agentsFile *os.File

	// Track if headers have been written
	statsHeaderWritten  bool
	commHeaderWritten   bool
	agentsHeaderWritten bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	files := []struct {
		name string
		dst  **os.File
	}{
		{"stats.csv", &om.statsFile},
		{"comm.csv", &om.commFile},
		{"agents.csv", &om.agentsFile},
	}
	for _, f := range files {
		fh, err := os.Create(filepath.Join(dir, f.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", f.name, err)
		}
		*f.dst = fh
	}

	return om, nil
}

// WriteConfig saves the configuration the run was started from as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// writeRecords marshals records, emitting the header only on the first call.
func writeRecords[T any](f *os.File, headerWritten *bool, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !*headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteStats writes one tick's stats to stats.csv.
func (om *OutputManager) WriteStats(stats TickStats) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.statsFile, &om.statsHeaderWritten, []TickStats{stats}); err != nil {
		return fmt.Errorf("writing stats: %w", err)
	}
	return nil
}

// WriteComm appends messages to comm.csv.
func (om *OutputManager) WriteComm(events []CommEvent) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.commFile, &om.commHeaderWritten, events); err != nil {
		return fmt.Errorf("writing comm log: %w", err)
	}
	return nil
}

// WriteAgents appends agent states to agents.csv.
func (om *OutputManager) WriteAgents(tick uint64, agents []AgentState) error {
	if om == nil {
		return nil
	}
	rows := make([]AgentState, len(agents))
	for i, a := range agents {
		a.Tick = tick
		rows[i] = a
	}
	if err := writeRecords(om.agentsFile, &om.agentsHeaderWritten, rows); err != nil {
		return fmt.Errorf("writing agents: %w", err)
	}
	return nil
}

// OnTick writes the snapshot's stats, messages and agent states.
func (om *OutputManager) OnTick(s *Snapshot) error {
	if om == nil {
		return nil
	}
	if err := om.WriteStats(s.Stats); err != nil {
		return err
	}
	if err := om.WriteComm(s.Events); err != nil {
		return err
	}
	return om.WriteAgents(s.Tick, s.Agents)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.statsFile, om.commFile, om.agentsFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
