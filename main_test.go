package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/smog/config"
)

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	return len(entries)
}

func TestOpenSinksClosesEverythingOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()

	open := func() (*sinks, error) {
		return openSinks(cfg, "run-1",
			filepath.Join(dir, "out"),
			filepath.Join(dir, "snapshots.jsonl.zst"),
			filepath.Join(dir, "missing", "comm.db"), // parent directory does not exist
		)
	}
	// The first call lets drivers set up process-wide state.
	if sk, err := open(); err == nil {
		sk.close()
	}

	before := openFDs(t)
	sk, err := open()
	if err == nil {
		sk.close()
		t.Fatal("expected the store to fail to open")
	}
	if sk != nil {
		t.Error("sinks returned alongside an error")
	}
	if after := openFDs(t); after != before {
		t.Errorf("open descriptors %d -> %d, sinks leaked", before, after)
	}
}

func TestOpenSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()

	sk, err := openSinks(cfg, "run-1",
		filepath.Join(dir, "out"),
		filepath.Join(dir, "snapshots.jsonl.zst"),
		filepath.Join(dir, "comm.db"),
	)
	if err != nil {
		t.Fatalf("openSinks: %v", err)
	}
	defer sk.close()

	if len(sk.observers) != 3 {
		t.Errorf("observers = %d, want 3", len(sk.observers))
	}
	runs, err := sk.store.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("runs = %+v, want one run-1", runs)
	}
}
