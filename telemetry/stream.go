package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// SnapshotStream writes one JSON snapshot per line into a zstd-compressed file.
type SnapshotStream struct {
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

// NewSnapshotStream creates (or truncates) path and opens the encoder.
func NewSnapshotStream(path string) (*SnapshotStream, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating stream directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot stream: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &SnapshotStream{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// OnTick appends the snapshot as one JSON line.
func (s *SnapshotStream) OnTick(snap *Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot %d: %w", snap.Tick, err)
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

// Path returns the file the stream writes to.
func (s *SnapshotStream) Path() string {
	return s.path
}

// Close flushes buffered lines and closes the file.
func (s *SnapshotStream) Close() error {
	var err1 error
	if s.w != nil {
		err1 = s.w.Flush()
		s.w = nil
	}
	if s.enc != nil {
		if err := s.enc.Close(); err != nil && err1 == nil {
			err1 = err
		}
		s.enc = nil
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil && err1 == nil {
			err1 = err
		}
		s.f = nil
	}
	return err1
}

// ReadSnapshots decodes every snapshot in a stream written by SnapshotStream.
func ReadSnapshots(path string) ([]Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Snapshot
	jd := json.NewDecoder(dec)
	for {
		var snap Snapshot
		if err := jd.Decode(&snap); err == io.EOF {
			break
		} else if err != nil {
			return out, fmt.Errorf("decoding snapshot %d: %w", len(out), err)
		}
		out = append(out, snap)
	}
	return out, nil
}
