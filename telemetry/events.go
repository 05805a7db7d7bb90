// Package telemetry provides tick snapshots, stats and the observers that
// persist them.
package telemetry

// CommEvent is one entry in the communication log.
type CommEvent struct {
	Tick    uint64 `csv:"tick" json:"tick" db:"tick"`
	Source  uint32 `csv:"source_id" json:"source_id" db:"source_id"`
	Message string `csv:"message" json:"message" db:"message"`
}

// Observer receives every completed tick. Snapshots are read-only copies.
type Observer interface {
	OnTick(s *Snapshot) error
	Close() error
}

// CommLog keeps the communication log in memory, append-only, in emission order.
type CommLog struct {
	records []CommEvent
}

// NewCommLog creates an empty log.
func NewCommLog() *CommLog {
	return &CommLog{}
}

// Append adds events to the log.
func (l *CommLog) Append(events ...CommEvent) {
	l.records = append(l.records, events...)
}

// OnTick appends the tick's events.
func (l *CommLog) OnTick(s *Snapshot) error {
	l.Append(s.Events...)
	return nil
}

// Close is a no-op.
func (l *CommLog) Close() error {
	return nil
}

// Records returns a copy of every event logged so far.
func (l *CommLog) Records() []CommEvent {
	return append([]CommEvent(nil), l.records...)
}

// Len returns the number of logged events.
func (l *CommLog) Len() int {
	return len(l.records)
}
