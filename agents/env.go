package agents

import (
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/smog/systems"
	"github.com/pthm-cable/smog/telemetry"
)

// Env is everything an agent can read or write during its turn.
type Env struct {
	Tick   uint64
	Grid   *systems.Grid
	Board  *AdvisoryBoard
	Outbox *Outbox
	Demand *systems.DemandSignal
	RNG    *rand.Rand
	Log    *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Outbox collects communication events emitted during a tick.
type Outbox struct {
	events []telemetry.CommEvent
}

// Send records a message from source.
func (o *Outbox) Send(tick uint64, source uint32, message string) {
	o.events = append(o.events, telemetry.CommEvent{Tick: tick, Source: source, Message: message})
}

// Drain returns the collected events and empties the outbox.
func (o *Outbox) Drain() []telemetry.CommEvent {
	out := o.events
	o.events = nil
	return out
}

// Len returns the number of undrained events.
func (o *Outbox) Len() int {
	return len(o.events)
}
