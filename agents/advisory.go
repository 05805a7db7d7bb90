package agents

import (
	"github.com/pthm-cable/smog/components"
	"github.com/pthm-cable/smog/systems"
)

// Advisory marks a zone a monitor flagged as critical.
type Advisory struct {
	Source uint32
	Tick   uint64 // Tick the advisory was posted
	Center components.Position
	Radius int
	Level  float64 // Reading that triggered it
}

// Covers reports whether p lies inside the advisory zone.
func (a Advisory) Covers(g *systems.Grid, p components.Position) bool {
	return g.Distance(a.Center, p) <= a.Radius
}

// AdvisoryBoard delivers advisories with a one-tick delay: anything posted
// during tick t becomes visible on tick t+1 and expires after it.
type AdvisoryBoard struct {
	pending []Advisory
	visible []Advisory
}

// NewAdvisoryBoard creates an empty board.
func NewAdvisoryBoard() *AdvisoryBoard {
	return &AdvisoryBoard{}
}

// Post queues an advisory for the next tick.
func (b *AdvisoryBoard) Post(a Advisory) {
	b.pending = append(b.pending, a)
}

// Visible returns the advisories readable this tick.
func (b *AdvisoryBoard) Visible() []Advisory {
	return append([]Advisory(nil), b.visible...)
}

// PendingLen returns how many advisories are waiting for the next tick.
func (b *AdvisoryBoard) PendingLen() int {
	return len(b.pending)
}

// Rotate is called once at the end of a tick.
func (b *AdvisoryBoard) Rotate() {
	b.visible, b.pending = b.pending, b.visible[:0]
}

// covered reports whether any advisory covers p.
func covered(g *systems.Grid, advisories []Advisory, p components.Position) bool {
	for _, a := range advisories {
		if a.Covers(g, p) {
			return true
		}
	}
	return false
}
