package telemetry

// AgentState is the observable state of one agent at the end of a tick.
// Fields that do not apply to a variant are left zero.
type AgentState struct {
	Tick uint64 `csv:"tick" json:"-"`
	ID   uint32 `csv:"id" json:"id"`
	Kind string `csv:"kind" json:"kind"`
	X    int    `csv:"x" json:"x"`
	Y    int    `csv:"y" json:"y"`

	// Car mode, factory mode, tree status or monitor state
	Mode string `csv:"mode" json:"mode"`

	Health   float64 `csv:"health" json:"health,omitempty"`
	Output   float64 `csv:"output" json:"output,omitempty"`
	Modifier float64 `csv:"modifier" json:"modifier,omitempty"`
	Absorbed float64 `csv:"absorbed" json:"absorbed,omitempty"`
	Reading  float64 `csv:"reading" json:"reading,omitempty"`
	Alerts   int     `csv:"alerts" json:"alerts,omitempty"`

	DestX   int `csv:"dest_x" json:"dest_x,omitempty"`
	DestY   int `csv:"dest_y" json:"dest_y,omitempty"`
	Moves   int `csv:"moves" json:"moves,omitempty"`
	Blocked int `csv:"blocked" json:"blocked,omitempty"`
}

// Snapshot is a read-only copy of the simulation at the end of a tick.
type Snapshot struct {
	Tick   uint64 `json:"tick"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Field[y][x] is the committed concentration.
	Field  [][]float64  `json:"field"`
	Agents []AgentState `json:"agents"`
	Events []CommEvent  `json:"events"`
	Stats  TickStats    `json:"stats"`
}

// PollutionAt returns the concentration at (x, y), or 0 outside the field.
func (s *Snapshot) PollutionAt(x, y int) float64 {
	if y < 0 || y >= len(s.Field) || x < 0 || x >= len(s.Field[y]) {
		return 0
	}
	return s.Field[y][x]
}

// Agent looks up an agent by id.
func (s *Snapshot) Agent(id uint32) (AgentState, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentState{}, false
}

// AgentsOfKind returns the agents of one kind in id order.
func (s *Snapshot) AgentsOfKind(kind string) []AgentState {
	var out []AgentState
	for _, a := range s.Agents {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}
