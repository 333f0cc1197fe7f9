package item

// StepState is the position of a ChunkStep in its execution state machine.
type StepState int

const (
	StateIdle StepState = iota
	StateReading
	StateChunkOpen
	StateCommitting
	StateSkippingItem
	StateRollingBack
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "Idle",
	StateReading:      "Reading",
	StateChunkOpen:    "ChunkOpen",
	StateCommitting:   "Committing",
	StateSkippingItem: "SkippingItem",
	StateRollingBack:  "RollingBack",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

func (s StepState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether no further transition is possible.
func (s StepState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}
