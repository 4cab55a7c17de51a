package imagescan

// State is a step of one image analysis run.
type State string

const (
	StateIdle                  State = "idle"
	StateExtracting            State = "extracting"
	StateTextAnalysis          State = "textAnalysis"
	StateObjectAndFaceAnalysis State = "objectAndFaceAnalysis"
	StateAggregated            State = "aggregated"
	StateDone                  State = "done"
	StateFailed                State = "failed"
)

// next lists the legal transitions. Failed is reachable from every
// non-terminal state.
var next = map[State][]State{
	StateIdle:                  {StateExtracting},
	StateExtracting:            {StateTextAnalysis, StateObjectAndFaceAnalysis},
	StateTextAnalysis:          {StateObjectAndFaceAnalysis},
	StateObjectAndFaceAnalysis: {StateAggregated},
	StateAggregated:            {StateDone},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateDone && from != StateFailed
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }
