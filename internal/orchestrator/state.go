package orchestrator

import "fmt"

// State is a pipeline run state
type State string

const (
	StateIdle             State = "idle"
	StateExtracting       State = "extracting"
	StateAnalyzing        State = "analyzing"
	StateGatheringContext State = "gathering_context"
	StateAdvising         State = "advising"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

// transitions lists the legal edges. Idle goes straight to Analyzing when the
// run starts from an already extracted portfolio.
var transitions = map[State][]State{
	StateIdle:             {StateExtracting, StateAnalyzing},
	StateExtracting:       {StateAnalyzing, StateFailed},
	StateAnalyzing:        {StateGatheringContext},
	StateGatheringContext: {StateAdvising},
	StateAdvising:         {StateComplete},
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransition reports whether from → to is a legal edge
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports an illegal state change
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
