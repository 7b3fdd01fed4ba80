package scenario

import (
	"fmt"
	"time"
)

type State string

const (
	StateInitialized State = "Initialized"
	StateEnumerating State = "Enumerating"
	StateProbing     State = "Probing"
	StateParsing     State = "Parsing"
	StateInferring   State = "Inferring"
	StateBuilding    State = "Building"
	StateDiffed      State = "Diffed"
	StateFailed      State = "Failed"
)

var transitions = map[State][]State{
	StateInitialized: {StateEnumerating},
	StateEnumerating: {StateProbing},
	StateProbing:     {StateParsing},
	StateParsing:     {StateInferring, StateBuilding},
	StateInferring:   {StateBuilding},
	StateBuilding:    {StateDiffed},
}

type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

func (s State) Terminal() bool {
	return s == StateDiffed || s == StateFailed
}

// canMove allows Failed from any non-terminal state.
func canMove(from, to State) error {
	if from.Terminal() {
		return fmt.Errorf("run already finished in state %s", from)
	}
	if to == StateFailed {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", from, to)
}
