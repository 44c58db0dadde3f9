package pipeline

import "fmt"

// State is a stage of a target's pipeline.
//
//	Idle -> Loading -> Modeling -> Mapping -> Emitting -> Diffing -> Written
//
// Any stage can move to Failed instead.
type State int

const (
	Idle State = iota
	// Loading reads the metadata overlay and parses the sources.
	Loading
	// Modeling builds the declaration model.
	Modeling
	// Mapping maps every declaration for the target.
	Mapping
	// Emitting generates the file contents in memory.
	Emitting
	// Diffing compares generated files with the existing output.
	Diffing
	Written
	Failed
)

var stateNames = [...]string{
	Idle:     "idle",
	Loading:  "loading",
	Modeling: "modeling",
	Mapping:  "mapping",
	Emitting: "emitting",
	Diffing:  "diffing",
	Written:  "written",
	Failed:   "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
