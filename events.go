package main

import "fmt"

// Event type constants for the deliberation progress stream.
const (
	EventStage1Start       = "stage1_start"
	EventStage1Chunk       = "stage1_chunk"
	EventStage1Complete    = "stage1_complete"
	EventFactCheckStart    = "fact_check_start"
	EventFactCheckChunk    = "fact_check_chunk"
	EventFactCheckComplete = "fact_check_complete"
	EventStage3Start       = "stage3_start"
	EventStage3Chunk       = "stage3_chunk"
	EventStage3Complete    = "stage3_complete"
	EventStage4Start       = "stage4_start"
	EventStage4Chunk       = "stage4_chunk"
	EventStage4Complete    = "stage4_complete"
	EventError             = "error"
)

// Event is one entry of the ordered progress stream a run emits.
// Chunk events carry Model/Instance/Text; completion events carry Data and,
// for stages 2 and 3, Metadata with the aggregate views computed so far.
type Event struct {
	Type     string      `json:"type"`
	Model    string      `json:"model,omitempty"`
	Instance int         `json:"instance,omitempty"`
	Text     string      `json:"text,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Metadata interface{} `json:"metadata,omitempty"`
	Stage    string      `json:"stage,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// EventSink receives progress events in emission order. The engine serializes
// calls, so a sink does not need to be safe for concurrent use.
type EventSink func(Event)

// RunState is one state of the deliberation state machine.
type RunState int

const (
	StateIdle RunState = iota
	StateStage1Collecting
	StateStage1Done
	StateStage2FactChecking
	StateStage2Done
	StateStage3Ranking
	StateStage3Done
	StateStage4Synthesizing
	StateComplete
	StateFailed
)

var runStateNames = map[RunState]string{
	StateIdle:               "idle",
	StateStage1Collecting:   "stage1_collecting",
	StateStage1Done:         "stage1_done",
	StateStage2FactChecking: "stage2_fact_checking",
	StateStage2Done:         "stage2_done",
	StateStage3Ranking:      "stage3_ranking",
	StateStage3Done:         "stage3_done",
	StateStage4Synthesizing: "stage4_synthesizing",
	StateComplete:           "complete",
	StateFailed:             "failed",
}

func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the state machine stops at this state.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// validTransitions enumerates the legal forward edges of the state machine.
// StateFailed is additionally reachable from every non-terminal state.
var validTransitions = map[RunState][]RunState{
	StateIdle:               {StateStage1Collecting},
	StateStage1Collecting:   {StateStage1Done},
	StateStage1Done:         {StateStage2FactChecking, StateStage3Ranking},
	StateStage2FactChecking: {StateStage2Done},
	StateStage2Done:         {StateStage3Ranking},
	StateStage3Ranking:      {StateStage3Done},
	StateStage3Done:         {StateStage4Synthesizing},
	StateStage4Synthesizing: {StateComplete},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to RunState) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StageFailure is the fatal error for a stage with zero surviving responses,
// including a failed chairman call. Individual call failures within a stage
// that still left survivors are not errors; they only show up in diagnostics.
type StageFailure struct {
	Stage     string
	Attempted int
	Succeeded int
	Reason    string
}

func (e *StageFailure) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s failed (%d/%d models responded): %s",
			e.Stage, e.Succeeded, e.Attempted, e.Reason)
	}
	return fmt.Sprintf("%s failed (%d/%d models responded)",
		e.Stage, e.Succeeded, e.Attempted)
}
