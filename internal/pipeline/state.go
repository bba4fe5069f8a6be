package pipeline

import "fmt"

// State is the stage a run is in.
type State int

const (
	Idle State = iota
	Submitting
	Polling
	Slicing
	AwaitingDetection
	Swapping
	Compositing
	Publishing
	ErrorReset
)

var stateNames = [...]string{
	Idle:              "idle",
	Submitting:        "submitting",
	Polling:           "polling",
	Slicing:           "slicing",
	AwaitingDetection: "awaiting_detection",
	Swapping:          "swapping",
	Compositing:       "compositing",
	Publishing:        "publishing",
	ErrorReset:        "error_reset",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// RunState is the orchestrator's view of the kiosk. Busy is true from the
// moment a run is accepted until it publishes or resets.
type RunState struct {
	Busy                    bool   `json:"busy"`
	LastCapturedSubjectPath string `json:"last_captured_subject_path"`
	Generation              uint64 `json:"generation"`
	RunID                   string `json:"run_id,omitempty"`
	Stage                   State  `json:"stage"`
}

// Trigger describes what asked for a run.
type Trigger struct {
	Source string `json:"source"`
	// FacePath overrides the captured face for this run.
	FacePath string `json:"face_path,omitempty"`
}
