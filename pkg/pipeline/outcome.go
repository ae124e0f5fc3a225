package pipeline

import (
	"github.com/turbokube/detpack/pkg/harness"
	v1 "github.com/turbokube/detpack/pkg/schema/v1"
)

type State string

const (
	Idle       State = "Idle"
	Building   State = "Building"
	Addressing State = "Addressing"
	Extracting State = "Extracting"
	Running1   State = "Running(1)"
	Running2   State = "Running(2)"
	Comparing  State = "Comparing"
	Verified   State = "Verified"
	// Packaged is the terminal success state of upload mode
	Packaged State = "Packaged"
	Failed   State = "Failed"
)

// Outcome is the terminal record of one pipeline run
type Outcome struct {
	Status State   `json:"status"`
	Mode   v1.Mode `json:"mode"`
	Source string  `json:"source"`
	// FailedIn is the state that was active when the run failed
	FailedIn        State            `json:"failedIn,omitempty"`
	Kind            string           `json:"kind,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	InitialStateCID string           `json:"initialStateCID,omitempty"`
	InputCID        string           `json:"inputCID,omitempty"`
	FunctionCID     string           `json:"functionCID,omitempty"`
	ArchiveDigest   string           `json:"archiveDigest,omitempty"`
	Runs            []harness.Result `json:"runs,omitempty"`
	// States lists every state entered, in order
	States []State `json:"states"`
}
