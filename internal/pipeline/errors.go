package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRun is returned by Deliver for reports that match no waiting artifact.
	ErrUnknownRun = errors.New("report does not match an active run")
	// ErrClosed is returned by CaptureSaved once the orchestrator has shut down.
	ErrClosed = errors.New("orchestrator is shut down")

	errSuperseded = errors.New("run superseded by a newer generation")
)

// TimeoutError means a stage did not finish before its configured deadline.
type TimeoutError struct {
	Stage State
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("timed out while %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("timed out while %s", e.Stage)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
