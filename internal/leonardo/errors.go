package leonardo

import (
	"errors"
	"fmt"
)

// ErrPollTimeout is wrapped by a PollError when the optional poll deadline elapses.
var ErrPollTimeout = errors.New("generation job did not finish before the poll deadline")

// SubmissionError means the creation request failed or its response carried no job id.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation submission failed (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("generation submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError means a status query or artifact download failed.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("polling generation %s failed: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// JobNotFoundError means the job record is gone or the job ended without artifacts.
type JobNotFoundError struct {
	JobID  string
	Status Status
}

func (e *JobNotFoundError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("generation %s ended with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("generation %s not found", e.JobID)
}
