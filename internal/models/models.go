package models

import "time"

// Run outcomes
const (
	OutcomeComplete   = "complete"
	OutcomeFailed     = "failed"
	OutcomeNoSubject  = "no_subject"
	OutcomeSuperseded = "superseded"
)

// RunRecord represents one generation run, from trigger to publish or reset
type RunRecord struct {
	ID         string           `json:"id" yaml:"id"`
	Generation uint64           `json:"generation" yaml:"generation"`
	Trigger    string           `json:"trigger" yaml:"trigger"`
	FacePath   string           `json:"face_path" yaml:"face_path"`
	JobID      string           `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Outcome    string           `json:"outcome" yaml:"outcome"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	Artifacts  []ArtifactRecord `json:"artifacts" yaml:"artifacts"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
}

// Duration is how long the run took, or zero while it is still going.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ArtifactRecord represents one generated image and the files derived from it
type ArtifactRecord struct {
	SourcePath string `json:"source_path" yaml:"source_path"`
	HumanPath  string `json:"human_path,omitempty" yaml:"human_path,omitempty"`
	SwapPath   string `json:"swap_path,omitempty" yaml:"swap_path,omitempty"`
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	UploadURL  string `json:"upload_url,omitempty" yaml:"upload_url,omitempty"`
	BoxX       int    `json:"box_x" yaml:"box_x"`
	BoxY       int    `json:"box_y" yaml:"box_y"`
	BoxWidth   int    `json:"box_width" yaml:"box_width"`
	BoxHeight  int    `json:"box_height" yaml:"box_height"`
}
