package notify

import (
	"io"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/schollz/progressbar/v3"
)

// Progress renders pipeline console messages as a terminal spinner.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress writes the spinner to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Waiting"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *Progress) GenerateStart() {
	p.bar.Describe("Start Generating...")
	_ = p.bar.Add(1)
}

func (p *Progress) Log(message string) {
	p.bar.Describe(message)
	_ = p.bar.Add(1)
}

func (p *Progress) DetectionRequest(req detection.Request) {
	p.bar.Describe("Detecting subject")
	_ = p.bar.Add(1)
}

func (p *Progress) GenerateComplete(dataURL string) {
	if dataURL == "" {
		p.bar.Describe("Generate failed")
		return
	}
	p.bar.Describe("Generate Complete")
	_ = p.bar.Add(1)
}

func (p *Progress) UploadResult(url string) {
	p.bar.Describe("Uploaded")
	_ = p.bar.Add(1)
}

// Finish clears the spinner.
func (p *Progress) Finish() {
	_ = p.bar.Finish()
}
