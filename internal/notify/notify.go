// Package notify carries pipeline progress to the presentation layer.
package notify

import (
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
)

// Event types sent to the presentation layer.
const (
	EventGenerateStart    = "generate-start"
	EventLog              = "log"
	EventDetectionRequest = "human-check"
	EventGenerateComplete = "generate-complete"
	EventUploadResult     = "generate-qr"
)

// Notifier receives every outbound pipeline event.
type Notifier interface {
	GenerateStart()
	Log(message string)
	DetectionRequest(req detection.Request)
	// GenerateComplete carries the final image as a data URL, or "" after a failed run.
	GenerateComplete(dataURL string)
	UploadResult(url string)
}

// Event is the serialized form of a notification.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

type LogPayload struct {
	Text string `json:"txt"`
}

type CompletePayload struct {
	DataURL string `json:"dataUrl"`
}

type UploadPayload struct {
	URL string `json:"qrUrl"`
}

// Multi fans every notification out to each notifier in order.
type Multi []Notifier

func (m Multi) GenerateStart() {
	for _, n := range m {
		n.GenerateStart()
	}
}

func (m Multi) Log(message string) {
	for _, n := range m {
		n.Log(message)
	}
}

func (m Multi) DetectionRequest(req detection.Request) {
	for _, n := range m {
		n.DetectionRequest(req)
	}
}

func (m Multi) GenerateComplete(dataURL string) {
	for _, n := range m {
		n.GenerateComplete(dataURL)
	}
}

func (m Multi) UploadResult(url string) {
	for _, n := range m {
		n.UploadResult(url)
	}
}

// Slog writes notifications to a structured logger.
type Slog struct {
	Logger *slog.Logger
}

func (s Slog) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Slog) GenerateStart() { s.logger().Info("Generate started") }

func (s Slog) Log(message string) { s.logger().Info("Console", "txt", message) }

func (s Slog) DetectionRequest(req detection.Request) {
	s.logger().Info("Detection requested", "run_id", req.RunID, "image", req.ImagePath)
}

func (s Slog) GenerateComplete(dataURL string) {
	s.logger().Info("Generate complete", "success", dataURL != "", "bytes", len(dataURL))
}

func (s Slog) UploadResult(url string) { s.logger().Info("Upload result", "url", url) }
