// Package detection defines the message contract with the external subject
// detector and the geometry that turns its per-quadrant boxes into one
// subject rectangle on the source image.
package detection

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSubject means no quadrant reported a usable box.
var ErrNoSubject = errors.New("no subject detected")

// QuadrantImage is one persisted quadrant crop.
type QuadrantImage struct {
	Index   int    `json:"index"`
	Path    string `json:"path"`
	DataURL string `json:"data_url,omitempty"`
}

// Request asks the detector to look at the four quadrants of one artifact.
type Request struct {
	RunID     string                      `json:"run_id"`
	ImagePath string                      `json:"image_path"`
	Width     int                         `json:"width"`
	Height    int                         `json:"height"`
	Quadrants [NumQuadrants]QuadrantImage `json:"quadrants"`
}

// Report carries the boxes found in one quadrant, in that quadrant's view space.
type Report struct {
	RunID     string   `json:"run_id"`
	ImagePath string   `json:"image_path"`
	Quadrant  int      `json:"quadrant"`
	Boxes     []RawBox `json:"boxes"`
	// Error is set by detectors that could not process the quadrant.
	Error string `json:"error,omitempty"`
}

// Sink receives reports; the orchestrator implements it.
type Sink interface {
	Deliver(Report) error
}

// Gateway hands a request to the detection capability. Results come back
// later through the sink, possibly long after Send returns.
type Gateway interface {
	Send(ctx context.Context, req Request, sink Sink) error
}

// Error is a detector-side failure for one quadrant.
type Error struct {
	ImagePath string
	Quadrant  int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("detection failed for %s quadrant %d: %s", e.ImagePath, e.Quadrant, e.Message)
}

// RequestPublisher is the part of the presentation layer that shows quadrants
// to the detector.
type RequestPublisher interface {
	DetectionRequest(Request)
}

// NotifierGateway forwards requests to the presentation layer, whose detector
// answers through the HTTP API. A sink that is also a RequestPublisher
// publishes the request itself; Publisher is used otherwise.
type NotifierGateway struct {
	Publisher RequestPublisher
}

func (g *NotifierGateway) Send(ctx context.Context, req Request, sink Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pub := g.Publisher
	if p, ok := sink.(RequestPublisher); ok {
		pub = p
	}
	if pub == nil {
		return fmt.Errorf("notifier gateway has no publisher")
	}
	pub.DetectionRequest(req)
	return nil
}
