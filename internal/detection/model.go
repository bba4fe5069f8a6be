package detection

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
)

// DetectFunc finds people in one encoded image and returns boxes scaled to
// width x height.
type DetectFunc func(ctx context.Context, image []byte, width, height int) ([]RawBox, error)

// ModelGateway runs detection in-process with a vision model and delivers
// one report per quadrant.
type ModelGateway struct {
	Concurrency int
	Detect      DetectFunc
}

func (g *ModelGateway) Send(ctx context.Context, req Request, sink Sink) error {
	if g.Detect == nil {
		return fmt.Errorf("model gateway has no detector")
	}

	go func() {
		eg, egCtx := errgroup.WithContext(ctx)
		if g.Concurrency > 0 {
			eg.SetLimit(g.Concurrency)
		}
		for _, q := range req.Quadrants {
			eg.Go(func() error {
				report := Report{RunID: req.RunID, ImagePath: req.ImagePath, Quadrant: q.Index}

				data, err := os.ReadFile(q.Path)
				if err == nil {
					report.Boxes, err = g.Detect(egCtx, data, req.Width, req.Height)
				}
				if err != nil {
					slog.Warn("Quadrant detection failed", "image", req.ImagePath, "quadrant", q.Index, "error", err)
					report.Error = err.Error()
				}
				if err := sink.Deliver(report); err != nil {
					slog.Debug("Detection report not accepted", "image", req.ImagePath, "quadrant", q.Index, "error", err)
				}
				return nil
			})
		}
		_ = eg.Wait()
	}()
	return nil
}

