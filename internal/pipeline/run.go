package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/leonardo"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/notify"
	"golang.org/x/sync/errgroup"
)

const jpegDataURLPrefix = "data:image/jpeg;base64,"

func (o *Orchestrator) execute(r *run) error {
	if err := o.enter(r, Submitting); err != nil {
		return err
	}
	o.emit(r, func(n notify.Notifier) {
		n.GenerateStart()
		n.Log("Start Generating...")
	})

	// The rotating prompt overrides any prompt fields in the generation options.
	layers := []map[string]any{o.opts.Generation}
	if o.deps.Prompts != nil {
		layers = append(layers, o.deps.Prompts.Next())
	}

	handle, err := o.deps.Jobs.Submit(r.ctx, leonardo.Payload(layers...))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.record.JobID = handle.ID
	r.mu.Unlock()

	if err := o.enter(r, Polling); err != nil {
		return err
	}
	set, err := o.deps.Jobs.PollUntilTerminal(r.ctx, handle)
	if err != nil {
		if errors.Is(err, leonardo.ErrPollTimeout) {
			return &TimeoutError{Stage: Polling, Err: err}
		}
		return err
	}
	if len(set.Files) == 0 {
		return fmt.Errorf("generation %s returned no artifacts", handle.ID)
	}

	if err := o.enter(r, Slicing); err != nil {
		return err
	}

	results := make([]models.ArtifactRecord, len(set.Files))
	g, gctx := errgroup.WithContext(r.ctx)
	for i, src := range set.Files {
		g.Go(func() error {
			rec, err := o.processArtifact(gctx, r, src)
			results[i] = rec
			return err
		})
	}
	err = g.Wait()

	r.mu.Lock()
	r.record.Artifacts = results
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := o.enter(r, Publishing); err != nil {
		return err
	}
	for i := range results {
		if err := o.publish(r, &results[i]); err != nil {
			return err
		}
	}
	return nil
}

// processArtifact takes one downloaded artifact from quadrant slicing to the
// final composited portrait.
func (o *Orchestrator) processArtifact(ctx context.Context, r *run, src string) (models.ArtifactRecord, error) {
	rec := models.ArtifactRecord{SourcePath: src}
	base := strings.TrimSuffix(src, filepath.Ext(src))

	width, height, err := o.deps.Images.Dimensions(src)
	if err != nil {
		return rec, err
	}

	req := detection.Request{RunID: r.id, ImagePath: src, Width: width, Height: height}
	for q, region := range detection.Regions(width, height) {
		dest := fmt.Sprintf("%s_%d.jpg", base, q+1)
		if err := o.deps.Images.Crop(ctx, src, dest, region.Top, region.Left, region.Width, region.Height); err != nil {
			return rec, err
		}
		dataURL, err := encodeDataURL(dest)
		if err != nil {
			return rec, err
		}
		req.Quadrants[q] = detection.QuadrantImage{Index: q, Path: dest, DataURL: dataURL}
	}
	o.log(r, "Image Split Done")

	if err := o.enter(r, AwaitingDetection); err != nil {
		return rec, err
	}
	box, err := o.detect(ctx, r, req)
	if err != nil {
		return rec, err
	}
	rec.BoxX, rec.BoxY, rec.BoxWidth, rec.BoxHeight = box.X, box.Y, box.Width, box.Height
	o.log(r, "Human Detected")

	rec.HumanPath = base + "__human.jpg"
	if err := o.deps.Images.Crop(ctx, src, rec.HumanPath, box.Y, box.X, box.Width, box.Height); err != nil {
		return rec, err
	}
	o.log(r, "Human Image Sliced")

	if err := o.enter(r, Swapping); err != nil {
		return rec, err
	}
	o.log(r, "FaceSwap Start")

	rec.SwapPath = base + "__swap.jpg"
	rec.OutputPath = base + "__output.jpg"

	if o.opts.SwapTarget == config.SwapTargetSource {
		if _, err := o.deps.Swapper.Swap(ctx, r.face, src, rec.SwapPath); err != nil {
			return rec, err
		}
		if err := copyFile(rec.SwapPath, rec.OutputPath); err != nil {
			return rec, err
		}
		return rec, nil
	}

	if _, err := o.deps.Swapper.Swap(ctx, r.face, rec.HumanPath, rec.SwapPath); err != nil {
		return rec, err
	}

	if err := o.enter(r, Compositing); err != nil {
		return rec, err
	}
	o.log(r, "Image Compositing Start")
	if err := o.deps.Images.Composite(ctx, src, rec.SwapPath, rec.OutputPath, box.X, box.Y, box.Width, box.Height); err != nil {
		return rec, err
	}
	return rec, nil
}

// detect sends req to the detector and waits for every quadrant to report.
func (o *Orchestrator) detect(ctx context.Context, r *run, req detection.Request) (detection.Box, error) {
	reports := r.addWaiter(req.ImagePath)
	defer r.removeWaiter(req.ImagePath)

	if err := o.deps.Detector.Send(ctx, req, runSink{o: o, r: r}); err != nil {
		return detection.Box{}, fmt.Errorf("failed to send detection request: %w", err)
	}

	var deadline <-chan time.Time
	if o.opts.DetectionTimeout > 0 {
		t := time.NewTimer(o.opts.DetectionTimeout)
		defer t.Stop()
		deadline = t.C
	}

	acc := detection.NewAccumulator(req.Width, req.Height, o.opts.Margin)
	for {
		select {
		case <-ctx.Done():
			return detection.Box{}, ctx.Err()
		case <-deadline:
			return detection.Box{}, &TimeoutError{Stage: AwaitingDetection}
		case report := <-reports:
			done, err := acc.Add(report)
			if err != nil {
				slog.Warn("Ignoring detection report", "run_id", r.id, "image", req.ImagePath, "error", err)
				continue
			}
			if done {
				return acc.Subject()
			}
		}
	}
}

// runSink binds detection traffic to one run. Requests it publishes are
// dropped once the run is superseded.
type runSink struct {
	o *Orchestrator
	r *run
}

func (s runSink) Deliver(report detection.Report) error { return s.o.Deliver(report) }

func (s runSink) DetectionRequest(req detection.Request) {
	s.o.emit(s.r, func(n notify.Notifier) { n.DetectionRequest(req) })
}

// publish announces a finished portrait and uploads it. A failed upload is
// logged and the run still counts as complete.
func (o *Orchestrator) publish(r *run, rec *models.ArtifactRecord) error {
	dataURL, err := encodeDataURL(rec.OutputPath)
	if err != nil {
		return err
	}
	o.emit(r, func(n notify.Notifier) {
		n.Log("Generate Complete")
		n.GenerateComplete(dataURL)
	})

	if o.deps.Uploader == nil {
		return nil
	}
	url, err := o.deps.Uploader.Upload(r.ctx, rec.OutputPath)
	if err != nil {
		slog.Error("Failed to upload portrait", "run_id", r.id, "path", rec.OutputPath, "error", err)
		return nil
	}
	rec.UploadURL = url
	o.emit(r, func(n notify.Notifier) { n.UploadResult(url) })
	return nil
}

// CaptureSaved stores a captured face image as the subject for the next run
// and starts one. image may be raw JPEG bytes, base64, or a data URL.
func (o *Orchestrator) CaptureSaved(ctx context.Context, image []byte) (string, bool, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return "", false, ErrClosed
	}

	data, err := decodeCapture(image)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(o.opts.TmpDir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create tmp dir: %w", err)
	}
	path := filepath.Join(o.opts.TmpDir, fmt.Sprintf("image-%d.jpg", o.now().UnixMilli()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", false, fmt.Errorf("failed to save capture: %w", err)
	}
	slog.Info("Capture saved", "path", path, "bytes", len(data))

	o.mu.Lock()
	o.state.LastCapturedSubjectPath = path
	o.mu.Unlock()

	return path, o.Start(ctx, Trigger{Source: "capture"}), nil
}

func decodeCapture(image []byte) ([]byte, error) {
	if len(image) >= 2 && image[0] == 0xff && image[1] == 0xd8 {
		return image, nil
	}

	s := strings.TrimSpace(string(image))
	if s == "" {
		return nil, fmt.Errorf("capture is empty")
	}
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("capture data URL is not base64 encoded")
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("capture is empty")
	}
	return data, nil
}

func encodeDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return jpegDataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
