// Package pipeline runs one portrait generation at a time: submit, poll,
// slice, detect, swap, composite and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/leonardo"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/notify"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/upload"
)

// JobClient submits generation jobs and waits for their artifacts.
type JobClient interface {
	Submit(ctx context.Context, payload map[string]any) (leonardo.Handle, error)
	PollUntilTerminal(ctx context.Context, h leonardo.Handle) (leonardo.ArtifactSet, error)
}

// Swapper puts inputFace onto the face in targetFace.
type Swapper interface {
	Swap(ctx context.Context, inputFace, targetFace, outputPath string) (string, error)
}

// ImageOps is the local image toolkit.
type ImageOps interface {
	Dimensions(path string) (int, int, error)
	Crop(ctx context.Context, src, dest string, top, left, width, height int) error
	Composite(ctx context.Context, src, overlay, dest string, offsetX, offsetY, width, height int) error
}

// PromptSource supplies the prompt fields of each submission.
type PromptSource interface {
	Next() map[string]any
}

// Recorder receives a record for every run that ends.
type Recorder interface {
	Record(models.RunRecord)
}

// Deps are the collaborators of an Orchestrator. Uploader, Prompts and
// Recorder are optional. Notifier and Recorder are called with the
// orchestrator locked and must not call back into it.
type Deps struct {
	Jobs     JobClient
	Swapper  Swapper
	Images   ImageOps
	Detector detection.Gateway
	Notifier notify.Notifier
	Uploader upload.Uploader
	Prompts  PromptSource
	Recorder Recorder
}

// Options tune a run.
type Options struct {
	TmpDir          string
	DefaultFacePath string
	Margin          float64
	// DetectionTimeout bounds the wait for detection reports when positive.
	DetectionTimeout time.Duration
	// MaxAutoRetries caps consecutive automatic restarts after a run finds no
	// subject. Zero retries forever.
	MaxAutoRetries int
	SwapTarget     string
	Generation     map[string]any
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		TmpDir:           cfg.TmpDir,
		DefaultFacePath:  cfg.DefaultFacePath,
		Margin:           cfg.Detection.Margin,
		DetectionTimeout: cfg.Detection.Timeout,
		MaxAutoRetries:   cfg.MaxAutoRetries,
		SwapTarget:       cfg.SwapTarget,
		Generation:       cfg.Generation,
	}
}

// Orchestrator owns the RunState and guarantees at most one active run.
// All methods are safe for concurrent use.
type Orchestrator struct {
	opts Options
	deps Deps
	now  func() time.Time

	mu      sync.Mutex
	state   RunState
	current *run
	retries int
	idle    chan struct{}
	closed  bool

	wg sync.WaitGroup
}

type run struct {
	id         string
	generation uint64
	trigger    Trigger
	face       string
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex
	waiters map[string]chan detection.Report
	record  models.RunRecord
}

func New(opts Options, deps Deps) *Orchestrator {
	if opts.SwapTarget == "" {
		opts.SwapTarget = config.SwapTargetCrop
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Slog{}
	}
	idle := make(chan struct{})
	close(idle)
	return &Orchestrator{
		opts: opts,
		deps: deps,
		now:  time.Now,
		idle: idle,
	}
}

// State returns a snapshot of the run state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start begins a run unless one is already active. It reports whether the
// trigger was accepted. The run outlives ctx's cancellation but keeps its values.
func (o *Orchestrator) Start(ctx context.Context, trigger Trigger) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		slog.Warn("Ignoring trigger after shutdown", "source", trigger.Source)
		return false
	}
	if o.state.Busy {
		slog.Info("Generation already running, ignoring trigger", "source", trigger.Source, "run_id", o.state.RunID)
		return false
	}
	o.retries = 0
	o.launchLocked(context.WithoutCancel(ctx), trigger)
	return true
}

// Retry abandons any active run and starts a fresh one.
func (o *Orchestrator) Retry(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	if o.current != nil {
		slog.Info("Abandoning run for retry", "run_id", o.current.id, "generation", o.current.generation)
		o.current.cancel()
	}
	o.deps.Notifier.Log("Retry Generating...")
	o.retries = 0
	o.launchLocked(context.WithoutCancel(ctx), Trigger{Source: "retry"})
	return true
}

// Wait blocks until no run is active or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels the active run, refuses new ones and waits for run
// goroutines to return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	if o.current != nil {
		o.current.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launchLocked starts a new generation. Callers hold o.mu.
func (o *Orchestrator) launchLocked(parent context.Context, trigger Trigger) {
	if !o.state.Busy {
		o.state.Busy = true
		o.idle = make(chan struct{})
	}
	o.state.Generation++

	face := trigger.FacePath
	if face == "" {
		face = o.state.LastCapturedSubjectPath
	}
	if face == "" {
		face = o.opts.DefaultFacePath
	}

	ctx, cancel := context.WithCancel(parent)
	r := &run{
		id:         uuid.New().String(),
		generation: o.state.Generation,
		trigger:    trigger,
		face:       face,
		parent:     parent,
		ctx:        ctx,
		cancel:     cancel,
		waiters:    make(map[string]chan detection.Report),
	}
	r.record = models.RunRecord{
		ID:         r.id,
		Generation: r.generation,
		Trigger:    trigger.Source,
		FacePath:   face,
		StartedAt:  o.now(),
	}

	o.current = r
	o.state.RunID = r.id
	o.state.Stage = Submitting

	slog.Info("Run started", "run_id", r.id, "generation", r.generation, "source", trigger.Source, "face", face)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.execute(r)
		o.finish(r, err)
	}()
}

// enter moves the current run to s. It fails once r has been superseded.
func (o *Orchestrator) enter(r *run, s State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.generation != o.state.Generation {
		return errSuperseded
	}
	o.state.Stage = s
	slog.Info("Run stage", "run_id", r.id, "generation", r.generation, "state", s)
	return nil
}

// emit calls fn with the notifier unless r has been superseded.
func (o *Orchestrator) emit(r *run, fn func(notify.Notifier)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r.generation != o.state.Generation {
		slog.Debug("Dropping notification from stale run", "run_id", r.id, "generation", r.generation)
		return
	}
	fn(o.deps.Notifier)
}

func (o *Orchestrator) log(r *run, message string) {
	o.emit(r, func(n notify.Notifier) { n.Log(message) })
}

func (o *Orchestrator) finish(r *run, err error) {
	r.cancel()

	o.mu.Lock()
	defer o.mu.Unlock()

	r.mu.Lock()
	rec := r.record
	r.mu.Unlock()
	rec.FinishedAt = o.now()

	if r.generation != o.state.Generation {
		slog.Info("Dropping result of superseded run", "run_id", r.id, "generation", r.generation, "error", err)
		rec.Outcome = models.OutcomeSuperseded
		if err != nil {
			rec.Error = err.Error()
		}
		o.record(rec)
		return
	}

	o.current = nil

	if err == nil {
		slog.Info("Run complete", "run_id", r.id, "generation", r.generation, "duration", rec.FinishedAt.Sub(rec.StartedAt))
		rec.Outcome = models.OutcomeComplete
		o.record(rec)
		o.retries = 0
		o.idleLocked()
		return
	}

	o.state.Stage = ErrorReset
	soft := errors.Is(err, detection.ErrNoSubject)
	slog.Error("Run failed", "run_id", r.id, "generation", r.generation, "state", ErrorReset, "soft", soft, "error", err)

	rec.Outcome = models.OutcomeFailed
	if soft {
		rec.Outcome = models.OutcomeNoSubject
	}
	rec.Error = err.Error()
	o.record(rec)

	o.deps.Notifier.GenerateComplete("")

	if soft && !o.closed && (o.opts.MaxAutoRetries == 0 || o.retries < o.opts.MaxAutoRetries) {
		o.retries++
		slog.Info("No subject found, generating again", "attempt", o.retries, "max", o.opts.MaxAutoRetries)
		o.launchLocked(r.parent, r.trigger)
		return
	}
	o.idleLocked()
}

func (o *Orchestrator) idleLocked() {
	o.state.Stage = Idle
	o.state.RunID = ""
	if o.state.Busy {
		o.state.Busy = false
		close(o.idle)
	}
}

func (o *Orchestrator) record(rec models.RunRecord) {
	if o.deps.Recorder != nil {
		o.deps.Recorder.Record(rec)
	}
}

// Deliver routes a detection report to the artifact waiting for it. A
// report without an image path goes to the run's only waiting artifact.
func (o *Orchestrator) Deliver(report detection.Report) error {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()

	if r == nil || (report.RunID != "" && report.RunID != r.id) {
		slog.Debug("Dropping detection report", "run_id", report.RunID, "image", report.ImagePath)
		return ErrUnknownRun
	}

	r.mu.Lock()
	ch, ok := r.waiters[report.ImagePath]
	if !ok && report.ImagePath == "" && len(r.waiters) == 1 {
		for _, only := range r.waiters {
			ch, ok = only, true
		}
	}
	r.mu.Unlock()
	if !ok {
		slog.Debug("No artifact waiting for report", "run_id", r.id, "image", report.ImagePath)
		return ErrUnknownRun
	}

	select {
	case ch <- report:
		return nil
	default:
		return fmt.Errorf("report queue full for %s", report.ImagePath)
	}
}

func (r *run) addWaiter(imagePath string) chan detection.Report {
	ch := make(chan detection.Report, detection.NumQuadrants*2)
	r.mu.Lock()
	r.waiters[imagePath] = ch
	r.mu.Unlock()
	return ch
}

func (r *run) removeWaiter(imagePath string) {
	r.mu.Lock()
	delete(r.waiters, imagePath)
	r.mu.Unlock()
}
