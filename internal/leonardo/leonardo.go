// Package leonardo submits image generation jobs to a Leonardo-style REST API,
// polls them until they finish and downloads the generated artifacts.
package leonardo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status of a remote generation job.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

// Artifact is one generated image of a job.
type Artifact struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Job is the remote view of a generation.
type Job struct {
	ID        string
	Status    Status
	Artifacts []Artifact
}

// Handle identifies a submitted job.
type Handle struct {
	ID string
}

// ArtifactSet is the job-scoped local directory holding downloaded artifacts.
type ArtifactSet struct {
	JobID string
	Dir   string
	Files []string
}

// Client talks to the generation API.
type Client struct {
	BaseURL      string
	APIKey       string
	OutputRoot   string
	PollInterval time.Duration
	// PollTimeout bounds PollUntilTerminal when positive.
	PollTimeout time.Duration
	HTTPClient  *http.Client
}

// New returns a Client polling every two seconds with no deadline.
func New(baseURL, apiKey, outputRoot string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		OutputRoot:   outputRoot,
		PollInterval: 2 * time.Second,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type submitResponse struct {
	SDGenerationJob *struct {
		GenerationID string `json:"generationId"`
	} `json:"sdGenerationJob"`
}

type statusResponse struct {
	GenerationsByPK *struct {
		Status          Status     `json:"status"`
		GeneratedImages []Artifact `json:"generated_images"`
	} `json:"generations_by_pk"`
}

// Submit creates a generation job from payload.
func (c *Client) Submit(ctx context.Context, payload map[string]any) (Handle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Handle{}, &SubmissionError{Err: fmt.Errorf("failed to marshal request body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return Handle{}, &SubmissionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Handle{}, &SubmissionError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Handle{}, &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(msg)))}
	}

	var data submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Handle{}, &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response body: %w", err)}
	}
	if data.SDGenerationJob == nil || data.SDGenerationJob.GenerationID == "" {
		return Handle{}, &SubmissionError{StatusCode: resp.StatusCode, Err: errors.New("response has no generation id")}
	}

	slog.Info("Generation submitted", "generation_id", data.SDGenerationJob.GenerationID)
	return Handle{ID: data.SDGenerationJob.GenerationID}, nil
}

// Status fetches the current state of a job once.
func (c *Client) Status(ctx context.Context, h Handle) (Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/generations/"+h.ID, nil)
	if err != nil {
		return Job{}, &PollError{JobID: h.ID, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Job{}, &PollError{JobID: h.ID, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Job{}, &PollError{JobID: h.ID, Err: fmt.Errorf("status API returned status %d", resp.StatusCode)}
	}

	var data statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Job{}, &PollError{JobID: h.ID, Err: fmt.Errorf("failed to decode response body: %w", err)}
	}
	if data.GenerationsByPK == nil {
		return Job{}, &JobNotFoundError{JobID: h.ID}
	}

	status := data.GenerationsByPK.Status
	if status == "" {
		status = StatusComplete
	}
	return Job{ID: h.ID, Status: status, Artifacts: data.GenerationsByPK.GeneratedImages}, nil
}

// PollUntilTerminal waits for the job to leave PENDING, then downloads its
// artifacts into OutputRoot/<job id>. The wait is a timer, so the calling
// goroutine parks between polls. A failed poll ends the wait.
func (c *Client) PollUntilTerminal(ctx context.Context, h Handle) (ArtifactSet, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var deadline <-chan time.Time
	if c.PollTimeout > 0 {
		t := time.NewTimer(c.PollTimeout)
		defer t.Stop()
		deadline = t.C
	}

	attempt := 0
	for {
		attempt++
		job, err := c.Status(ctx, h)
		if err != nil {
			return ArtifactSet{}, err
		}
		slog.Debug("Polled generation", "generation_id", h.ID, "status", job.Status, "attempt", attempt)

		switch job.Status {
		case StatusPending:
		case StatusFailed:
			return ArtifactSet{}, &JobNotFoundError{JobID: h.ID, Status: job.Status}
		default:
			return c.download(ctx, job)
		}

		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return ArtifactSet{}, &PollError{JobID: h.ID, Err: ctx.Err()}
		case <-deadline:
			wait.Stop()
			return ArtifactSet{}, &PollError{JobID: h.ID, Err: ErrPollTimeout}
		case <-wait.C:
		}
	}
}

func (c *Client) download(ctx context.Context, job Job) (ArtifactSet, error) {
	dir := filepath.Join(c.OutputRoot, job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ArtifactSet{}, &PollError{JobID: job.ID, Err: fmt.Errorf("failed to create output folder: %w", err)}
	}

	set := ArtifactSet{JobID: job.ID, Dir: dir, Files: make([]string, len(job.Artifacts))}

	g, gctx := errgroup.WithContext(ctx)
	for i, artifact := range job.Artifacts {
		outputPath := filepath.Join(dir, artifact.ID+".jpg")
		set.Files[i] = outputPath
		g.Go(func() error {
			if err := c.saveImage(gctx, artifact.URL, outputPath); err != nil {
				return &PollError{JobID: job.ID, Err: err}
			}
			slog.Info("Image saved", "generation_id", job.ID, "path", outputPath)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ArtifactSet{}, err
	}
	return set, nil
}

// saveImage downloads url to path.
func (c *Client) saveImage(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return file.Close()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}
