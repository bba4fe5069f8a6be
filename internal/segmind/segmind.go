// Package segmind calls a synchronous face-swap endpoint that returns the
// swapped image as the response body.
package segmind

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SwapError is a non-success response from the provider.
type SwapError struct {
	ProviderCode int
	Body         string
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("face swap returned status %d: %s", e.ProviderCode, e.Body)
}

// IOError wraps failures reading the inputs or writing the output.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("face swap file %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Client performs face swaps; one attempt per call.
type Client struct {
	URL         string
	APIKey      string
	FaceRestore bool
	HTTPClient  *http.Client
}

// New returns a Client with face restoration enabled.
func New(url, apiKey string) *Client {
	return &Client{
		URL:         url,
		APIKey:      apiKey,
		FaceRestore: true,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Swap puts the face from inputFace onto the face in targetFace and writes
// the result to outputPath.
func (c *Client) Swap(ctx context.Context, inputFace, targetFace, outputPath string) (string, error) {
	input, err := encodeFile(inputFace)
	if err != nil {
		return "", err
	}
	target, err := encodeFile(targetFace)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"input_face_image":  input,
		"target_face_image": target,
		"file_type":         "jpg",
		"face_restore":      c.FaceRestore,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SwapError{ProviderCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", &IOError{Path: outputPath, Err: err}
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return "", &IOError{Path: outputPath, Err: err}
	}
	n, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		return "", &IOError{Path: outputPath, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &IOError{Path: outputPath, Err: err}
	}

	slog.Info("Face swap complete", "output", outputPath, "bytes", n)
	return outputPath, nil
}

func encodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
