// Package upload publishes the final portrait so visitors can fetch it from a QR code.
package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
)

// Uploader stores a local image remotely and returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// New builds the uploader selected by cfg.Backend. It returns nil when uploads are disabled.
func New(cfg config.UploadConfig) (Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("IMAGE_UPLOADER_API_URL is required when UPLOAD_BACKEND=http")
		}
		return NewHTTPUploader(cfg.URL, cfg.APIKey), nil
	case "minio":
		return NewMinIOUploader(cfg)
	default:
		return nil, fmt.Errorf("unsupported upload backend: %s", cfg.Backend)
	}
}

// HTTPUploader posts the image as base64 JSON to the kiosk's image service.
type HTTPUploader struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPUploader(url, apiKey string) *HTTPUploader {
	return &HTTPUploader{
		URL:        url,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadRequest struct {
	Image string `json:"image"`
}

type uploadResponse struct {
	UploadPath string `json:"uploadPath"`
}

func (u *HTTPUploader) Upload(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read upload source: %w", err)
	}

	body, err := json.Marshal(uploadRequest{Image: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", u.APIKey)

	resp, err := u.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out uploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if out.UploadPath == "" {
		return "", fmt.Errorf("upload response has no uploadPath")
	}
	return out.UploadPath, nil
}
