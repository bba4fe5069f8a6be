package detection

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
)

const personPrompt = `Detect every person in this image.
Respond with ONLY a JSON object of the form
{"people": [{"label": "person", "box_2d": [ymin, xmin, ymax, xmax]}]}
with coordinates normalized to 0-1000. Use {"people": []} if there is no person.`

// NewOllamaGateway returns a gateway asking a local Ollama vision model for
// person boxes. An empty url falls back to OLLAMA_URL, then localhost.
func NewOllamaGateway(url, model string) *ModelGateway {
	o := &ollamaDetector{URL: url, Model: model, HTTPClient: &http.Client{}}
	return &ModelGateway{Concurrency: 1, Detect: o.detect}
}

type ollamaDetector struct {
	URL        string
	Model      string
	HTTPClient *http.Client
}

func (o *ollamaDetector) detect(ctx context.Context, image []byte, width, height int) ([]RawBox, error) {
	ollamaURL := o.URL
	if ollamaURL == "" {
		ollamaURL = os.Getenv("OLLAMA_URL")
	}
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	url := strings.TrimRight(ollamaURL, "/") + "/api/generate"

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  o.Model,
		"prompt": personPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"format": "json",
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	return parseModelBoxes(response.Response, width, height)
}
