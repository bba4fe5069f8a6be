package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiPrompt = `Detect every person in this image.
Respond with ONLY a JSON array. Each element must be an object of the form
{"label": "person", "box_2d": [ymin, xmin, ymax, xmax]}
with coordinates normalized to 0-1000. Respond with [] if there is no person.`

// NewGeminiGateway returns a gateway asking a Gemini model for person boxes.
func NewGeminiGateway(apiKey, model string) *ModelGateway {
	g := &geminiDetector{APIKey: apiKey, Model: model}
	return &ModelGateway{Concurrency: 2, Detect: g.detect}
}

type geminiDetector struct {
	APIKey string
	Model  string
}

func (g *geminiDetector) detect(ctx context.Context, image []byte, width, height int) ([]RawBox, error) {
	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.Model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.ImageData("jpeg", image), genai.Text(geminiPrompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty content returned from Gemini")
	}
	txt, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response format from Gemini")
	}

	return parseModelBoxes(string(txt), width, height)
}

type modelDetection struct {
	Label string    `json:"label"`
	Box2D []float64 `json:"box_2d"`
}

// parseModelBoxes converts normalized box_2d person detections into view
// space. The detections may be a bare array or wrapped as {"people": [...]}.
func parseModelBoxes(text string, width, height int) ([]RawBox, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var items []modelDetection
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		var wrapped struct {
			People []modelDetection `json:"people"`
		}
		if werr := json.Unmarshal([]byte(text), &wrapped); werr != nil {
			return nil, fmt.Errorf("failed to parse detection response: %w", err)
		}
		items = wrapped.People
	}

	boxes := make([]RawBox, 0, len(items))
	for _, it := range items {
		if it.Label != "" && !strings.EqualFold(it.Label, "person") {
			continue
		}
		if len(it.Box2D) != 4 {
			continue
		}
		ymin, xmin, ymax, xmax := it.Box2D[0], it.Box2D[1], it.Box2D[2], it.Box2D[3]
		if xmax <= xmin || ymax <= ymin {
			continue
		}
		boxes = append(boxes, RawBox{
			X:      xmin / 1000 * float64(width),
			Y:      ymin / 1000 * float64(height),
			Width:  (xmax - xmin) / 1000 * float64(width),
			Height: (ymax - ymin) / 1000 * float64(height),
		})
	}
	return boxes, nil
}
