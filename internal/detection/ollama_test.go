package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model  string   `json:"model"`
			Images []string `json:"images"`
			Format string   `json:"format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Bad request: %v", err)
		}
		if body.Model != "llava" || len(body.Images) != 1 || body.Format != "json" {
			t.Errorf("Unexpected request %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": `{"people":[{"label":"person","box_2d":[0,0,500,250]}]}`,
		})
	}))
	defer srv.Close()

	o := &ollamaDetector{URL: srv.URL, Model: "llava", HTTPClient: srv.Client()}
	boxes, err := o.detect(context.Background(), []byte("jpeg"), 800, 400)
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(boxes) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(boxes))
	}
	want := RawBox{X: 0, Y: 0, Width: 200, Height: 200}
	if boxes[0] != want {
		t.Errorf("Expected %+v, got %+v", want, boxes[0])
	}
}

func TestOllamaDetectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := &ollamaDetector{URL: srv.URL, Model: "missing", HTTPClient: srv.Client()}
	if _, err := o.detect(context.Background(), []byte("jpeg"), 10, 10); err == nil {
		t.Error("Expected error for non-200 response")
	}
}

func TestNewOllamaGateway(t *testing.T) {
	gw := NewOllamaGateway("", "llava")
	if gw.Detect == nil || gw.Concurrency != 1 {
		t.Errorf("Unexpected gateway %+v", gw)
	}
}
