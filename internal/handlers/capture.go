package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/pipeline"
)

type captureResponse struct {
	Path    string `json:"path"`
	Started bool   `json:"started"`
}

// HandleCapture accepts the visitor's photo as JSON ({"image": dataURL}),
// a multipart form file, or a raw image/jpeg body.
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		data []byte
		err  error
	)
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		data, err = readJSONCapture(r)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		data, err = readFormCapture(r)
	default:
		data, err = io.ReadAll(io.LimitReader(r.Body, maxCaptureBytes+1))
	}
	if err != nil {
		h.writeError(w, "Failed to read capture: "+err.Error(), http.StatusBadRequest)
		return
	}

	if len(data) > maxCaptureBytes {
		h.writeError(w, "File too large (max 10MB)", http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		h.writeError(w, "image is required", http.StatusBadRequest)
		return
	}

	path, started, err := h.kiosk.CaptureSaved(r.Context(), data)
	if errors.Is(err, pipeline.ErrClosed) {
		h.writeError(w, "Kiosk is shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to save capture: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSONStatus(w, http.StatusAccepted, captureResponse{Path: path, Started: started})
}

func readJSONCapture(r *http.Request) ([]byte, error) {
	var request struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 2*maxCaptureBytes)).Decode(&request); err != nil {
		return nil, err
	}
	return []byte(request.Image), nil
}

func readFormCapture(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		file, _, err = r.FormFile("file")
		if err != nil {
			return nil, err
		}
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxCaptureBytes+1))
}
