package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/pipeline"
)

// detectionResult is either one quadrant report or a batch of them.
type detectionResult struct {
	RunID     string             `json:"run_id"`
	ImagePath string             `json:"image_path"`
	Quadrant  *int               `json:"quadrant"`
	Boxes     []detection.RawBox `json:"boxes"`
	Error     string             `json:"error"`
	Quadrants []quadrantResult   `json:"quadrants"`
}

type quadrantResult struct {
	Index int                `json:"index"`
	Boxes []detection.RawBox `json:"boxes"`
	Error string             `json:"error"`
}

func (d detectionResult) reports() []detection.Report {
	if len(d.Quadrants) == 0 {
		return []detection.Report{{
			RunID:     d.RunID,
			ImagePath: d.ImagePath,
			Quadrant:  *d.Quadrant,
			Boxes:     d.Boxes,
			Error:     d.Error,
		}}
	}
	reports := make([]detection.Report, 0, len(d.Quadrants))
	for _, q := range d.Quadrants {
		reports = append(reports, detection.Report{
			RunID:     d.RunID,
			ImagePath: d.ImagePath,
			Quadrant:  q.Index,
			Boxes:     q.Boxes,
			Error:     q.Error,
		})
	}
	return reports
}

// HandleDetection receives the external detector's boxes for a quadrant.
func (h *Handler) HandleDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var result detectionResult
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&result); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(result.Quadrants) == 0 && result.Quadrant == nil {
		h.writeError(w, "quadrant or quadrants is required", http.StatusBadRequest)
		return
	}

	reports := result.reports()
	for _, report := range reports {
		if report.Quadrant < 0 || report.Quadrant >= detection.NumQuadrants {
			h.writeError(w, "quadrant index out of range", http.StatusBadRequest)
			return
		}
	}

	accepted := 0
	for _, report := range reports {
		if err := h.kiosk.Deliver(report); err != nil {
			code := http.StatusServiceUnavailable
			message := "Failed to deliver report: " + err.Error()
			if errors.Is(err, pipeline.ErrUnknownRun) {
				code = http.StatusGone
				message = "No run is waiting for this report"
			}
			slog.Error(message, "run_id", report.RunID, "quadrant", report.Quadrant, "accepted", accepted)
			h.writeJSONStatus(w, code, map[string]any{"error": message, "accepted": accepted})
			return
		}
		accepted++
	}

	h.writeJSON(w, map[string]any{"accepted": accepted})
}
