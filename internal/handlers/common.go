package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/pipeline"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/storage"
)

// maxCaptureBytes caps uploaded captures at 10MB
const maxCaptureBytes = 10 * 1024 * 1024

// Kiosk is the part of the orchestrator the API drives.
type Kiosk interface {
	Start(ctx context.Context, trigger pipeline.Trigger) bool
	Retry(ctx context.Context) bool
	CaptureSaved(ctx context.Context, image []byte) (string, bool, error)
	Deliver(report detection.Report) error
	State() pipeline.RunState
}

type Handler struct {
	kiosk  Kiosk
	runs   *storage.RunStore
	tmpDir string
}

func New(kiosk Kiosk, runs *storage.RunStore, tmpDir string) *Handler {
	return &Handler{
		kiosk:  kiosk,
		runs:   runs,
		tmpDir: tmpDir,
	}
}

// Routes wires every endpoint. events serves the notification stream.
func (h *Handler) Routes(events http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/start", h.HandleStart)
	mux.HandleFunc("/api/retry", h.HandleRetry)
	mux.HandleFunc("/api/capture", h.HandleCapture)
	mux.HandleFunc("/api/detection", h.HandleDetection)
	mux.HandleFunc("/api/state", h.HandleState)
	mux.HandleFunc("/api/runs", h.HandleRuns)
	mux.HandleFunc("/api/runs/", h.HandleRunDetail)
	mux.HandleFunc("/files/", h.HandleFiles)
	if events != nil {
		mux.Handle("/api/events", events)
	}
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Run helpers
func (h *Handler) getRunOrError(w http.ResponseWriter, runID string) (models.RunRecord, bool) {
	run, exists := h.runs.Get(runID)
	if !exists {
		h.writeError(w, "Run not found", http.StatusNotFound)
		return run, false
	}
	return run, true
}

type triggerResponse struct {
	Started bool              `json:"started"`
	State   pipeline.RunState `json:"state"`
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	started := h.kiosk.Start(r.Context(), pipeline.Trigger{Source: "api"})
	code := http.StatusAccepted
	if !started {
		code = http.StatusConflict
	}
	h.writeJSONStatus(w, code, triggerResponse{Started: started, State: h.kiosk.State()})
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.kiosk.Retry(r.Context()) {
		h.writeError(w, "Kiosk is shutting down", http.StatusServiceUnavailable)
		return
	}
	h.writeJSONStatus(w, http.StatusAccepted, triggerResponse{Started: true, State: h.kiosk.State()})
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, h.kiosk.State())
}
