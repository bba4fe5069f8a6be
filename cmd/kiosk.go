package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/detection"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/history"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/imageops"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/leonardo"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/notify"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/pipeline"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/prompts"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/segmind"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/storage"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/upload"
)

const recentRuns = 200

// kiosk bundles the orchestrator with the stores the commands read from.
type kiosk struct {
	cfg  config.Config
	orch *pipeline.Orchestrator
	runs *storage.RunStore
}

// newKiosk wires every collaborator from cfg. detector overrides the
// configured detection backend when set.
func newKiosk(cfg config.Config, notifier notify.Notifier, detector detection.Gateway) (*kiosk, error) {
	jobs := leonardo.New(cfg.Leonardo.URL, cfg.Leonardo.APIKey, cfg.TmpDir)
	jobs.PollInterval = cfg.Leonardo.PollInterval
	jobs.PollTimeout = cfg.Leonardo.PollTimeout

	uploader, err := upload.New(cfg.Upload)
	if err != nil {
		return nil, err
	}

	book, err := promptBook(cfg.Prompts)
	if err != nil {
		return nil, err
	}

	if detector == nil {
		detector, err = detectionGateway(cfg.Detection, notifier)
		if err != nil {
			return nil, err
		}
	}

	runs := storage.New(recentRuns)
	dir := history.Dir(cfg.TmpDir)
	past, err := history.Load(dir)
	if err != nil {
		slog.Warn("Unable to load run history", "dir", dir, "error", err)
	}
	for _, rec := range past {
		runs.Set(rec)
	}

	deps := pipeline.Deps{
		Jobs:     jobs,
		Swapper:  segmind.New(cfg.Segmind.URL, cfg.Segmind.APIKey),
		Images:   imageops.New(),
		Detector: detector,
		Notifier: notifier,
		Uploader: uploader,
		Prompts:  book,
		Recorder: &history.Recorder{Store: runs, Dir: dir},
	}

	return &kiosk{
		cfg:  cfg,
		orch: pipeline.New(pipeline.OptionsFromConfig(cfg), deps),
		runs: runs,
	}, nil
}

func promptBook(cfg config.PromptConfig) (*prompts.Book, error) {
	if cfg.File != "" {
		return prompts.Load(cfg.File)
	}
	return prompts.New(cfg.Prompt, cfg.NegativePrompt, cfg.Subjects), nil
}

func detectionGateway(cfg config.DetectionConfig, notifier notify.Notifier) (detection.Gateway, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "notifier":
		return &detection.NotifierGateway{Publisher: notifier}, nil
	case "gemini":
		return detection.NewGeminiGateway(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	case "ollama":
		return detection.NewOllamaGateway(cfg.OllamaURL, cfg.OllamaModel), nil
	case "openai":
		return detection.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unsupported detection backend: %s", cfg.Backend)
	}
}
