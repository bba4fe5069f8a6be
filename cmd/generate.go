package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/notify"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/pipeline"
	"github.com/spf13/cobra"
)

func newGenerateCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "generate [face.jpg]",
		Short: "Run one generation from the command line",
		Long: `Runs a single generation without the kiosk display.

Subject detection runs in-process, so no presentation layer is needed. The
configured backend is used when it is gemini, ollama or openai; otherwise Gemini
(GEMINI_API_KEY) is used. Without a face argument the configured default face
is used.`,
		Example: `  # Generate a portrait for a saved photo
  portraitkiosk generate visitor.jpg

  # Give up after five minutes
  portraitkiosk generate visitor.jpg --timeout 5m`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			trigger := pipeline.Trigger{Source: "cli"}
			if len(args) == 1 {
				if _, err := os.Stat(args[0]); err != nil {
					return fmt.Errorf("failed to read face image: %w", err)
				}
				trigger.FacePath = args[0]
			}

			progress := notify.NewProgress(os.Stderr)
			notifier := notify.Multi{progress, notify.Slog{}}
			switch strings.ToLower(cfg.Detection.Backend) {
			case "gemini", "ollama", "openai":
			default:
				cfg.Detection.Backend = "gemini"
			}
			gateway, err := detectionGateway(cfg.Detection, notifier)
			if err != nil {
				return err
			}
			k, err := newKiosk(cfg, notifier, gateway)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if !k.orch.Start(ctx, trigger) {
				return fmt.Errorf("generation did not start")
			}
			waitErr := k.orch.Wait(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := k.orch.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to stop pipeline: %w", err)
			}
			progress.Finish()

			if waitErr != nil {
				return fmt.Errorf("generation interrupted: %w", waitErr)
			}
			return reportLastRun(cmd, k.runs.GetAll())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 waits indefinitely)")

	return cmd
}

func reportLastRun(cmd *cobra.Command, runs []models.RunRecord) error {
	if len(runs) == 0 {
		return fmt.Errorf("no run was recorded")
	}
	last := runs[0]
	if last.Outcome != models.OutcomeComplete {
		return fmt.Errorf("generation %s: %s", last.Outcome, last.Error)
	}
	for _, a := range last.Artifacts {
		fmt.Fprintln(cmd.OutOrStdout(), a.OutputPath)
		if a.UploadURL != "" {
			fmt.Fprintln(cmd.OutOrStdout(), a.UploadURL)
		}
	}
	return nil
}
