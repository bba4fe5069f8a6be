package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/handlers"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/notify"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/watch"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		port     string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk API and event stream",
		Long: `Starts the kiosk HTTP API on the specified port.

The presentation layer triggers runs through /api/start, /api/retry and
/api/capture, answers detection requests through /api/detection and follows
progress on the /api/events websocket. Photos dropped into --watch-dir are
treated as captures.`,
		Example: `  # Start server on default port 8888
  portraitkiosk serve

  # Start server on a custom port and watch a camera's output folder
  portraitkiosk serve --port 3000 --watch-dir ~/Pictures/kiosk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := checkWatchDir(watchDir, cfg.TmpDir); err != nil {
				return err
			}

			hub := notify.NewHub()
			k, err := newKiosk(cfg, notify.Multi{hub, notify.Slog{}}, nil)
			if err != nil {
				return err
			}

			handler := handlers.New(k.orch, k.runs, cfg.TmpDir)
			mux := handler.Routes(hub)

			if watchDir != "" {
				watcher, err := watch.New(watchDir, k.orch)
				if err != nil {
					return err
				}
				if err := watcher.Start(cmd.Context()); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			addr := ":" + port
			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Kiosk API available", "addr", addr, "url", "http://localhost"+addr, "detection", cfg.Detection.Backend)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				if err := k.orch.Shutdown(shutdownCtx); err != nil {
					slog.Error("Pipeline shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "Directory whose new JPEG files trigger a run")

	return cmd
}

// checkWatchDir rejects watching tmpDir, where every saved capture would
// trigger another run.
func checkWatchDir(watchDir, tmpDir string) error {
	if watchDir == "" {
		return nil
	}
	w, err := filepath.Abs(watchDir)
	if err != nil {
		return fmt.Errorf("failed to resolve watch dir: %w", err)
	}
	t, err := filepath.Abs(tmpDir)
	if err != nil {
		return fmt.Errorf("failed to resolve tmp dir: %w", err)
	}
	if w == t {
		return fmt.Errorf("watch dir %s must differ from tmp_dir, saved captures are written there", watchDir)
	}
	return nil
}
