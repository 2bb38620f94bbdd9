package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/demograb/demograb/internal/acquire"
	"github.com/demograb/demograb/internal/browser"
	"github.com/demograb/demograb/internal/cleanup"
	"github.com/demograb/demograb/internal/config"
	"github.com/demograb/demograb/internal/http/rest"
	"github.com/demograb/demograb/internal/logctx"
	"github.com/demograb/demograb/internal/notifier"
	"github.com/demograb/demograb/internal/solver"
	"github.com/demograb/demograb/internal/storage/memory"
	"github.com/demograb/demograb/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("demograb starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg, os.Args[1:]); err != nil && err != context.Canceled {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, urls []string) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Prepare Download Directory
	if err := cfg.EnsureDownloadDir(); err != nil {
		return err
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: "demograb",
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	// =========================================================================
	// Start Acquisition Pipeline
	solverClient := solver.NewClient(cfg.SolverURL(), cfg.SolverMaxWait, cfg.ProxyURL, cfg.RetryCount, cfg.RetryDelay)

	acquirer := acquire.New(acquire.Options{
		DownloadDir:     cfg.DownloadDir,
		SessionVariant:  cfg.SessionVariant,
		PageLoadTimeout: cfg.PageLoadTimeout,
		SettleDelay:     cfg.SettleDelay,
		DownloadTimeout: cfg.DownloadTimeout,
		PollInterval:    cfg.PollInterval,
	}, solverClient, browser.OpenRod, tel)

	repo := memory.NewAcquisitionRepository()

	runner := acquire.NewRunner(acquirer, repo, 64)
	runner.Start(ctx, cfg.MaxParallel)

	// =========================================================================
	// Start Notification
	setupNotificationForRunner(ctx, runner, cfg)

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, repo, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, runner, repo, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for acquisitions...",
		"download_dir", cfg.DownloadDir,
		"session_variant", cfg.SessionVariant,
		"solver", cfg.SolverURL(),
		"download_timeout", cfg.DownloadTimeout.String(),
	)

	// =========================================================================
	// Acquire URLs given on the command line
	cliErrors := make(chan error, 1)

	if len(urls) > 0 {
		go func() {
			cliErrors <- submitAll(ctx, runner, urls)
		}()
	}

	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case err := <-cliErrors:
			if err != nil {
				return fmt.Errorf("failed to queue urls: %w", err)
			}
		case <-ctx.Done():
			logger.Info("start shutdown")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return ctx.Err()
		}
	}
}

func submitAll(ctx context.Context, runner *acquire.Runner, urls []string) error {
	wg, _ := errgroup.WithContext(ctx)

	for _, url := range urls {
		wg.Go(func() error {
			if _, err := runner.Submit(url); err != nil {
				return fmt.Errorf("failed to queue %s: %w", url, err)
			}

			return nil
		})
	}

	return wg.Wait()
}

func setupNotificationForRunner(ctx context.Context, runner *acquire.Runner, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	go func() {
		for outcome := range runner.OnAcquisitionFinished {
			logger.Info("acquisition finished", "url", outcome.URL, "file", outcome.FilePath)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(ctx, "✅ Download finished: "+outcome.FilePath); notifyErr != nil {
				logger.Error("failed to send notification", "err", notifyErr)
			}
		}
	}()

	go func() {
		for job := range runner.OnAcquisitionFailed {
			logger.Error("acquisition failed", "job_id", job.ID, "url", job.URL)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(ctx, "❌ Download failed: "+job.URL); notifyErr != nil {
				logger.Error("failed to send notification", "job_id", job.ID, "err", notifyErr)
			}
		}
	}()
}

// setupServer prepares the handlers and middleware for the http rest server.
func setupServer(ctx context.Context, runner *acquire.Runner, repo *memory.AcquisitionRepository, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewAcquisitionHandler(runner, repo)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(tel.Metrics)
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "demograb.api"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, repo *memory.AcquisitionRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.CleanupInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				tracked, err := repo.GetAcquisitions()
				if err != nil {
					logger.Error("failed to get tracked acquisitions for cleanup", "err", err)

					continue
				}

				if err := cleanup.DeleteExpiredArtifacts(ctx, tracked, cfg.KeepDownloadedFor); err != nil {
					logger.Error("failed to delete expired artifacts", "err", err)
				}
			}
		}
	}()
}
