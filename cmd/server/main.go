package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	apihttp "mediajukebox/internal/api/http"
	"mediajukebox/internal/app"
	"mediajukebox/internal/metrics"
	"mediajukebox/internal/repository/bolt"
	"mediajukebox/internal/services/broadcast"
	"mediajukebox/internal/services/fetch"
	"mediajukebox/internal/services/moderate"
	"mediajukebox/internal/telemetry"
	"mediajukebox/internal/usecase"
	"mediajukebox/internal/worker"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mediajukebox")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("mediaDir", cfg.MediaDir),
		slog.String("databasePath", cfg.DatabasePath),
		slog.Int("maxDurationSeconds", cfg.MaxDurationSeconds),
		slog.Int("maxFileSizeMB", cfg.MaxFileSizeMB),
	)

	if strings.TrimSpace(cfg.RTMPURL) == "" {
		logger.Error("no RTMP URL configured; set RTMP_URL or STREAM_KEY")
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := bolt.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("queue database open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	// Items left mid-pipeline by a crash are failed before the first dequeue.
	if repaired, err := repo.RepairInterrupted(); err != nil {
		logger.Error("startup repair failed", slog.String("error", err.Error()))
		os.Exit(1)
	} else if repaired > 0 {
		logger.Warn("repaired interrupted items", slog.Int("count", repaired))
	}

	fetcher, err := fetch.New(fetch.Config{
		Binary:             cfg.YTDLPPath,
		MediaDir:           cfg.MediaDir,
		MaxDurationSeconds: cfg.MaxDurationSeconds,
		MaxFileSizeMB:      cfg.MaxFileSizeMB,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("fetcher init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	scorer := moderate.NewProcessScorer(cfg.ScorerPath, logger)
	defer scorer.Close()
	moderator := moderate.New(moderate.Config{
		Scorer:         scorer,
		Sampler:        moderate.NewFrameSampler(cfg.FFmpegPath, 0, 0),
		Threshold:      cfg.ModerationThreshold,
		ModelPath:      cfg.ScorerModelPath,
		ThresholdsPath: cfg.ScorerThresholds,
		FallbackScript: cfg.ContentFilterScript,
		Logger:         logger,
	})
	if cfg.ScorerPath != "" {
		// Warm the model so the first submission doesn't stall on load.
		if err := moderator.EnsureLoaded(rootCtx); err != nil {
			if cfg.ContentFilterScript == "" {
				logger.Error("scorer load failed and no fallback filter configured",
					slog.String("error", err.Error()))
				os.Exit(1)
			}
			logger.Warn("scorer load failed, relying on fallback filter",
				slog.String("error", err.Error()))
		}
	} else if cfg.ContentFilterScript == "" {
		logger.Warn("no scorer or content filter configured; submissions will not be moderated")
	}

	broadcaster, err := broadcast.New(broadcast.Config{
		FFmpegPath:   cfg.FFmpegPath,
		RTMPURL:      cfg.RTMPURL,
		VideoBitrate: cfg.StreamBitrateVideo,
		AudioBitrate: cfg.StreamBitrateAudio,
		Preset:       cfg.StreamPreset,
		IdleImage:    cfg.IdleImage,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("broadcaster init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	streamWorker := worker.New(worker.Config{
		Store:       repo,
		Fetcher:     fetcher,
		Moderator:   moderator,
		Broadcaster: broadcaster,
		IdleTime:    time.Duration(cfg.IdleSeconds) * time.Second,
		Logger:      logger,
	})

	submit := usecase.NewSubmit(repo, time.Now)
	server := apihttp.NewServer(submit,
		apihttp.WithQueueView(usecase.QueueView{Store: repo}),
		apihttp.WithNowPlaying(usecase.NowPlaying{Store: repo}),
		apihttp.WithSkip(usecase.Skip{Worker: streamWorker}),
		apihttp.WithClear(usecase.Clear{Store: repo}),
		apihttp.WithLogger(logger),
	)
	defer server.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(rootCtx)

	group.Go(func() error {
		return streamWorker.Run(groupCtx)
	})

	group.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		logger.Info("server started", slog.String("addr", cfg.HTTPAddr))
		select {
		case <-groupCtx.Done():
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		publishQueueState(groupCtx, repo, server, logger)
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// publishQueueState periodically refreshes the queue-length gauge and pushes
// now-playing updates to websocket listeners.
func publishQueueState(ctx context.Context, repo *bolt.Repository, server *apihttp.Server, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pending, err := repo.GetQueue(0); err == nil {
				metrics.QueueLength.Set(float64(len(pending)))
			}
			item, ok, err := repo.GetNowPlaying()
			if err != nil {
				logger.Debug("now playing read failed", slog.String("error", err.Error()))
				continue
			}
			server.PublishNowPlaying(item.Title, item.SubmittedBy, ok)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
