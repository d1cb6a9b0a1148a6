package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/ytm_dumper/internal/cleanup"
	"github.com/italolelis/ytm_dumper/internal/config"
	"github.com/italolelis/ytm_dumper/internal/exocache"
	"github.com/italolelis/ytm_dumper/internal/extract"
	"github.com/italolelis/ytm_dumper/internal/logctx"
	"github.com/italolelis/ytm_dumper/internal/metadata"
	"github.com/italolelis/ytm_dumper/internal/notifier"
	"github.com/italolelis/ytm_dumper/internal/tagger"
	"github.com/italolelis/ytm_dumper/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const progressInterval = 16 * 1024 * 1024

func run(ctx context.Context, stdout, stderr io.Writer, opts *options) error {
	cfg := opts.cfg

	local := slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})

	logger := slog.New(logctx.NewTraceHandler(local))
	slog.SetDefault(logger)

	ctx = logctx.WithRunID(logctx.WithLogger(ctx, logger), logctx.NewRunID())

	logger.InfoContext(ctx, "ytm_dumper starting", "version", version, "log_level", cfg.LogLevel, "list_only", opts.listOnly)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.MetricsAddr != "" || cfg.OTLPEndpoint != "",
		ServiceName:    "ytm_dumper",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		PushInterval:   cfg.OTLPPushInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.OTLPEndpoint != "" {
		logger = slog.New(logctx.NewTraceHandler(tel.LogHandler(local)))
		slog.SetDefault(logger)

		ctx = logctx.WithLogger(ctx, logger)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		stopServer := startMetricsServer(ctx, cfg, tel)
		defer stopServer()
	}

	// =========================================================================
	// Open Metadata Stores
	reader, err := metadata.Open(ctx, opts.dbDir, tel)
	if err != nil {
		return fmt.Errorf("failed to open metadata stores: %w", err)
	}
	defer reader.Close()

	extractOpts := extract.Options{
		Dest:       cfg.Dest,
		ListOnly:   opts.listOnly,
		Workers:    cfg.Workers,
		ListOutput: stdout,
		Telemetry:  tel,
	}

	if !opts.listOnly {
		// =====================================================================
		// Open Cache
		cache, decryptor, err := openCache(ctx, cfg, opts.key)
		if err != nil {
			return err
		}

		tel.RecordIndexEntries(ctx, cache.Index().Len())

		extractOpts.Resolver = cache
		extractOpts.Decrypter = decryptor
		extractOpts.Tagger = setupTagger(ctx, cfg)

		removed, err := cleanup.RemoveStalePartials(ctx, cfg.Dest, cfg.PartialMaxAge)
		if err != nil {
			logger.Warn("failed to remove stale partial files", "dir", cfg.Dest, "err", err)
		} else if removed > 0 {
			logger.Info("removed stale partial files", "count", removed)
		}
	}

	// =========================================================================
	// Extract
	extractor, err := extract.New(extractOpts)
	if err != nil {
		return err
	}

	summary, runErr := extractor.Run(ctx, reader.Records(ctx, opts.filter))

	if !opts.listOnly {
		fmt.Fprintln(stdout, summary.String())
	}

	notify(ctx, cfg, summary, runErr)

	return runErr
}

func openCache(ctx context.Context, cfg *config.Config, key []byte) (*exocache.Cache, *exocache.Decryptor, error) {
	logger := logctx.LoggerFromContext(ctx)

	// An explicit index may live apart from the span files.
	indexPath, spanDir := cfg.IndexPath, cfg.StreamDir
	if indexPath == "" {
		var err error

		if indexPath, err = exocache.FindIndex(cfg.StreamDir); err != nil {
			return nil, nil, fmt.Errorf("failed to find cache index: %w", err)
		}

		spanDir = ""
	}

	cache, err := exocache.Open(ctx, indexPath, spanDir, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}

	decOpts := []exocache.DecryptorOption{
		exocache.WithProgress(progressInterval, func(k []byte, done, total int64) {
			logger.Debug("decrypt progress",
				"lookup_key", string(k),
				"decrypted", humanize.Bytes(uint64(done)),
				"total", humanize.Bytes(uint64(total)))
		}),
	}

	if cfg.IVPrefix > 0 {
		decOpts = append(decOpts, exocache.WithIVScheme(exocache.PrefixIV{Size: cfg.IVPrefix}))
	}

	decryptor, err := exocache.NewDecryptor(key, decOpts...)
	if err != nil {
		return nil, nil, err
	}

	return cache, decryptor, nil
}

// setupTagger returns nil when tagging is disabled or ffmpeg cannot run.
func setupTagger(ctx context.Context, cfg *config.Config) tagger.Tagger {
	if cfg.NoMetadata {
		return nil
	}

	ff := tagger.NewFFmpeg(cfg.FFmpegPath)
	if err := ff.Available(ctx); err != nil {
		logctx.LoggerFromContext(ctx).Warn("metadata tagging disabled", "err", err)

		return nil
	}

	return ff
}

func notify(ctx context.Context, cfg *config.Config, summary extract.Summary, runErr error) {
	if cfg.DiscordWebhookURL == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	content := "✅ " + summary.String()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		content = "❌ extraction failed: " + runErr.Error() + "\n" + summary.String()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := notifier.NewDiscordNotifier(cfg.DiscordWebhookURL).Notify(ctx, content); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}

// startMetricsServer serves /metrics until the returned function is called.
func startMetricsServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) func() {
	logger := logctx.LoggerFromContext(ctx)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Handle("/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         cfg.MetricsAddr,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "metrics"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
			tel.RecordSystemError(ctx, "metrics_server", "listen")
		}
	}()

	return func() {
		// Give outstanding scrapes a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err := server.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				logger.Error("could not stop server", "err", err)
			}
		}
	}
}
