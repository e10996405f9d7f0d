package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/evarantes/codexia-app/internal/assembly"
	appcfg "github.com/evarantes/codexia-app/internal/config"
	"github.com/evarantes/codexia-app/internal/jobs"
	"github.com/evarantes/codexia-app/internal/media"
	"github.com/evarantes/codexia-app/internal/planner"
	"github.com/evarantes/codexia-app/internal/providers"
	"github.com/evarantes/codexia-app/internal/providers/edgetts"
	"github.com/evarantes/codexia-app/internal/providers/musicgen"
	"github.com/evarantes/codexia-app/internal/providers/openai"
	"github.com/evarantes/codexia-app/internal/providers/pollinations"
	"github.com/evarantes/codexia-app/internal/publisher"
	"github.com/evarantes/codexia-app/internal/scheduler"
	"github.com/evarantes/codexia-app/internal/server"
	"github.com/evarantes/codexia-app/internal/storage"
)

func main() {
	// Credentials may live in a local .env during development.
	_ = godotenv.Load()

	// Load config first so the log level applies from the start.
	cfg, err := appcfg.Load("")
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.SlogLevel()}))
	slog.SetDefault(logger)

	// Store (SQLite)
	store, err := jobs.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("sqlite open", "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Output layout
	layout, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		logger.Error("init storage layout", "err", err)
		os.Exit(1)
	}

	// Provider chains, priority follows registration order.
	chain := &providers.Chain{Log: logger}
	if cfg.Providers.OpenAI.Enabled {
		oa := openai.New(cfg.Providers.OpenAI)
		chain.Script = append(chain.Script, oa)
		chain.Image = append(chain.Image, oa)
		chain.TTS = append(chain.TTS, oa)
	}
	if cfg.Providers.Pollinations.Enabled {
		chain.Image = append(chain.Image, pollinations.New(cfg.Providers.Pollinations))
	}
	if cfg.Providers.EdgeTTS.Enabled {
		chain.TTS = append(chain.TTS, edgetts.New(cfg.Providers.EdgeTTS))
	}
	if cfg.Providers.MusicGen.Enabled {
		chain.Music = append(chain.Music, musicgen.New(cfg.Providers.MusicGen))
	}
	if len(chain.Script) == 0 {
		logger.Error("no script provider enabled, queued jobs cannot be rendered")
		os.Exit(1)
	}

	// Render toolchain
	tools := media.NewToolchain(logger)
	if err := tools.Available(); err != nil {
		logger.Error("media toolchain unavailable", "err", err)
		os.Exit(1)
	}
	engine := assembly.NewEngine(logger, chain, tools, layout, cfg.Render)

	// Publisher, optional
	var pub publisher.Publisher
	yt := publisher.NewYouTube(logger, cfg.YouTube)
	if yt.Configured() {
		pub = yt
	} else {
		logger.Warn("youtube credentials missing, auto publish disabled")
	}

	// Scheduler
	var checker *scheduler.PublishChecker
	if pub != nil {
		checker = scheduler.NewPublishChecker(logger, store, pub, layout,
			cfg.Scheduler.PublishLateThreshold, cfg.Scheduler.PublishAttemptCap)
	}
	sched := scheduler.New(logger, cfg.Scheduler,
		scheduler.NewQueueProcessor(logger, store, chain, engine),
		checker,
		scheduler.NewRecoverySweep(logger, store, layout))

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := sched.Start(rootCtx); err != nil {
		logger.Error("start scheduler", "err", err)
		os.Exit(1)
	}

	// HTTP server
	svc := &server.Service{
		Log:       logger,
		Cfg:       cfg,
		Store:     store,
		Layout:    layout,
		Planner:   planner.New(logger, store),
		Publisher: pub,
	}
	httpSrv := server.NewHTTPServer(svc)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	sched.Stop()
	logger.Info("server stopped")
}
