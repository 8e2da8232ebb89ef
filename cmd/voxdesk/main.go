// Command voxdesk is the voice call server: it answers carrier media streams,
// runs the receptionist conversation loop, and serves the operational HTTP
// surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxdesk-ai/voxdesk/internal/app"
	bookingpg "github.com/voxdesk-ai/voxdesk/internal/booking/postgres"
	"github.com/voxdesk-ai/voxdesk/internal/config"
	"github.com/voxdesk-ai/voxdesk/internal/observe"
	"github.com/voxdesk-ai/voxdesk/internal/tenant"
	tenantpg "github.com/voxdesk-ai/voxdesk/internal/tenant/postgres"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm/anyllm"
	"github.com/voxdesk-ai/voxdesk/pkg/provider/llm/openai"
	dgstt "github.com/voxdesk-ai/voxdesk/pkg/provider/stt/deepgram"
	dgtts "github.com/voxdesk-ai/voxdesk/pkg/provider/tts/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxdesk: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxdesk starting",
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Tenant store and sinks ────────────────────────────────────────────────
	store, sinks, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open tenant store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	server, err := app.New(cfg, store, providers, sinks, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		slog.Error("listen error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, draining calls…",
		"active", server.Registry().Active(),
		"window", cfg.Server.DrainWindow.Std(),
	)

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.DrainWindow.Std())
	defer cancel()
	server.Registry().Drain(drainCtx)

	if err := httpServer.Shutdown(drainCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Store wiring ──────────────────────────────────────────────────────────────

// buildStore opens the PostgreSQL tenant store and its side-effect sinks, or
// an in-memory store with no sinks when no DSN is configured.
func buildStore(ctx context.Context, cfg *config.Config) (tenant.Store, app.Sinks, func(), error) {
	if cfg.Tenant.PostgresDSN == "" {
		slog.Warn("running on the in-memory tenant store; bookings and call logs will not be persisted")
		return tenant.NewMemStore(), app.Sinks{}, func() {}, nil
	}

	store, err := tenantpg.NewStore(ctx, cfg.Tenant.PostgresDSN)
	if err != nil {
		return nil, app.Sinks{}, nil, err
	}

	sideEffects := bookingpg.NewSinks(store.Pool())
	sinks := app.Sinks{
		Bookings: sideEffects,
		SMS:      sideEffects,
		CallLog:  sideEffects,
	}
	slog.Info("tenant store connected")
	return store, sinks, store.Close, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildProviders(cfg *config.Config) (app.Providers, error) {
	var ps app.Providers

	sttOpts := []dgstt.Option{
		dgstt.WithModel(cfg.STT.Model),
		dgstt.WithLanguage(cfg.STT.Language),
	}
	if cfg.STT.URL != "" {
		sttOpts = append(sttOpts, dgstt.WithEndpoint(cfg.STT.URL))
	}
	sttProvider, err := dgstt.New(cfg.STT.APIKey, sttOpts...)
	if err != nil {
		return ps, fmt.Errorf("create stt provider: %w", err)
	}
	ps.STT = sttProvider
	slog.Info("provider created", "kind", "stt", "model", cfg.STT.Model)

	ttsOpts := []dgtts.Option{
		dgtts.WithVoice(cfg.TTS.Voice),
	}
	if cfg.TTS.URL != "" {
		ttsOpts = append(ttsOpts, dgtts.WithEndpoint(cfg.TTS.URL))
	}
	ttsProvider, err := dgtts.New(cfg.TTS.APIKey, ttsOpts...)
	if err != nil {
		return ps, fmt.Errorf("create tts provider: %w", err)
	}
	ps.TTS = ttsProvider
	slog.Info("provider created", "kind", "tts", "voice", cfg.TTS.Voice)

	ps.LLM, err = buildLLM(cfg)
	if err != nil {
		return ps, fmt.Errorf("create llm provider: %w", err)
	}
	slog.Info("provider created", "kind", "llm", "backend", cfg.LLM.Provider, "model", cfg.LLM.Model)

	return ps, nil
}

// buildLLM picks the native OpenAI client for the default backend and the
// any-llm bridge for everything else.
func buildLLM(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "openai" {
		var opts []openai.Option
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openai.New(cfg.LLM.APIKey, cfg.LLM.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
	}
	return anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, opts...)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        voxdesk — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("STT", cfg.STT.Model)
	printLine("TTS voice", cfg.TTS.Voice)
	printLine("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	if cfg.Tenant.PostgresDSN != "" {
		printLine("Tenant store", "postgres")
	} else {
		printLine("Tenant store", "in-memory")
	}
	printLine("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", key, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
