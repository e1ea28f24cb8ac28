// Command quill is the main entry point for the Quill transcription server.
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

	"github.com/voiceai/quill/internal/config"
	"github.com/voiceai/quill/internal/health"
	"github.com/voiceai/quill/internal/observe"
	"github.com/voiceai/quill/internal/recorder"
	"github.com/voiceai/quill/internal/resilience"
	"github.com/voiceai/quill/internal/server"
	"github.com/voiceai/quill/internal/transcript"
	"github.com/voiceai/quill/pkg/audio/capture"
	"github.com/voiceai/quill/pkg/backend"
	oaibackend "github.com/voiceai/quill/pkg/backend/openai"
	"github.com/voiceai/quill/pkg/backend/whisper"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// logLevel is shared with the config watcher so log_level changes apply
// without a restart.
var logLevel = new(slog.LevelVar)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "quill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("quill starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "quill",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Backend registry + fallback chain ─────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	fallback, err := buildTranscriber(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build transcription backends", "err", err)
		return 1
	}

	// ── Transcript store ──────────────────────────────────────────────────────
	var store transcript.Store
	var pgStore *transcript.PGStore
	if cfg.Store.PostgresDSN != "" {
		pgStore, err = transcript.NewPGStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect transcript store", "err", err)
			return 1
		}
		defer pgStore.Close()
		store = pgStore
		slog.Info("transcript store connected", "kind", "postgres")
	} else {
		store = transcript.NewMemStore()
		slog.Info("transcript store created", "kind", "memory")
	}

	// ── Recording pipeline ────────────────────────────────────────────────────
	opener := capture.NewPortAudioOpener()
	hub := server.NewHub(logger)

	var ctrl *recorder.Controller
	ctrl = recorder.New(opener, fallback,
		recorder.WithSource(capture.Source{ID: cfg.Audio.Source, Name: cfg.Audio.Source}),
		recorder.WithDefaultLanguage(cfg.Backend.Language),
		recorder.WithLogger(logger),
		recorder.WithSchedulerOptions(schedulerOptions(cfg)...),
		recorder.WithDispatcherOptions(dispatcherOptions(cfg)...),
		recorder.WithTextCallback(func(seq int, text string) {
			metrics.RecordChunk(context.Background(), "ok")
			persistFragment(store, ctrl, transcript.Fragment{Seq: seq, Text: text})
			hub.Broadcast(server.Event{
				Type:      server.EventText,
				SessionID: ctrl.Status().SessionID,
				Seq:       seq,
				Text:      text,
			})
		}),
		recorder.WithErrorCallback(func(seq int, reason string) {
			metrics.RecordChunk(context.Background(), "error")
			persistFragment(store, ctrl, transcript.Fragment{Seq: seq, Failed: true, Reason: reason})
			hub.Broadcast(server.Event{
				Type:      server.EventError,
				SessionID: ctrl.Status().SessionID,
				Seq:       seq,
				Error:     reason,
			})
		}),
		recorder.WithDeviceFailureCallback(func(err error) {
			hub.Broadcast(server.Event{
				Type:  server.EventDevice,
				Error: err.Error(),
			})
		}),
		recorder.WithStateCallback(func(st recorder.State) {
			switch st {
			case recorder.StateCapturing:
				metrics.ActiveSessions.Add(context.Background(), 1)
			case recorder.StateIdle:
				metrics.ActiveSessions.Add(context.Background(), -1)
			}
		}),
		recorder.WithFrameCallback(func(n int) {
			metrics.CapturedBytes.Add(context.Background(), int64(n))
		}),
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []health.Checker{
		health.DeviceChecker(opener),
		health.BackendChecker(fallback),
	}
	if pgStore != nil {
		checkers = append(checkers, health.StoreChecker(pgStore))
	}

	srv := server.New(ctrl, store,
		server.WithHub(hub),
		server.WithHealthHandler(health.New(checkers...)),
		server.WithMetrics(metrics),
		server.WithServerLogger(logger),
	)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(ctrl, config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpSrv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	// Drain any active session so the tail is not lost.
	if err := ctrl.Stop(); err != nil && !errors.Is(err, recorder.ErrNotActive) {
		slog.Warn("session stop error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires all built-in backend factories into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.Register("openai", func(entry config.ProviderEntry) (backend.Transcriber, error) {
		var opts []oaibackend.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaibackend.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaibackend.WithOrganization(org))
		}
		return oaibackend.New(entry.APIKey, entry.Model, opts...)
	})

	reg.Register("whisper", func(entry config.ProviderEntry) (backend.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.Register("whisper-native", func(entry config.ProviderEntry) (backend.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered backend", "name", name)
	}
}

// buildTranscriber creates the primary backend and its fallbacks, each
// instrumented with metrics, and assembles them into a fallback chain.
func buildTranscriber(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*resilience.BackendFallback, error) {
	primary, err := reg.Create(cfg.Backend.Primary)
	if err != nil {
		return nil, fmt.Errorf("create primary backend %q: %w", cfg.Backend.Primary.Name, err)
	}
	slog.Info("backend created", "role", "primary", "name", cfg.Backend.Primary.Name)

	fb := resilience.NewBackendFallback(
		cfg.Backend.Primary.Name,
		observe.InstrumentTranscriber(primary, cfg.Backend.Primary.Name, m),
		resilience.FallbackConfig{},
	)

	for _, entry := range cfg.Backend.Fallbacks {
		t, err := reg.Create(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback backend %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, observe.InstrumentTranscriber(t, entry.Name, m))
		slog.Info("backend created", "role", "fallback", "name", entry.Name)
	}

	return fb, nil
}

// schedulerOptions maps config values onto scheduler options, keeping
// built-in defaults for zero values.
func schedulerOptions(cfg *config.Config) []recorder.SchedulerOption {
	var opts []recorder.SchedulerOption
	if cfg.Audio.ChunkPeriod > 0 {
		opts = append(opts, recorder.WithPeriod(cfg.Audio.ChunkPeriod))
	}
	if cfg.Audio.ChunkOverlap > 0 {
		opts = append(opts, recorder.WithOverlap(cfg.Audio.ChunkOverlap))
	}
	if cfg.Audio.MinChunk > 0 {
		opts = append(opts, recorder.WithMinChunk(cfg.Audio.MinChunk))
	}
	return opts
}

// dispatcherOptions maps config values onto dispatcher options.
func dispatcherOptions(cfg *config.Config) []recorder.DispatcherOption {
	var opts []recorder.DispatcherOption
	if cfg.Backend.Workers > 0 {
		opts = append(opts, recorder.WithWorkers(cfg.Backend.Workers))
	}
	if cfg.Backend.CallTimeout > 0 {
		opts = append(opts, recorder.WithCallTimeout(cfg.Backend.CallTimeout))
	}
	if cfg.Backend.DrainTimeout > 0 {
		opts = append(opts, recorder.WithDrainTimeout(cfg.Backend.DrainTimeout))
	}
	return opts
}

// persistFragment writes a fragment for the active session, tolerating a
// short store outage.
func persistFragment(store transcript.Store, ctrl *recorder.Controller, f transcript.Fragment) {
	sessionID := ctrl.Status().SessionID
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Append(ctx, sessionID, f); err != nil {
		slog.Warn("failed to persist transcript fragment",
			"session", sessionID, "seq", f.Seq, "err", err)
	}
}

// applyConfigChange applies hot-reloadable config changes.
func applyConfigChange(ctrl *recorder.Controller, diff config.ConfigDiff) {
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "level", diff.NewLogLevel)
	}
	if diff.LanguageChanged {
		ctrl.SetLanguage(diff.NewLanguage)
		slog.Info("language updated", "language", diff.NewLanguage)
	}
	if diff.RestartRequired {
		slog.Warn("configuration changed in ways that require a restart to apply")
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a backend Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
