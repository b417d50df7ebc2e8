// Package app wires all Kalliope subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the artifact store,
// conversation memory, capture registry, utterance pipeline, and playback
// arbiter, Run serves the health/metrics endpoints until the context is
// cancelled, and Shutdown tears everything down in reverse-init order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/quenra/kalliope/internal/artifact"
	"github.com/quenra/kalliope/internal/capture"
	"github.com/quenra/kalliope/internal/config"
	"github.com/quenra/kalliope/internal/health"
	"github.com/quenra/kalliope/internal/memory"
	"github.com/quenra/kalliope/internal/observe"
	"github.com/quenra/kalliope/internal/pipeline"
	"github.com/quenra/kalliope/internal/playback"
	"github.com/quenra/kalliope/pkg/provider/llm"
	"github.com/quenra/kalliope/pkg/provider/stt"
	"github.com/quenra/kalliope/pkg/provider/tts"
	"github.com/quenra/kalliope/pkg/voice"
)

// shutdownTimeout bounds the HTTP server drain during Run teardown.
const shutdownTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. All three are
// required; the pipeline cannot answer an utterance without them.
// Populated by main.go via the config registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	artifacts *artifact.Store
	mem       *memory.Store
	metrics   *observe.Metrics
	arbiter   *playback.Arbiter
	coord     *pipeline.Coordinator
	registry  *capture.Registry
	rooms     *RoomManager

	checkers []health.Checker

	// baseCtx carries the application lifetime into utterance processing.
	baseCtx context.Context

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics set instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHealthChecker adds a readiness checker to the /readyz endpoint.
func WithHealthChecker(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); dialer supplies
// voice connections for joined rooms.
func New(ctx context.Context, cfg *config.Config, providers *Providers, dialer voice.Dialer, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm, and tts providers are all required")
	}
	if dialer == nil {
		return nil, errors.New("app: dialer is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		baseCtx:   ctx,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	artifacts, err := artifact.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("app: init artifact store: %w", err)
	}
	a.artifacts = artifacts

	var memOpts []memory.Option
	if cfg.Memory.MaxTurns > 0 {
		memOpts = append(memOpts, memory.WithMaxTurns(cfg.Memory.MaxTurns))
	}
	if cfg.Memory.MaxSpeakers > 0 {
		memOpts = append(memOpts, memory.WithMaxSpeakers(cfg.Memory.MaxSpeakers))
	}
	a.mem = memory.New(memOpts...)

	a.arbiter = playback.NewArbiter(artifacts.Remove)
	a.closers = append(a.closers, a.arbiter.Close)

	coordOpts := []pipeline.Option{pipeline.WithMetrics(a.metrics)}
	if cfg.Pipeline.SystemPrompt != "" {
		coordOpts = append(coordOpts, pipeline.WithSystemPrompt(cfg.Pipeline.SystemPrompt))
	}
	if cfg.Pipeline.MinTranscriptChars > 0 {
		coordOpts = append(coordOpts, pipeline.WithMinTranscriptChars(cfg.Pipeline.MinTranscriptChars))
	}
	if cfg.Pipeline.MaxReplyChars > 0 {
		coordOpts = append(coordOpts, pipeline.WithMaxReplyChars(cfg.Pipeline.MaxReplyChars))
	}
	if cfg.Pipeline.WakePhrase != "" {
		coordOpts = append(coordOpts, pipeline.WithWakeDetector(pipeline.NewWakeDetector(cfg.Pipeline.WakePhrase)))
	}
	coord, err := pipeline.NewCoordinator(
		providers.STT, providers.LLM, providers.TTS,
		a.mem, artifacts, a.arbiter,
		coordOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.coord = coord

	var captureOpts []capture.Option
	if cfg.Capture.MinFrames > 0 {
		captureOpts = append(captureOpts, capture.WithMinFrames(cfg.Capture.MinFrames))
	}
	captureOpts = append(captureOpts, capture.WithActivityFunc(func(delta int) {
		a.metrics.ActiveCaptures.Add(context.Background(), int64(delta))
	}))
	a.registry = capture.NewRegistry(a.handleUtterance, captureOpts...)

	a.rooms = NewRoomManager(dialer, a.registry, a.arbiter, a.mem, a.metrics)
	a.closers = append(a.closers, a.rooms.Close)

	return a, nil
}

// Rooms returns the room manager for slash command handlers.
func (a *App) Rooms() *RoomManager {
	return a.rooms
}

// ApplyPipelineConfig applies hot-reloaded pipeline settings to subsequent
// utterances.
func (a *App) ApplyPipelineConfig(p config.PipelineConfig) {
	var wake *pipeline.WakeDetector
	if p.WakePhrase != "" {
		wake = pipeline.NewWakeDetector(p.WakePhrase)
	}
	a.coord.Retune(p.SystemPrompt, p.MinTranscriptChars, p.MaxReplyChars, wake)
}

// handleUtterance runs one finished utterance through the pipeline. Stage
// failures are terminal here: the utterance is logged and dropped, the next
// one starts clean.
func (a *App) handleUtterance(utt capture.Utterance) {
	if err := a.coord.Process(a.baseCtx, utt); err != nil {
		slog.Error("utterance processing failed",
			"room_id", utt.RoomID, "speaker_id", utt.SpeakerID, "err", err)
	}
}

// Run serves the health and metrics endpoints on the configured listen
// address and blocks until ctx is cancelled. With no listen address it just
// waits for cancellation.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		slog.Info("app running", "http", "disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	health.New(a.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("app running", "listen_addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: serve: %w", err)
	}
	return ctx.Err()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
