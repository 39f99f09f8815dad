// Package runtime wires the voxgate daemon: telemetry, the engine
// adapter, the dispatch pipeline and the serving surfaces.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlabs/voxgate/internal/announce"
	"github.com/voxlabs/voxgate/internal/bus"
	"github.com/voxlabs/voxgate/internal/config"
	"github.com/voxlabs/voxgate/internal/engine"
	"github.com/voxlabs/voxgate/internal/eventstore"
	"github.com/voxlabs/voxgate/internal/gateway"
	"github.com/voxlabs/voxgate/internal/limiter"
	"github.com/voxlabs/voxgate/internal/natsserver"
	"github.com/voxlabs/voxgate/internal/promptcache"
	"github.com/voxlabs/voxgate/internal/synthesis"
	"github.com/voxlabs/voxgate/internal/synthservice"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, blocks until ctx is cancelled, then
// shuts them down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}

	eng, err := buildEngine(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	voices, err := eng.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	if len(voices) == 0 {
		return fmt.Errorf("engine reports no voices")
	}
	instruct, err := eng.SupportsInstruct(ctx)
	if err != nil {
		return fmt.Errorf("probe engine capabilities: %w", err)
	}
	r.logger.Info("engine ready",
		slog.String("mode", r.cfg.Engine.Mode),
		slog.Int("voices", len(voices)),
		slog.Bool("instruct", instruct))

	var cache *promptcache.Cache
	if size := r.cfg.Synthesis.PromptCacheSize; size > 0 {
		cache, err = promptcache.New(size)
		if err != nil {
			return fmt.Errorf("create prompt cache: %w", err)
		}
	}

	caps := synthesis.Capabilities{InstructModel: instruct}
	disp := synthesis.NewDispatcher(eng, caps, cache,
		r.cfg.Synthesis.PromptSampleRate, r.cfg.Engine.SampleRate, r.logger)
	gate := limiter.New(r.cfg.Synthesis.MaxActive, r.cfg.Synthesis.MaxQueued)
	genTimeout := time.Duration(r.cfg.Synthesis.GenerationTimeout) * time.Millisecond

	gw := gateway.New(disp, gate, store, voices, genTimeout, r.ready.Load, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           gw.Router(metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	var (
		embedded  *natsserver.EmbeddedServer
		busClient *bus.Client
		service   *synthservice.Service
		announcer *announce.Announcer
	)
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded bus: %w", err)
		}

		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
		}
		busClient, err = bus.Connect(busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("connect to bus: %w", err)
		}

		service = synthservice.NewService(ctx, r.cfg.Synthesis, busClient, disp, gate, store, r.logger)
		if err := service.Start(); err != nil {
			busClient.Close()
			embedded.Shutdown()
			return fmt.Errorf("start synth service: %w", err)
		}

		announcer, err = announce.New(ctx, r.cfg.Node, busClient, gate, len(voices), instruct, r.cfg.Engine.SampleRate, r.logger)
		if err != nil {
			r.logger.Warn("announcer failed to start", slog.String("error", err.Error()))
		}
	}

	r.ready.Store(true)
	r.logger.Info("voxgate started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("voxgate stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if service != nil {
		service.Close()
	}
	if announcer != nil {
		announcer.Close()
	}
	if busClient != nil {
		busClient.Close()
	}
	if embedded != nil {
		embedded.Shutdown()
	}
	if err := store.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func buildEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return engine.NewExecEngine(cfg.Command, cfg.SampleRate)
	case "mock":
		return engine.NewMockEngine(cfg.MockVoices, cfg.MockInstruct, cfg.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
