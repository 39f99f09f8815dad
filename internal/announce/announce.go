// Package announce publishes periodic capability heartbeats for a running
// voxgate node so bus peers can discover available voices and load.
package announce

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabs/voxgate/internal/bus"
	"github.com/voxlabs/voxgate/internal/config"
	"github.com/voxlabs/voxgate/internal/limiter"
	"github.com/voxlabs/voxgate/internal/protocol"
)

// Announcer publishes voxgate.node.announce heartbeats and exposes the
// same figures as observable gauges.
type Announcer struct {
	cfg        config.NodeConfig
	bus        *bus.Client
	gate       *limiter.Gate
	voices     int
	instruct   bool
	outputRate int
	log        *slog.Logger

	ticker *time.Ticker
	cancel context.CancelFunc
	done   chan struct{}

	meter       metric.Meter
	activeGauge metric.Int64ObservableGauge
	queuedGauge metric.Int64ObservableGauge
	registered  metric.Registration
}

func New(ctx context.Context, cfg config.NodeConfig, busClient *bus.Client, gate *limiter.Gate, voices int, instruct bool, outputRate int, log *slog.Logger) (*Announcer, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &Announcer{
		cfg:        cfg,
		bus:        busClient,
		gate:       gate,
		voices:     voices,
		instruct:   instruct,
		outputRate: outputRate,
		log:        log.With(slog.String("component", "announcer")),
		cancel:     cancel,
		done:       make(chan struct{}),
		meter:      otel.Meter("github.com/voxlabs/voxgate/announce"),
	}

	if err := a.initMetrics(); err != nil {
		a.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	a.ticker = time.NewTicker(time.Duration(cfg.AnnounceInterval) * time.Millisecond)
	go a.run(ctx)

	if err := a.publish(); err != nil {
		a.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}

	return a, nil
}

func (a *Announcer) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.ticker != nil {
		a.ticker.Stop()
	}
	<-a.done
	if a.registered != nil {
		_ = a.registered.Unregister()
	}
}

func (a *Announcer) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.ticker.C:
			if err := a.publish(); err != nil {
				a.log.Warn("failed to publish announcement", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) publish() error {
	msg := protocol.NodeAnnounce{
		NodeID:         a.cfg.ID,
		Voices:         a.voices,
		InstructModel:  a.instruct,
		ActiveRequests: a.gate.Active(),
		QueuedRequests: a.gate.Queued(),
		OutputRate:     a.outputRate,
		Timestamp:      time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return a.bus.Conn().Publish(protocol.SubjectNodeAnnounce, payload)
}

func (a *Announcer) initMetrics() error {
	active, err := a.meter.Int64ObservableGauge("voxgate.synth.active",
		metric.WithDescription("Generations currently running"))
	if err != nil {
		return err
	}
	queued, err := a.meter.Int64ObservableGauge("voxgate.synth.queued",
		metric.WithDescription("Requests waiting for a generation slot"))
	if err != nil {
		return err
	}
	a.activeGauge = active
	a.queuedGauge = queued

	reg, err := a.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(a.activeGauge, int64(a.gate.Active()))
		obs.ObserveInt64(a.queuedGauge, int64(a.gate.Queued()))
		return nil
	}, a.activeGauge, a.queuedGauge)
	if err != nil {
		return err
	}
	a.registered = reg
	return nil
}
