// Package synthservice serves synthesis requests arriving over the bus,
// mirroring the HTTP gateway for callers that live on NATS.
package synthservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/voxlabs/voxgate/internal/audio"
	"github.com/voxlabs/voxgate/internal/bus"
	"github.com/voxlabs/voxgate/internal/config"
	"github.com/voxlabs/voxgate/internal/eventstore"
	"github.com/voxlabs/voxgate/internal/limiter"
	"github.com/voxlabs/voxgate/internal/protocol"
	"github.com/voxlabs/voxgate/internal/synthesis"
)

type Service struct {
	cfg    config.SynthesisConfig
	bus    *bus.Client
	disp   *synthesis.Dispatcher
	gate   *limiter.Gate
	store  *eventstore.Store
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.SynthesisConfig, busClient *bus.Client, disp *synthesis.Dispatcher, gate *limiter.Gate, store *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		disp:   disp,
		gate:   gate,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "synth-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe synth requests: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var wire protocol.SynthRequest
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		s.logger.Warn("failed to decode synth request", slogError(err))
		return
	}
	if wire.RequestID == "" {
		wire.RequestID = uuid.NewString()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve(wire)
	}()
}

func (s *Service) serve(wire protocol.SynthRequest) {
	mode, err := synthesis.ParseMode(wire.Mode)
	if err != nil {
		s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Error: err.Error()})
		return
	}
	if !synthesis.ValidSpeed(wire.Speed) {
		s.publishStatus(protocol.SynthStatus{
			RequestID: wire.RequestID,
			Error:     fmt.Sprintf("speed %g is outside [%g, %g]", wire.Speed, synthesis.SpeedMin, synthesis.SpeedMax),
		})
		return
	}

	if err := s.gate.Acquire(s.ctx); err != nil {
		reason := "synthesis queue is full, retry later"
		if !errors.Is(err, limiter.ErrFull) {
			reason = err.Error()
		}
		s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Error: reason})
		return
	}
	defer s.gate.Release()

	req := synthesis.Request{
		Mode:         mode,
		Text:         wire.Text,
		Voice:        wire.Voice,
		PromptUpload: wire.PromptUpload,
		PromptRecord: wire.PromptRecord,
		PromptText:   wire.PromptText,
		InstructText: wire.InstructText,
		Seed:         wire.Seed,
		Streaming:    wire.Streaming,
		Speed:        wire.Speed,
	}
	if req.Seed == 0 {
		req.Seed = synthesis.NewSeed()
	}
	s.record(wire.RequestID, req)

	ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.GenerationTimeout)*time.Millisecond)
	defer cancel()

	res, err := s.disp.Generate(ctx, req)
	if err != nil {
		s.event(wire.RequestID, eventstore.KindFailed, err.Error())
		s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Error: err.Error()})
		return
	}

	s.publishStatus(protocol.SynthStatus{
		RequestID:  wire.RequestID,
		Warning:    res.Warning,
		Advisories: res.Advisories,
	})
	if res.Warning != "" {
		s.event(wire.RequestID, eventstore.KindFatal, res.Warning)
	}
	for _, adv := range res.Advisories {
		s.event(wire.RequestID, eventstore.KindAdvisory, adv)
	}

	sequence := 0
	chunks, errs := res.Chunks, res.Errs
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			s.publishChunk(wire.RequestID, sequence, chunk, false)
			sequence++
		case genErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if genErr != nil {
				s.event(wire.RequestID, eventstore.KindFailed, genErr.Error())
				s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Error: genErr.Error()})
				return
			}
		case <-ctx.Done():
			s.logger.Warn("synthesis cancelled", slogError(ctx.Err()))
			s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Error: ctx.Err().Error()})
			return
		}
	}

	// empty terminal chunk marks end of audio for subscribers
	s.publishChunk(wire.RequestID, sequence, synthesis.AudioChunk{SampleRate: s.disp.OutputRate()}, true)
	if res.Warning == "" {
		s.event(wire.RequestID, eventstore.KindCompleted, fmt.Sprintf("%d chunks", sequence))
	}
	s.publishStatus(protocol.SynthStatus{RequestID: wire.RequestID, Completed: true})
}

func (s *Service) publishChunk(requestID string, sequence int, chunk synthesis.AudioChunk, final bool) {
	packet := protocol.SynthChunk{
		RequestID:  requestID,
		Sequence:   sequence,
		SampleRate: chunk.SampleRate,
		PCM:        audio.Float32ToPCM16(chunk.Samples),
		Final:      final,
	}
	data, err := json.Marshal(packet)
	if err != nil {
		s.logger.Warn("failed to marshal synth chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.AudioSubject(requestID), data); err != nil {
		s.logger.Warn("failed to publish synth chunk", slogError(err))
	}
}

func (s *Service) publishStatus(status protocol.SynthStatus) {
	status.Timestamp = time.Now().UTC()
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal synth status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.StatusSubject(status.RequestID), data); err != nil {
		s.logger.Warn("failed to publish synth status", slogError(err))
	}
}

func (s *Service) record(id string, req synthesis.Request) {
	rec := eventstore.RequestRecord{
		ID:        id,
		Mode:      req.Mode.String(),
		Voice:     req.Voice,
		TextChars: len(req.Text),
		Seed:      req.Seed,
		Streaming: req.Streaming,
		Speed:     req.Speed,
	}
	if err := s.store.RecordRequest(s.ctx, rec); err != nil {
		s.logger.Warn("failed to record request", slogError(err))
	}
}

func (s *Service) event(id, kind, detail string) {
	if err := s.store.AppendEvent(context.Background(), id, kind, detail); err != nil {
		s.logger.Warn("failed to record event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
