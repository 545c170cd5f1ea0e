package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcelrenan-web/Fisiotech-app/internal/bus"
	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
	"github.com/marcelrenan-web/Fisiotech-app/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service consumes audio frames from edge devices, accumulates them into
// fixed-duration windows (~5 s by default) and publishes one transcribed
// segment per window. Windows of one session are transcribed strictly in
// order: the dictation core depends on segment order to interleave commands
// and content correctly.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	log        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState

	ctx    context.Context
	cancel context.CancelFunc
	sub    *nats.Subscription
	wg     sync.WaitGroup
	ready  bool
}

type sessionState struct {
	buffer     []byte
	pending    [][]byte
	inflight   bool
	closing    bool
	sampleRate int
	channels   int
}

// NewRecognizer builds the configured recognizer backend.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "whisper":
		return NewWhisperRecognizer(cfg)
	}
	return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		log:        logger.With(slog.String("component", "stt.service")),
		sessions:   make(map[string]*sessionState),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

// windowBytes is the PCM byte count of one transcription window.
func (s *Service) windowBytes(sampleRate, channels int) int {
	return sampleRate * channels * 2 * s.cfg.WindowMS / 1000
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	if state == nil {
		state = &sessionState{
			sampleRate: s.cfg.SampleRate,
			channels:   s.cfg.Channels,
		}
		s.sessions[frame.SessionID] = state
	}
	if frame.SampleRate > 0 {
		state.sampleRate = frame.SampleRate
	}
	if frame.Channels > 0 {
		state.channels = frame.Channels
	}
	state.buffer = append(state.buffer, frame.PCM...)

	window := s.windowBytes(state.sampleRate, state.channels)
	for window > 0 && len(state.buffer) >= window {
		state.pending = append(state.pending, state.buffer[:window:window])
		state.buffer = state.buffer[window:]
	}
	if frame.Final {
		if len(state.buffer) > 0 {
			state.pending = append(state.pending, state.buffer)
			state.buffer = nil
		}
		state.closing = true
	}
	s.maybeScheduleLocked(frame.SessionID, state)
	s.mu.Unlock()
}

// maybeScheduleLocked starts the next transcription for a session if none
// is in flight. Caller holds s.mu.
func (s *Service) maybeScheduleLocked(sessionID string, state *sessionState) {
	if state.inflight {
		return
	}
	if len(state.pending) == 0 {
		if state.closing {
			delete(s.sessions, sessionID)
		}
		return
	}
	pcm := state.pending[0]
	state.pending = state.pending[1:]
	state.inflight = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcribe(sessionID, pcm, state.sampleRate, state.channels)
	}()
}

func (s *Service) transcribe(sessionID string, pcm []byte, sampleRate, channels int) {
	ctx, cancel := context.WithTimeout(s.ctx, 45*time.Second)
	defer cancel()

	result, err := s.recognizer.Transcribe(ctx, pcm, sampleRate, channels)
	if err != nil {
		s.log.Warn("transcription failed", slog.String("session", sessionID), slog.String("error", err.Error()))
	} else {
		s.publishSegment(sessionID, result)
	}

	s.mu.Lock()
	if state := s.sessions[sessionID]; state != nil {
		state.inflight = false
		s.maybeScheduleLocked(sessionID, state)
	}
	s.mu.Unlock()
}

func (s *Service) publishSegment(sessionID string, result Result) {
	if result.Text == "" {
		return
	}
	segment := protocol.Segment{
		SessionID:  sessionID,
		Text:       result.Text,
		Timestamp:  time.Now().UTC(),
		Confidence: result.Confidence,
	}
	if err := s.bus.PublishJSON(protocol.SubjectSegment, segment); err != nil {
		s.log.Warn("failed to publish segment", slog.String("error", err.Error()))
	}
}
