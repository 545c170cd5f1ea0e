package dictation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelrenan-web/Fisiotech-app/internal/bus"
	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
	"github.com/marcelrenan-web/Fisiotech-app/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Auditor records the dictation timeline for later review.
type Auditor interface {
	AppendAudit(ctx context.Context, sessionID, kind string, payload []byte) error
}

// Service connects the dispatcher to the bus: it consumes transcribed
// segments, publishes side effects, and handles save/clear control
// messages. One Dispatcher is kept per bus session.
//
// Segments within a session are processed synchronously in arrival order.
// Record persistence triggered by save requests runs on background
// goroutines so slow disk work never stalls segment processing.
type Service struct {
	cfg       config.DictationConfig
	bus       *bus.Client
	norm      *Normalizer
	templates TemplateSource
	records   RecordSource
	audit     Auditor
	log       *slog.Logger

	mu          sync.Mutex
	dispatchers map[string]*Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
	ready  bool

	segmentsTotal metric.Int64Counter
	commandsTotal metric.Int64Counter
	droppedTotal  metric.Int64Counter
}

// NewService builds the dictation service. The normalizer merges the
// built-in physiotherapy corrections with any configured extra rules.
func NewService(parent context.Context, cfg config.DictationConfig, busClient *bus.Client, templates TemplateSource, records RecordSource, audit Auditor, logger *slog.Logger) (*Service, error) {
	rules := DefaultRules()
	if cfg.CorrectionsFile != "" {
		extra, err := LoadRules(cfg.CorrectionsFile)
		if err != nil {
			return nil, err
		}
		rules = append(rules, extra...)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:         cfg,
		bus:         busClient,
		norm:        NewNormalizer(rules),
		templates:   templates,
		records:     records,
		audit:       audit,
		log:         logger.With(slog.String("component", "dictation.service")),
		dispatchers: make(map[string]*Dispatcher),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/marcelrenan-web/Fisiotech-app/dictation")
	var err error
	if s.segmentsTotal, err = meter.Int64Counter("fisiotech.dictation.segments",
		metric.WithDescription("Transcribed segments processed")); err != nil {
		s.log.Warn("failed to create segments counter", slog.String("error", err.Error()))
	}
	if s.commandsTotal, err = meter.Int64Counter("fisiotech.dictation.commands",
		metric.WithDescription("Voice commands recognized")); err != nil {
		s.log.Warn("failed to create commands counter", slog.String("error", err.Error()))
	}
	if s.droppedTotal, err = meter.Int64Counter("fisiotech.dictation.dropped",
		metric.WithDescription("Segments dropped while paused")); err != nil {
		s.log.Warn("failed to create dropped counter", slog.String("error", err.Error()))
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subSeg, err := s.bus.Conn().Subscribe(protocol.SubjectSegment, s.handleSegment)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, subSeg)

	subSave, err := s.bus.Conn().Subscribe(protocol.SubjectSaveRecord, s.handleSave)
	if err != nil {
		s.drainSubs()
		return err
	}
	s.subs = append(s.subs, subSave)

	subClear, err := s.bus.Conn().Subscribe(protocol.SubjectClearSession, s.handleClear)
	if err != nil {
		s.drainSubs()
		return err
	}
	s.subs = append(s.subs, subClear)

	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drainSubs()
	s.wg.Wait()
}

func (s *Service) drainSubs() {
	for _, sub := range s.subs {
		if sub != nil {
			_ = sub.Drain()
		}
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

// dispatcher returns the per-session dispatcher, creating it on first use.
// Callers must hold s.mu: the segment, save, and clear subscriptions run on
// separate goroutines, and session state is single-writer by contract.
func (s *Service) dispatcher(sessionID string) *Dispatcher {
	d, ok := s.dispatchers[sessionID]
	if !ok {
		var opts []DispatcherOption
		if s.cfg.BufferWhilePaused {
			opts = append(opts, WithBufferWhilePaused())
		}
		d = NewDispatcher(sessionID, s.norm, s.templates, s.records, s.log, opts...)
		s.dispatchers[sessionID] = d
	}
	return d
}

func (s *Service) handleSegment(msg *nats.Msg) {
	var segment protocol.Segment
	if err := json.Unmarshal(msg.Data, &segment); err != nil {
		s.log.Warn("failed to decode segment", slog.String("error", err.Error()))
		return
	}
	if segment.Text == "" {
		return
	}

	s.mu.Lock()
	effects := s.dispatcher(segment.SessionID).ProcessSegment(s.ctx, segment.Text)
	s.mu.Unlock()

	s.count(effects)
	s.publishEffects(effects)
	s.appendAudit(segment.SessionID, "segment", effects)
}

func (s *Service) count(effects protocol.SideEffects) {
	if s.segmentsTotal != nil {
		s.segmentsTotal.Add(s.ctx, 1)
	}
	if effects.Consumed && s.commandsTotal != nil {
		s.commandsTotal.Add(s.ctx, 1,
			metric.WithAttributes(attribute.Bool("warning", effects.Warning != "")))
	}
	if !effects.Consumed && effects.AppendedTo == "" && s.droppedTotal != nil {
		s.droppedTotal.Add(s.ctx, 1)
	}
}

func (s *Service) handleSave(msg *nats.Msg) {
	var req protocol.SaveRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode save request", slog.String("error", err.Error()))
		return
	}

	// Snapshot the buffers synchronously; only the disk write runs off the
	// segment hot path.
	s.mu.Lock()
	session := s.dispatcher(req.SessionID).Session()
	patient, recordType := session.Patient, session.OpenRecord
	sections := session.Sections()
	s.mu.Unlock()

	if patient == "" || recordType == "" {
		s.publishEffects(protocol.SideEffects{
			SessionID: req.SessionID,
			Warning:   "Nenhuma ficha de paciente aberta",
		})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()

		if err := s.records.SaveRecord(ctx, patient, recordType, sections); err != nil {
			s.log.Warn("save failed", slog.String("session", req.SessionID), slog.String("error", err.Error()))
			s.publishEffects(protocol.SideEffects{
				SessionID: req.SessionID,
				Warning:   "Não foi possível salvar a ficha",
			})
			return
		}
		saved := protocol.RecordSaved{
			SaveID:     uuid.NewString(),
			SessionID:  req.SessionID,
			PatientID:  patient,
			RecordType: recordType,
			Timestamp:  time.Now().UTC(),
		}
		if err := s.bus.PublishJSON(protocol.SubjectRecordSaved, saved); err != nil {
			s.log.Warn("failed to publish record saved", slog.String("error", err.Error()))
		}
		s.appendAudit(req.SessionID, "save", saved)
	}()
}

func (s *Service) handleClear(msg *nats.Msg) {
	var req protocol.ClearRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.log.Warn("failed to decode clear request", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.dispatcher(req.SessionID).Clear()
	s.mu.Unlock()
	s.appendAudit(req.SessionID, "clear", req)
}

func (s *Service) publishEffects(effects protocol.SideEffects) {
	if err := s.bus.PublishJSON(protocol.SubjectSideEffects, effects); err != nil {
		s.log.Warn("failed to publish side effects", slog.String("error", err.Error()))
	}
}

func (s *Service) appendAudit(sessionID, kind string, payload any) {
	if s.audit == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.audit.AppendAudit(s.ctx, sessionID, kind, data); err != nil {
		s.log.Warn("failed to append audit event", slog.String("error", err.Error()))
	}
}
