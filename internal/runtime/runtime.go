package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/marcelrenan-web/Fisiotech-app/internal/bus"
	"github.com/marcelrenan-web/Fisiotech-app/internal/config"
	"github.com/marcelrenan-web/Fisiotech-app/internal/devices"
	"github.com/marcelrenan-web/Fisiotech-app/internal/dictation"
	"github.com/marcelrenan-web/Fisiotech-app/internal/natsserver"
	"github.com/marcelrenan-web/Fisiotech-app/internal/records"
	"github.com/marcelrenan-web/Fisiotech-app/internal/stt"
	"github.com/marcelrenan-web/Fisiotech-app/internal/templates"
	"golang.org/x/sync/errgroup"
)

// Runtime owns the lifecycle of every service on the box: embedded NATS,
// bus client, record store, template registry, device registry, speech
// recognition and the dictation core. Start blocks until the context is
// cancelled, then shuts everything down in reverse order.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error

	embedded  *natsserver.EmbeddedServer
	bus       *bus.Client
	store     *records.Store
	templates *templates.Registry
	devices   *devices.Registry
	stt       *stt.Service
	dictation *dictation.Service

	ready atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startServices(ctx); err != nil {
		r.stopServices()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/api/devices", r.handleDevices)
	mux.HandleFunc("/api/templates", r.handleTemplates)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.ready.Store(false)
		r.logger.Info("runtime stopping")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	err = g.Wait()
	if err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}

	r.stopServices()

	if r.tracerClose != nil {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelClose()
		if err := r.tracerClose(closeCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startServices(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.bus = busClient

	store, err := records.Open(ctx, r.cfg.RecordStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	r.store = store

	registry, err := templates.NewRegistry(r.cfg.Templates, r.logger)
	if err != nil {
		return fmt.Errorf("failed to load template registry: %w", err)
	}
	r.templates = registry

	deviceRegistry, err := devices.NewRegistry(ctx, r.cfg.Device, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start device registry: %w", err)
	}
	r.devices = deviceRegistry

	if r.cfg.STT.Enabled {
		recognizer, err := stt.NewRecognizer(r.cfg.STT)
		if err != nil {
			return fmt.Errorf("failed to build recognizer: %w", err)
		}
		sttService := stt.NewService(ctx, r.cfg.STT, busClient, recognizer, r.logger)
		if err := sttService.Start(); err != nil {
			return fmt.Errorf("failed to start stt service: %w", err)
		}
		r.stt = sttService
	}

	if r.cfg.Dictation.Enabled {
		dictationService, err := dictation.NewService(ctx, r.cfg.Dictation, busClient, registry, store, store, r.logger)
		if err != nil {
			return fmt.Errorf("failed to build dictation service: %w", err)
		}
		if err := dictationService.Start(); err != nil {
			return fmt.Errorf("failed to start dictation service: %w", err)
		}
		r.dictation = dictationService
	}

	return nil
}

func (r *Runtime) stopServices() {
	if r.dictation != nil {
		r.dictation.Close()
	}
	if r.stt != nil {
		r.stt.Close()
	}
	if r.devices != nil {
		r.devices.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("record store close error", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.servicesHealthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) servicesHealthy() bool {
	if r.stt != nil && !r.stt.Healthy() {
		return false
	}
	if r.dictation != nil && !r.dictation.Healthy() {
		return false
	}
	return true
}

func (r *Runtime) handleDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(r.devices.List())
}

func (r *Runtime) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(r.templates.Names())
}
