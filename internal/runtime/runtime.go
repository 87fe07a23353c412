// Package runtime assembles the daemon: telemetry, the message bus,
// the capture and transcription services, the session manager, and the
// HTTP surface the UI talks to.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vettalabs/vetta-core/internal/audio"
	"github.com/vettalabs/vetta-core/internal/bus"
	"github.com/vettalabs/vetta-core/internal/config"
	"github.com/vettalabs/vetta-core/internal/eval"
	"github.com/vettalabs/vetta-core/internal/natsserver"
	"github.com/vettalabs/vetta-core/internal/protocol"
	"github.com/vettalabs/vetta-core/internal/report"
	"github.com/vettalabs/vetta-core/internal/rubric"
	"github.com/vettalabs/vetta-core/internal/session"
	"github.com/vettalabs/vetta-core/internal/snapshot"
	"github.com/vettalabs/vetta-core/internal/stt"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every service up, blocks until ctx is canceled, then
// tears them down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	snapshots, err := snapshot.Open(ctx, r.cfg.Recovery, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open recovery store: %w", err)
	}
	defer snapshots.Close()

	lib, err := rubric.Load(r.cfg.Rubric.Path, r.cfg.Rubric.DefaultRole)
	if err != nil {
		return fmt.Errorf("failed to load rubric library: %w", err)
	}

	scorer, err := eval.NewScorer(r.cfg.Evaluator)
	if err != nil {
		return fmt.Errorf("failed to build evaluator: %w", err)
	}

	deliverer, err := report.FromConfig(r.cfg.Report)
	if err != nil {
		return fmt.Errorf("failed to build report deliverer: %w", err)
	}

	metrics, err := session.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	capture := audio.NewCapture(r.cfg.Capture, nil, frameSink(busClient), r.logger)

	sttService := stt.NewService(ctx, busClient, r.dialer(), r.logger)
	if err := sttService.Start(); err != nil {
		return fmt.Errorf("failed to start transcription service: %w", err)
	}
	defer sttService.Close()

	manager := session.NewManager(ctx, r.cfg, busClient, lib, session.Deps{
		Capture:   capture,
		Stt:       sttService,
		Scorer:    scorer,
		Deliverer: deliverer,
		Snapshots: snapshots,
		Metrics:   metrics,
		Log:       r.logger,
	})
	if err := manager.Start(); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	defer manager.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady(busClient, sttService, manager))
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	registerAPI(mux, manager, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// frameSink publishes captured frames on the bus, one subject per
// session so the transcription service can subscribe with a wildcard.
func frameSink(busClient *bus.Client) audio.FrameSink {
	return func(frame protocol.AudioFrame) error {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		subject := protocol.SubjectAudioFramePrefix + "." + frame.SessionID
		return busClient.Conn().Publish(subject, data)
	}
}

// dialer picks the real backend when one is configured, otherwise the
// runtime runs standalone against a scripted stream.
func (r *Runtime) dialer() stt.Dialer {
	if r.cfg.STT.SocketURL != "" {
		return stt.NewDialer(r.cfg.STT)
	}
	r.logger.Warn("no transcription backend configured, using fake stream")
	return func(context.Context) (stt.Stream, error) {
		return stt.NewFakeStream(nil), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(busClient *bus.Client, sttService *stt.Service, manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if r.ready.Load() && busClient.Healthy() && sttService.Healthy() && manager.Healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	}
}
