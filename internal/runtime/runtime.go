package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cl33/RealTimeTTS/internal/bus"
	"github.com/cl33/RealTimeTTS/internal/capability"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/eventstore"
	"github.com/cl33/RealTimeTTS/internal/natsserver"
	"github.com/cl33/RealTimeTTS/internal/pipeline"
	"github.com/cl33/RealTimeTTS/internal/playback"
	"github.com/cl33/RealTimeTTS/internal/stt"
	"github.com/cl33/RealTimeTTS/internal/tts"
	"github.com/google/uuid"
)

// Runtime owns the session lifecycle: load capabilities, start the playback
// worker, run turns, then drain audio and stop in order.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	sessionID  string
	httpServer *http.Server
	registry   *capability.Registry
	ready      atomic.Bool
	wg         sync.WaitGroup

	recognizerLoader  capability.Loader[stt.Recognizer]
	synthesizerLoader capability.Loader[*tts.Adapter]
	device            playback.Device
}

type Option func(*Runtime)

// WithRecognizerLoader replaces the recognizer chosen by stt.mode.
func WithRecognizerLoader(l capability.Loader[stt.Recognizer]) Option {
	return func(r *Runtime) { r.recognizerLoader = l }
}

// WithSynthesizerLoader replaces the synthesizer chosen by tts.mode.
func WithSynthesizerLoader(l capability.Loader[*tts.Adapter]) Option {
	return func(r *Runtime) { r.synthesizerLoader = l }
}

// WithDevice replaces the output chosen by playback.device.
func WithDevice(d playback.Device) Option {
	return func(r *Runtime) { r.device = d }
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:       cfg,
		sessionID: uuid.NewString(),
	}
	r.logger = logger.With(slog.String("session_id", r.sessionID))
	r.registry = capability.NewRegistry(r.logger)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start blocks until ctx is canceled or the recognizer closes. A capability
// that fails to load returns *capability.InitializationError before any
// worker or turn starts.
func (r *Runtime) Start(ctx context.Context) (err error) {
	var cleanup []func(context.Context)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i](shutdownCtx)
		}
	}()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	cleanup = append(cleanup, func(ctx context.Context) {
		if err := shutdownTelemetry(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	})

	if r.cfg.HTTP.Enabled {
		r.startHTTP(metricsHandler)
		cleanup = append(cleanup, r.stopHTTP)
	}

	busClient, err := r.connectBus(ctx, &cleanup)
	if err != nil {
		return err
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "event-store")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	cleanup = append(cleanup, func(context.Context) { _ = store.Close() })

	if r.recognizerLoader == nil {
		r.recognizerLoader = recognizerLoader(r.cfg.STT, busClient, r.logger)
	}
	if r.synthesizerLoader == nil {
		r.synthesizerLoader = synthesizerLoader(r.cfg.TTS, r.logger)
	}

	var recognizer stt.Recognizer
	var synthesizer *tts.Adapter
	timeout := time.Duration(r.cfg.Startup.TimeoutMS) * time.Millisecond
	if err := r.registry.Join(ctx, timeout,
		capability.Bind("recognizer", r.cfg.STT.Mode, &recognizer, r.recognizerLoader),
		capability.Bind("synthesizer", r.cfg.TTS.Mode, &synthesizer, r.synthesizerLoader),
	); err != nil {
		return err
	}
	cleanup = append(cleanup, func(context.Context) { _ = recognizer.Close() })

	generator, err := buildGenerator(r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("build generator: %w", err)
	}
	device := r.device
	if device == nil {
		if device, err = buildDevice(r.cfg.Playback, busClient); err != nil {
			return fmt.Errorf("open playback device: %w", err)
		}
	}
	cleanup = append(cleanup, func(context.Context) { _ = device.Close() })

	queue := playback.NewQueue(r.cfg.Playback.MaxQueue)

	var pub pipeline.Publisher
	if busClient != nil {
		pub = busClient
	}
	orchestrator := pipeline.New(r.cfg.LLM, recognizer, generator, synthesizer, queue, r.logger,
		pipeline.WithQueueDepth(queue.Len),
		pipeline.WithEvents(pipeline.NewRecorder(pub, store, r.logger)),
	)
	worker := playback.NewWorker(queue, device, r.logger, orchestrator.Played)
	worker.Start()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("stt", r.cfg.STT.Mode),
		slog.String("llm", r.cfg.LLM.Mode),
		slog.String("tts", r.cfg.TTS.Mode),
		slog.String("device", r.cfg.Playback.Device))

	runErr := orchestrator.Run(ctx)
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	r.drain(queue)
	worker.Stop()
	queue.Close()

	if runErr != nil {
		return fmt.Errorf("orchestrator: %w", runErr)
	}
	return nil
}

// drain waits for queued audio to finish, bounded by playback.drain_timeout_ms.
func (r *Runtime) drain(queue *playback.Queue) {
	ctx := context.Background()
	if r.cfg.Playback.DrainTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.Playback.DrainTimeoutMS)*time.Millisecond)
		defer cancel()
	}
	pending := queue.InFlight()
	if pending > 0 {
		r.logger.Info("draining playback queue", slog.Int("buffers", pending))
	}
	if err := queue.AwaitDrained(ctx); err != nil {
		r.logger.Warn("playback drain timed out", slog.Int("remaining", queue.InFlight()))
	}
}

func (r *Runtime) connectBus(ctx context.Context, cleanup *[]func(context.Context)) (*bus.Client, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return nil, err
	}
	if embedded != nil {
		*cleanup = append(*cleanup, func(context.Context) { embedded.Shutdown() })
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return nil, err
	}
	*cleanup = append(*cleanup, func(context.Context) { client.Close() })
	return client, nil
}

func (r *Runtime) startHTTP(metricsHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/capabilities", r.handleCapabilities)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
		}
	}()
	r.logger.Info("http server listening", slog.String("addr", addr))
}

func (r *Runtime) stopHTTP(ctx context.Context) {
	if r.httpServer == nil {
		return
	}
	if err := r.httpServer.Shutdown(ctx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.registry.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(r.registry.Snapshot())
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
