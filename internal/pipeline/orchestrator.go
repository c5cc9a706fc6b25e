package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/llm"
	"github.com/cl33/RealTimeTTS/internal/protocol"
	"github.com/cl33/RealTimeTTS/internal/segment"
	"github.com/cl33/RealTimeTTS/internal/stt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Synthesizer turns one segment into audio. *tts.Adapter implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Buffer, error)
}

// Sink accepts synthesized buffers in order. *playback.Queue implements it.
type Sink interface {
	Enqueue(ctx context.Context, buf audio.Buffer) error
}

// Orchestrator drives turns one at a time. It is the only producer for the
// playback queue.
type Orchestrator struct {
	cfg        config.LLMConfig
	recognizer stt.Recognizer
	generator  llm.Generator
	synth      Synthesizer
	sink       Sink
	events     EventSink
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics
	backoff    time.Duration
	clock      func() time.Time
}

type Option func(*Orchestrator)

func WithEvents(sink EventSink) Option {
	return func(o *Orchestrator) { o.events = sink }
}

// WithQueueDepth exposes the playback backlog as a gauge.
func WithQueueDepth(depth func() int) Option {
	return func(o *Orchestrator) { o.metrics = newMetrics(depth) }
}

// WithRecognizerBackoff sets the pause after a recognizer error.
func WithRecognizerBackoff(d time.Duration) Option {
	return func(o *Orchestrator) { o.backoff = d }
}

func New(cfg config.LLMConfig, recognizer stt.Recognizer, generator llm.Generator, synth Synthesizer, sink Sink, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		recognizer: recognizer,
		generator:  generator,
		synth:      synth,
		sink:       sink,
		logger:     logger.With(slog.String("component", "orchestrator")),
		tracer:     otel.Tracer("github.com/cl33/RealTimeTTS/pipeline"),
		backoff:    500 * time.Millisecond,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = newMetrics(nil)
	}
	if o.metrics.registerFailed != nil {
		o.logger.Warn("failed to initialize metrics", slogError(o.metrics.registerFailed))
	}
	return o
}

// Run loops over utterances until ctx ends or the recognizer closes. A
// failed turn never ends the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started")
	defer o.logger.Info("orchestrator stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		o.logger.Debug("turn state", slog.String("state", string(AwaitingUtterance)))
		utterance, err := o.recognizer.NextUtterance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, stt.ErrClosed) {
				return err
			}
			o.logger.Warn("recognizer error", slogError(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(o.backoff):
			}
			continue
		}
		if strings.TrimSpace(utterance) == "" {
			continue
		}

		if _, err := o.RunTurn(ctx, utterance); err != nil {
			var genErr *GenerationStreamError
			switch {
			case errors.As(err, &genErr):
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
	}
}

// RunTurn processes one utterance. It returns *GenerationStreamError when the
// stream broke; whatever was segmented up to that point has been enqueued.
// Other errors mean the playback sink refused audio or ctx ended.
func (o *Orchestrator) RunTurn(ctx context.Context, utterance string) (Turn, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Turn{State: AwaitingUtterance}, nil
	}

	turn := Turn{
		ID:        uuid.NewString(),
		Utterance: utterance,
		StartedAt: o.clock(),
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(attribute.String("turn.id", turn.ID)))
	defer span.End()

	log := o.logger.With(slog.String("turn_id", turn.ID))
	log.Info("turn started", slog.Int("utterance_chars", len(utterance)))
	o.record(ctx, turn, protocol.EventTurnStarted, nil)
	o.setState(log, &turn, StreamingGeneration)

	filter := llm.MarkupFilter{SuppressReasoning: o.cfg.SuppressReasoning}
	seg := segment.New()
	seq := 0

	emit := func(text string) error {
		if turn.State != Synthesizing {
			o.setState(log, &turn, Synthesizing)
		}
		log.Debug("synthesizing", slog.String("text", text))

		synthCtx, synthSpan := o.tracer.Start(ctx, "pipeline.synthesize", trace.WithAttributes(attribute.Int("segment.sequence", seq)))
		start := time.Now()
		buf, err := o.synth.Synthesize(synthCtx, text)
		o.metrics.synthesis(ctx, time.Since(start))
		if err != nil {
			synthSpan.RecordError(err)
			synthSpan.SetStatus(codes.Error, "synthesis failed")
			synthSpan.End()
			if ctx.Err() != nil {
				return &sinkError{err: ctx.Err()}
			}
			turn.Dropped++
			o.metrics.segment(ctx, "dropped")
			log.Warn("segment dropped", slog.Int("sequence", seq), slogError(err))
			o.record(ctx, turn, protocol.EventSegmentDropped, err)
			seq++
			return nil
		}
		synthSpan.End()

		buf.TurnID = turn.ID
		buf.Sequence = seq
		seq++
		if err := o.sink.Enqueue(ctx, buf); err != nil {
			return &sinkError{err: err}
		}
		turn.Segments++
		if turn.Segments == 1 {
			o.metrics.firstAudioLatency(ctx, o.clock().Sub(turn.StartedAt))
		}
		o.metrics.segment(ctx, "enqueued")
		o.record(ctx, turn, protocol.EventSegmentEnqueued, nil)
		return nil
	}

	var (
		genCtx    context.Context
		cancelGen context.CancelFunc
	)
	if o.cfg.RequestTimeoutMS > 0 {
		genCtx, cancelGen = context.WithTimeout(ctx, time.Duration(o.cfg.RequestTimeoutMS)*time.Millisecond)
	} else {
		genCtx, cancelGen = context.WithCancel(ctx)
	}
	stream := startStream(genCtx, o.generator, llm.RequestFromConfig(o.cfg, turn.ID, utterance))
	defer func() {
		cancelGen()
		stream.wait()
	}()

	feed := func(text string) error {
		for _, s := range seg.Feed(text) {
			if err := emit(s); err != nil {
				return err
			}
		}
		return nil
	}
	err := func() error {
		for {
			chunks, ok, err := stream.next(ctx)
			if !ok {
				return err
			}
			for _, c := range chunks {
				if err := feed(filter.Filter(c)); err != nil {
					return err
				}
			}
		}
	}()

	var sinkErr *sinkError
	if errors.As(err, &sinkErr) {
		span.RecordError(sinkErr.err)
		span.SetStatus(codes.Error, "turn aborted")
		o.metrics.turn(ctx, "aborted")
		return turn, sinkErr.err
	}
	if err != nil && ctx.Err() != nil {
		o.metrics.turn(ctx, "aborted")
		return turn, ctx.Err()
	}

	if ferr := feed(filter.Flush()); ferr != nil {
		o.metrics.turn(ctx, "aborted")
		return turn, errors.Unwrap(ferr)
	}

	var genErr *GenerationStreamError
	if err != nil {
		genErr = &GenerationStreamError{TurnID: turn.ID, Err: err}
		log.Warn("generation stream failed",
			slog.Int("pending_chars", len(seg.Pending())),
			slogError(genErr))
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "generation stream failed")
	}

	if rest, ok := seg.Flush(); ok {
		if err := emit(rest); err != nil {
			o.metrics.turn(ctx, "aborted")
			return turn, errors.Unwrap(err)
		}
	}

	o.setState(log, &turn, TurnComplete)
	latency := o.clock().Sub(turn.StartedAt)
	span.SetAttributes(
		attribute.Int("turn.segments", turn.Segments),
		attribute.Int("turn.dropped", turn.Dropped))
	if genErr != nil {
		o.metrics.turn(ctx, "failed")
		o.recordLatency(ctx, turn, protocol.EventTurnFailed, genErr, latency)
		return turn, genErr
	}
	o.metrics.turn(ctx, "completed")
	o.recordLatency(ctx, turn, protocol.EventTurnCompleted, nil, latency)
	log.Info("turn complete",
		slog.Int("segments", turn.Segments),
		slog.Int("dropped", turn.Dropped),
		slog.Duration("elapsed", latency))
	return turn, nil
}

// Played reports one rendered buffer. Its signature matches
// playback.PlayedFunc so the runtime can hand it to the worker.
func (o *Orchestrator) Played(buf audio.Buffer, elapsed time.Duration, err error) {
	outcome := "played"
	if err != nil {
		outcome = "failed"
	}
	o.metrics.playback(context.Background(), outcome, elapsed)
}

func (o *Orchestrator) setState(log *slog.Logger, turn *Turn, state TurnState) {
	turn.State = state
	log.Debug("turn state", slog.String("state", string(state)))
}

func (o *Orchestrator) record(ctx context.Context, turn Turn, kind string, err error) {
	o.recordLatency(ctx, turn, kind, err, 0)
}

func (o *Orchestrator) recordLatency(ctx context.Context, turn Turn, kind string, err error, latency time.Duration) {
	if o.events == nil {
		return
	}
	evt := protocol.TurnEvent{
		TurnID:    turn.ID,
		Type:      kind,
		Segments:  turn.Segments,
		LatencyMS: latency.Milliseconds(),
		Timestamp: o.clock().UTC(),
	}
	if err != nil {
		evt.Error = errorKind(err)
	}
	o.events.Record(ctx, evt)
}

// errorKind keeps event payloads free of text that could echo the
// conversation.
func errorKind(err error) string {
	var genErr *GenerationStreamError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &genErr):
		return "generation"
	default:
		return "synthesis"
	}
}
