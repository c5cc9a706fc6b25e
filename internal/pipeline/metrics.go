package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	turns          metric.Int64Counter
	segments       metric.Int64Counter
	synthLatency   metric.Float64Histogram
	firstAudio     metric.Float64Histogram
	queueDepth     metric.Int64ObservableGauge
	played         metric.Int64Counter
	playDuration   metric.Float64Histogram
	registerFailed error
}

func newMetrics(depth func() int) *metrics {
	meter := otel.Meter("github.com/cl33/RealTimeTTS/pipeline")
	m := &metrics{}
	var err error
	if m.turns, err = meter.Int64Counter("realtimetts.turns",
		metric.WithDescription("Turns processed, by outcome")); err != nil {
		m.registerFailed = err
	}
	if m.segments, err = meter.Int64Counter("realtimetts.segments",
		metric.WithDescription("Segments produced, by outcome")); err != nil {
		m.registerFailed = err
	}
	if m.synthLatency, err = meter.Float64Histogram("realtimetts.synthesis.duration",
		metric.WithDescription("Time to synthesize one segment"),
		metric.WithUnit("s")); err != nil {
		m.registerFailed = err
	}
	if m.firstAudio, err = meter.Float64Histogram("realtimetts.turn.first_audio",
		metric.WithDescription("Time from utterance to the first enqueued buffer"),
		metric.WithUnit("s")); err != nil {
		m.registerFailed = err
	}
	if m.played, err = meter.Int64Counter("realtimetts.playback.buffers",
		metric.WithDescription("Buffers handed to the output device, by outcome")); err != nil {
		m.registerFailed = err
	}
	if m.playDuration, err = meter.Float64Histogram("realtimetts.playback.duration",
		metric.WithDescription("Time the device spent rendering one buffer"),
		metric.WithUnit("s")); err != nil {
		m.registerFailed = err
	}
	if depth != nil {
		if m.queueDepth, err = meter.Int64ObservableGauge("realtimetts.playback.queue_depth",
			metric.WithDescription("Buffers waiting for playback")); err == nil {
			_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
				obs.ObserveInt64(m.queueDepth, int64(depth()))
				return nil
			}, m.queueDepth)
		}
		if err != nil {
			m.registerFailed = err
		}
	}
	return m
}

func (m *metrics) turn(ctx context.Context, outcome string) {
	if m.turns != nil {
		m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *metrics) segment(ctx context.Context, outcome string) {
	if m.segments != nil {
		m.segments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *metrics) synthesis(ctx context.Context, d time.Duration) {
	if m.synthLatency != nil {
		m.synthLatency.Record(ctx, d.Seconds())
	}
}

func (m *metrics) firstAudioLatency(ctx context.Context, d time.Duration) {
	if m.firstAudio != nil {
		m.firstAudio.Record(ctx, d.Seconds())
	}
}

func (m *metrics) playback(ctx context.Context, outcome string, d time.Duration) {
	if m.played != nil {
		m.played.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if m.playDuration != nil {
		m.playDuration.Record(ctx, d.Seconds())
	}
}
