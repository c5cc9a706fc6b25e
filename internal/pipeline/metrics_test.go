package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/playback"
	"github.com/cl33/RealTimeTTS/internal/stt"
)

func TestPlayedCountsBuffersByOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))

	o := New(config.LLMConfig{}, stt.NewMockRecognizer(nil, 0), &scriptedGenerator{}, &fakeSynth{}, playback.NewQueue(0), newLogger())
	o.Played(audio.Buffer{TurnID: "t1"}, 10*time.Millisecond, nil)
	o.Played(audio.Buffer{TurnID: "t1", Sequence: 1}, time.Millisecond, errors.New("device gone"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "realtimetts.playback.buffers" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				got[v.AsString()] += dp.Value
			}
		}
	}
	if got["played"] != 1 || got["failed"] != 1 {
		t.Fatalf("playback counts = %v", got)
	}
}
