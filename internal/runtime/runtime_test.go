package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/cl33/RealTimeTTS/internal/capability"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/stt"
	"github.com/cl33/RealTimeTTS/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.Enabled = false
	cfg.Telemetry.MetricsEnabled = false
	cfg.LLM.MockChunks = []string{"It's ", "sunny", " today.", " Bring", " sunglasses."}
	cfg.TTS.SampleRate = 8000
	cfg.TTS.TempDir = t.TempDir()
	cfg.Startup.TimeoutMS = 2000
	return cfg
}

type slowDevice struct {
	mu     sync.Mutex
	played []string
	delay  time.Duration
}

func (d *slowDevice) Play(ctx context.Context, buf audio.Buffer) error {
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, buf.Text)
	return nil
}

func (d *slowDevice) Close() error { return nil }

func (d *slowDevice) texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.played...)
}

type countingRecognizer struct {
	stt.Recognizer
	calls atomic.Int32
}

func (c *countingRecognizer) NextUtterance(ctx context.Context) (string, error) {
	c.calls.Add(1)
	return c.Recognizer.NextUtterance(ctx)
}

func TestStartPlaysTurnAndDrainsOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	dev := &slowDevice{delay: 50 * time.Millisecond}
	rec := &countingRecognizer{Recognizer: stt.NewMockRecognizer([]string{"what's the weather"}, 0)}
	rt := New(cfg, newLogger(),
		WithDevice(dev),
		WithRecognizerLoader(func(context.Context) (stt.Recognizer, error) { return rec, nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	// The mock recognizer blocks after its script; the second call means the
	// first turn has been fully enqueued.
	deadline := time.Now().Add(3 * time.Second)
	for rec.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("turn never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runtime did not shut down")
	}

	got := dev.texts()
	if len(got) != 2 || got[0] != "It's sunny today." || got[1] != "Bring sunglasses." {
		t.Fatalf("expected both segments played before shutdown, got %q", got)
	}
}

func TestStartupTimeoutIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Startup.TimeoutMS = 50
	dev := &slowDevice{}
	rec := &countingRecognizer{Recognizer: stt.NewMockRecognizer([]string{"hello"}, 0)}
	rt := New(cfg, newLogger(),
		WithDevice(dev),
		WithRecognizerLoader(func(context.Context) (stt.Recognizer, error) { return rec, nil }),
		WithSynthesizerLoader(func(ctx context.Context) (*tts.Adapter, error) {
			time.Sleep(time.Second)
			return nil, errors.New("too late")
		}),
	)

	start := time.Now()
	err := rt.Start(context.Background())
	if time.Since(start) > 800*time.Millisecond {
		t.Fatalf("startup did not honor its timeout (%v)", time.Since(start))
	}
	var initErr *capability.InitializationError
	if !errors.As(err, &initErr) || initErr.Capability != "synthesizer" {
		t.Fatalf("expected synthesizer InitializationError, got %v", err)
	}
	if rec.calls.Load() != 0 {
		t.Fatal("orchestrator must not run when startup fails")
	}
	if len(dev.texts()) != 0 {
		t.Fatal("playback must not start when startup fails")
	}
	if rt.ready.Load() {
		t.Fatal("runtime must not report ready")
	}
}

func TestRecognizerFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	rt := New(cfg, newLogger(),
		WithDevice(&slowDevice{}),
		WithRecognizerLoader(func(context.Context) (stt.Recognizer, error) {
			return nil, errors.New("model file missing")
		}),
	)
	err := rt.Start(context.Background())
	var initErr *capability.InitializationError
	if !errors.As(err, &initErr) || initErr.Capability != "recognizer" {
		t.Fatalf("expected recognizer InitializationError, got %v", err)
	}
}
