package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
	"github.com/cl33/RealTimeTTS/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingDevice struct {
	mu      sync.Mutex
	played  []int
	delay   time.Duration
	failSeq int
	started chan int
}

func (d *recordingDevice) Play(ctx context.Context, buf audio.Buffer) error {
	if d.started != nil {
		d.started <- buf.Sequence
	}
	time.Sleep(d.delay)
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf.Sequence == d.failSeq {
		return errors.New("device unplugged")
	}
	d.played = append(d.played, buf.Sequence)
	return nil
}

func (d *recordingDevice) Close() error { return nil }

func (d *recordingDevice) sequences() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.played...)
}

func TestWorkerPlaysInOrderAndSurvivesRenderErrors(t *testing.T) {
	q := NewQueue(0)
	dev := &recordingDevice{failSeq: 1}
	var mu sync.Mutex
	var failures []error
	w := NewWorker(q, dev, newLogger(), func(buf audio.Buffer, _ time.Duration, err error) {
		if err != nil {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}
	})
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := q.Enqueue(ctx, audio.Buffer{TurnID: "t", Sequence: i}); err != nil {
			t.Fatal(err)
		}
	}
	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.AwaitDrained(drainCtx); err != nil {
		t.Fatalf("await drained: %v", err)
	}

	got := dev.sequences()
	want := []int{0, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("played %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("played %v, want %v", got, want)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	var renderErr *RenderError
	if len(failures) != 1 || !errors.As(failures[0], &renderErr) || renderErr.Sequence != 1 {
		t.Fatalf("expected one RenderError for sequence 1, got %v", failures)
	}
}

func TestWorkerStopFinishesCurrentBuffer(t *testing.T) {
	q := NewQueue(0)
	dev := &recordingDevice{failSeq: -1, delay: 100 * time.Millisecond, started: make(chan int, 4)}
	w := NewWorker(q, dev, newLogger(), nil)
	w.Start()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, audio.Buffer{Sequence: i}); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-dev.started:
	case <-time.After(time.Second):
		t.Fatal("worker never started playing")
	}
	w.Stop()

	got := dev.sequences()
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected only the in-progress buffer to complete, got %v", got)
	}
	if q.Len() != 2 {
		t.Fatalf("expected remaining buffers left queued, got %d", q.Len())
	}
}

func TestWorkerRecoversDevicePanic(t *testing.T) {
	q := NewQueue(0)
	w := NewWorker(q, panicDevice{}, newLogger(), nil)
	w.Start()
	defer w.Stop()

	ctx := context.Background()
	if err := q.Enqueue(ctx, audio.Buffer{}); err != nil {
		t.Fatal(err)
	}
	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := q.AwaitDrained(drainCtx); err != nil {
		t.Fatalf("panicking device must still mark the buffer done: %v", err)
	}
}

type panicDevice struct{}

func (panicDevice) Play(context.Context, audio.Buffer) error { panic("driver crash") }
func (panicDevice) Close() error                              { return nil }

func TestStopWithoutStart(t *testing.T) {
	w := NewWorker(NewQueue(0), NullDevice{}, newLogger(), nil)
	w.Stop()
}

type capturePublisher struct {
	subject string
	value   any
}

func (p *capturePublisher) PublishJSON(subject string, v any) error {
	p.subject, p.value = subject, v
	return nil
}

func TestBusDevicePublishesChunk(t *testing.T) {
	pub := &capturePublisher{}
	dev := NewBusDevice(pub, "kitchen")
	buf := audio.Buffer{TurnID: "turn-9", Sequence: 2, Text: "Hi.", PCM: audio.Tone(16000, 10*time.Millisecond, 440)}
	if err := dev.Play(context.Background(), buf); err != nil {
		t.Fatalf("play: %v", err)
	}
	if pub.subject != "tts.audio.out" {
		t.Fatalf("unexpected subject %q", pub.subject)
	}
	chunk, ok := pub.value.(protocol.AudioChunk)
	if !ok {
		t.Fatalf("unexpected payload %T", pub.value)
	}
	if chunk.Target != "kitchen" || chunk.Sequence != 2 || chunk.SampleRate != 16000 || len(chunk.PCM) != 320 {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
}
