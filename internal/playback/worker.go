package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
)

// Device renders one buffer to an output and returns when it has finished.
type Device interface {
	Play(ctx context.Context, buf audio.Buffer) error
	Close() error
}

// RenderError reports a buffer the device failed to play. The worker logs it
// and moves on to the next buffer.
type RenderError struct {
	TurnID   string
	Sequence int
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render buffer %d of turn %s: %v", e.Sequence, e.TurnID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PlayedFunc observes each buffer after the device returns.
type PlayedFunc func(buf audio.Buffer, elapsed time.Duration, err error)

// Worker is the single consumer of a Queue.
type Worker struct {
	queue    *Queue
	device   Device
	logger   *slog.Logger
	onPlayed PlayedFunc

	stopping atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
}

func NewWorker(queue *Queue, device Device, logger *slog.Logger, onPlayed PlayedFunc) *Worker {
	return &Worker{
		queue:    queue,
		device:   device,
		logger:   logger.With(slog.String("component", "playback")),
		onPlayed: onPlayed,
	}
}

// Start launches the worker goroutine. Calling it more than once is a no-op.
func (w *Worker) Start() {
	w.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		w.wg.Add(1)
		go w.run(ctx)
		w.logger.Info("playback worker started")
	})
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for !w.stopping.Load() {
		buf, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("dequeue failed", slogError(err))
			return
		}
		w.play(buf)
		w.queue.MarkDone()
	}
}

// play runs outside the stop context so a buffer that has started always
// finishes.
func (w *Worker) play(buf audio.Buffer) {
	start := time.Now()
	err := w.render(buf)
	elapsed := time.Since(start)
	if err != nil {
		renderErr := &RenderError{TurnID: buf.TurnID, Sequence: buf.Sequence, Err: err}
		w.logger.Error("playback failed",
			slog.String("turn_id", buf.TurnID),
			slog.Int("sequence", buf.Sequence),
			slogError(renderErr))
		err = renderErr
	} else {
		w.logger.Debug("buffer played",
			slog.String("turn_id", buf.TurnID),
			slog.Int("sequence", buf.Sequence),
			slog.Duration("elapsed", elapsed))
	}
	if w.onPlayed != nil {
		w.onPlayed(buf, elapsed, err)
	}
}

func (w *Worker) render(buf audio.Buffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device panic: %v", r)
		}
	}()
	return w.device.Play(context.Background(), buf)
}

// Stop asks the worker to exit after the current buffer and waits for it.
// Buffers still queued are left unplayed.
func (w *Worker) Stop() {
	w.stop.Do(func() {
		w.stopping.Store(true)
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.logger.Info("playback worker stopped")
	})
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
