package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
)

// Adapter turns one text segment into one decoded audio buffer by running the
// model against a scratch wav file.
type Adapter struct {
	model    Model
	voiceRef string
	tempDir  string
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Adapter)

// WithTempDir places scratch files in dir instead of os.TempDir.
func WithTempDir(dir string) Option {
	return func(a *Adapter) { a.tempDir = dir }
}

// WithTimeout bounds each Infer call. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

func NewAdapter(model Model, voiceRef string, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		model:    model,
		voiceRef: voiceRef,
		logger:   logger.With(slog.String("component", "tts")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Synthesize renders text. Any failure comes back as *SynthesisError and the
// scratch file never outlives the call.
func (a *Adapter) Synthesize(ctx context.Context, text string) (audio.Buffer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Buffer{}, &SynthesisError{Text: text, Err: ErrEmptySegment}
	}

	f, err := os.CreateTemp(a.tempDir, "rtts-*.wav")
	if err != nil {
		return audio.Buffer{}, &SynthesisError{Text: text, Err: fmt.Errorf("create scratch file: %w", err)}
	}
	path := f.Name()
	f.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("failed to remove scratch file", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := a.infer(ctx, text, path); err != nil {
		return audio.Buffer{}, &SynthesisError{Text: text, Err: err}
	}
	pcm, err := audio.DecodeWAVFile(path)
	if err != nil {
		return audio.Buffer{}, &SynthesisError{Text: text, Err: err}
	}
	if len(pcm.Data) == 0 {
		return audio.Buffer{}, &SynthesisError{Text: text, Err: errors.New("model produced no audio")}
	}

	buf := audio.Buffer{Text: text, PCM: pcm}
	a.logger.Debug("segment synthesized",
		slog.Int("chars", len(text)),
		slog.Duration("audio", buf.Duration()),
		slog.Duration("elapsed", time.Since(start)))
	return buf, nil
}

func (a *Adapter) infer(ctx context.Context, text, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
		}
	}()
	return a.model.Infer(ctx, a.voiceRef, text, path)
}
