package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptySegment is reported for segments with nothing to speak.
var ErrEmptySegment = errors.New("empty segment")

// Model is a voice-cloning synthesis backend. Infer renders text in the voice
// of voiceRef and writes a wav file to outputPath.
type Model interface {
	Infer(ctx context.Context, voiceRef, text, outputPath string) error
}

// SynthesisError wraps a failure for a single segment. The turn continues
// with the next segment.
type SynthesisError struct {
	Text string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %q: %v", e.Text, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
