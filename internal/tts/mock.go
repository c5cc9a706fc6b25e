package tts

import (
	"context"
	"strings"
	"time"

	"github.com/cl33/RealTimeTTS/internal/audio"
)

// mockModel writes a short tone whose length follows the word count, which is
// enough to exercise decoding and playback without a real voice model.
type mockModel struct {
	sampleRate int
	perWord    time.Duration
}

func NewMockModel(sampleRate int) Model {
	return &mockModel{sampleRate: sampleRate, perWord: 80 * time.Millisecond}
}

func (m *mockModel) Infer(ctx context.Context, voiceRef, text, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return audio.EncodeWAVFile(outputPath, audio.Tone(m.sampleRate, time.Duration(words)*m.perWord, 440))
}
