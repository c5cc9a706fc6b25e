package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	chunks []string
	delay  time.Duration
}

// NewMockGenerator replays chunks for every request. With no chunks it
// echoes the prompt back word by word.
func NewMockGenerator(chunks []string, delay time.Duration) Generator {
	return &mockGenerator{chunks: chunks, delay: delay}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	chunks := m.chunks
	if len(chunks) == 0 {
		chunks = echoChunks(req.Prompt)
	}
	start := time.Now()
	for i, content := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
		if err := consumer(Chunk{
			TurnID:  req.TurnID,
			Content: content,
			Done:    i == len(chunks)-1,
			Latency: time.Since(start),
		}); err != nil {
			return err
		}
	}
	return nil
}

func echoChunks(prompt string) []string {
	words := strings.Fields("You said: " + strings.TrimSpace(prompt) + ".")
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out = append(out, w)
	}
	return out
}
