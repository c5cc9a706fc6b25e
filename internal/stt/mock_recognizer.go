package stt

import (
	"context"
	"sync"
	"time"
)

type mockRecognizer struct {
	mu         sync.Mutex
	utterances []string
	delay      time.Duration
}

// NewMockRecognizer replays utterances in order and then blocks until the
// context ends.
func NewMockRecognizer(utterances []string, delay time.Duration) Recognizer {
	return &mockRecognizer{utterances: append([]string(nil), utterances...), delay: delay}
}

func (m *mockRecognizer) NextUtterance(ctx context.Context) (string, error) {
	m.mu.Lock()
	if len(m.utterances) == 0 {
		m.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	next := m.utterances[0]
	m.utterances = m.utterances[1:]
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(m.delay):
	}
	return next, nil
}

func (m *mockRecognizer) Close() error { return nil }
