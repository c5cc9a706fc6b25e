package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cl33/RealTimeTTS/internal/bus"
	"github.com/cl33/RealTimeTTS/internal/protocol"
	"github.com/nats-io/nats.go"
)

// busRecognizer consumes final transcripts published on the bus by an
// external STT service.
type busRecognizer struct {
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	logger *slog.Logger
}

func NewBusRecognizer(busClient *bus.Client, subject string, logger *slog.Logger) (Recognizer, error) {
	if subject == "" {
		subject = protocol.SubjectTranscriptFinal
	}
	msgs := make(chan *nats.Msg, 64)
	sub, err := busClient.Conn().ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe transcripts: %w", err)
	}
	return &busRecognizer{
		sub:    sub,
		msgs:   msgs,
		logger: logger.With(slog.String("component", "stt-bus")),
	}, nil
}

func (r *busRecognizer) NextUtterance(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case msg, ok := <-r.msgs:
			if !ok {
				return "", ErrClosed
			}
			var transcript protocol.Transcript
			if err := json.Unmarshal(msg.Data, &transcript); err != nil {
				r.logger.Warn("failed to decode transcript", slog.String("error", err.Error()))
				continue
			}
			if transcript.Partial {
				continue
			}
			return transcript.Text, nil
		}
	}
}

func (r *busRecognizer) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}
