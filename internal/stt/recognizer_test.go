package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cl33/RealTimeTTS/internal/bus"
	"github.com/cl33/RealTimeTTS/internal/config"
	"github.com/cl33/RealTimeTTS/internal/natsserver"
	"github.com/cl33/RealTimeTTS/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMockRecognizerReplaysThenBlocks(t *testing.T) {
	rec := NewMockRecognizer([]string{"What's the weather?", "Thanks"}, 0)
	ctx := context.Background()
	for _, want := range []string{"What's the weather?", "Thanks"} {
		got, err := rec.NextUtterance(ctx)
		if err != nil || got != want {
			t.Fatalf("NextUtterance() = %q, %v; want %q", got, err, want)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := rec.NextUtterance(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline after script exhausted, got %v", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stt.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecRecognizerReadsLines(t *testing.T) {
	script := writeScript(t, `echo "hello there"
echo '{"text":"hel","partial":true}'
echo ''
echo '{"text":"json line","confidence":0.9}'
echo "done" >&2
`)
	rec, err := NewExecRecognizer(config.STTConfig{Command: script})
	if err != nil {
		t.Fatalf("new exec recognizer: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, want := range []string{"hello there", "json line"} {
		got, err := rec.NextUtterance(ctx)
		if err != nil || got != want {
			t.Fatalf("NextUtterance() = %q, %v; want %q", got, err, want)
		}
	}
	if _, err := rec.NextUtterance(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after command exit, got %v", err)
	}
}

func TestExecRecognizerPassesModelAndLanguage(t *testing.T) {
	script := writeScript(t, `echo "$@"
exec sleep 5
`)
	rec, err := NewExecRecognizer(config.STTConfig{Command: script, ModelPath: "/models/base.bin", Language: "en"})
	if err != nil {
		t.Fatalf("new exec recognizer: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := rec.NextUtterance(ctx)
	if err != nil {
		t.Fatalf("next utterance: %v", err)
	}
	if got != "--model /models/base.bin --language en" {
		t.Fatalf("unexpected args %q", got)
	}

	start := time.Now()
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("close should kill the running command")
	}
}

func TestNewExecRecognizerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.STTConfig{Command: ""}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestBusRecognizerSkipsPartials(t *testing.T) {
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Enabled: true, Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, "stt-test", log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	rec, err := NewBusRecognizer(client, protocol.SubjectTranscriptFinal, log)
	if err != nil {
		t.Fatalf("new bus recognizer: %v", err)
	}
	t.Cleanup(func() { _ = rec.Close() })

	for _, tr := range []protocol.Transcript{
		{Text: "what's the", Partial: true},
		{Text: "what's the weather?"},
	} {
		if err := client.PublishJSON(protocol.SubjectTranscriptFinal, tr); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := client.Conn().Publish(protocol.SubjectTranscriptFinal, []byte("not json")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	data, _ := json.Marshal(protocol.Transcript{Text: "thanks"})
	if err := client.Conn().Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, want := range []string{"what's the weather?", "thanks"} {
		got, err := rec.NextUtterance(ctx)
		if err != nil || got != want {
			t.Fatalf("NextUtterance() = %q, %v; want %q", got, err, want)
		}
	}
}
