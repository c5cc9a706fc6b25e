package llm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "llm.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecGeneratorStreamsStdout(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"response":"Hello."}'
echo '{"response":" Bye.","done":true}'
`)
	gen, err := NewExecGenerator(script)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	var got []string
	err = gen.Generate(context.Background(), Request{Prompt: "hi"}, func(c Chunk) error {
		got = append(got, c.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Join(got, "") != "Hello. Bye." {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestExecGeneratorIgnoresOutputAfterDone(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"response":"Hi.","done":true}'
head -c 262144 /dev/zero
`)
	gen, err := NewExecGenerator(script)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []string
	err = gen.Generate(ctx, Request{Prompt: "hi"}, func(c Chunk) error {
		got = append(got, c.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Join(got, "") != "Hi." {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestExecGeneratorFailingCommand(t *testing.T) {
	script := writeScript(t, "cat > /dev/null\necho boom >&2\nexit 3\n")
	gen, err := NewExecGenerator(script)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	err = gen.Generate(context.Background(), Request{Prompt: "hi"}, func(Chunk) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected command failure with stderr, got %v", err)
	}
}

func TestNewExecGeneratorRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockGeneratorEchoesPrompt(t *testing.T) {
	gen := NewMockGenerator(nil, time.Millisecond)
	var b strings.Builder
	var done bool
	err := gen.Generate(context.Background(), Request{Prompt: " hello there "}, func(c Chunk) error {
		b.WriteString(c.Content)
		done = c.Done
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if b.String() != "You said: hello there." {
		t.Fatalf("echo = %q", b.String())
	}
	if !done {
		t.Fatal("last chunk should be marked done")
	}
}

func TestMockGeneratorHonoursCancel(t *testing.T) {
	gen := NewMockGenerator([]string{"a", "b"}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := gen.Generate(ctx, Request{}, func(Chunk) error { return nil }); err == nil {
		t.Fatal("expected context error")
	}
}
